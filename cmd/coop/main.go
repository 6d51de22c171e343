// Command coop runs a cooperative database node.
package main

import (
	"context"
	"os"

	"github.com/dynamoRando/rcd-sub004/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
