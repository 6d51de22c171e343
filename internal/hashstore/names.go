package hashstore

import "strings"

// Reserved name parts. User tables may not use them.
const (
	SystemPrefix   = "COOP_"
	MetadataSuffix = "_COOP_METADATA"
	HistorySuffix  = "_COOP_HISTORY"
)

// MetadataTableName returns the metadata table tracking table.
func MetadataTableName(table string) string {
	return table + MetadataSuffix
}

// HistoryTableName returns the history table holding prior versions of table's rows.
func HistoryTableName(table string) string {
	return table + HistorySuffix
}

// IsReservedName reports whether name belongs to the cooperation layer or to
// SQLite itself.
func IsReservedName(name string) bool {
	upper := strings.ToUpper(name)
	return strings.HasPrefix(upper, SystemPrefix) ||
		strings.HasSuffix(upper, MetadataSuffix) ||
		strings.HasSuffix(upper, HistorySuffix) ||
		strings.HasPrefix(upper, "SQLITE_")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
