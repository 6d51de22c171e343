// Package coop assembles a cooperating node.
//
// A Node owns a catalog of SQLite files and plays both roles: Host runs the
// databases this node hosts, and Participant runs the partial databases it
// holds for other hosts. Host implements notify.HostHandler and Participant
// implements notify.ParticipantHandler, so either can be registered with a
// transport.
//
// Inbound calls authenticate before anything else; a failed check never
// reaches storage.
package coop
