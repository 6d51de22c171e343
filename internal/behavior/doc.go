// Package behavior decides what happens to a row when one party changes it.
//
// At a participant, Incoming applies host pushes according to the table's
// UpdatesFromHost and DeletesFromHost settings, Review resolves the actions
// those settings queued, and Outgoing reports local changes back to the host
// according to UpdatesToHost and DeletesToHost. At a host, Remote reacts to
// those reports according to the participant's RemoteDeleteBehavior.
//
// Every data change and the metadata entry describing it are written in the
// same transaction through a Writer.
package behavior
