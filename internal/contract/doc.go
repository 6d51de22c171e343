// Package contract manages the lifecycle of contracts on both sides.
//
// On the host, a contract is generated from the policy-tagged schema of a
// database, sent to a participant, and marked Accepted when the participant
// reports acceptance. On the participant, a received contract waits as
// Pending until it is accepted or rejected.
//
// Status only moves forward: NotSent, Pending, then Accepted or Rejected.
// Every transition is a conditional update on the current status, so racing
// callers cannot both win.
//
// Acceptance is three steps (mark Accepted, provision the partial database,
// notify the host). The steps are not one transaction. Each records its
// completion on the stored contract, so calling Accept again resumes at the
// first unfinished step and an accepted contract converges instead of
// repeating work. Accepts on the same contract id are serialized by a keyed
// mutex.
package contract
