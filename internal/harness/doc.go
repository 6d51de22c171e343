// Package harness runs two-node conformance scenarios.
//
// A scenario provisions tables on a host, contracts them to a single
// participant over the loopback transport, runs a flow of writes and
// reviews, and then checks the final state of both nodes and the recorded
// notifier trace.
//
// # Scenario Format
//
//	name: queue_for_review_and_log
//	description: "Host updates wait for review at the participant"
//	remote_delete: AutoDelete
//	tables:
//	  - name: EMPLOYEE
//	    policy: Shared
//	    columns: [Id:INTEGER:pk, Name:TEXT]
//	flow:
//	  - do: set_behavior
//	    table: EMPLOYEE
//	    behaviors: { updates_from_host: QueueForReviewAndLog }
//	  - do: host_exec
//	    sql: "UPDATE EMPLOYEE SET Name = 'Bob' WHERE Id = 999"
//	    expect: { status: Pending }
//	assertions:
//	  - type: pending
//	    table: EMPLOYEE
//	    row_id: 999
//	    status: Pending
//	  - type: call_count
//	    call: update_at_participant
//	    count: 1
//
// # Steps
//
// host_exec, participant_exec, set_behavior, set_remote_delete, approve,
// reject, node_down and node_up.
//
// # Assertions
//
// row, pending, metadata, history_count, call_count and call_order.
//
// # Golden Files
//
// The notifier trace and per-step outcomes are compared against
// testdata/golden/{name}.golden. Identifiers, clocks and hashes are
// deterministic, so traces are byte-stable.
package harness
