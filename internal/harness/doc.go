// Package harness runs YAML conformance scenarios against the history tracker.
//
// A scenario is a list of steps (budget mutations, restores, deliberate
// tampering with stored rows) followed by assertions over the resulting
// history. Each run uses a fresh in-memory database, a step clock and a
// fixed identity, so everything except commit hashes is reproducible.
//
// The trace of a run is serialized as canonical JSON with commit hashes
// replaced by step labels and compared against testdata/golden/<name>.golden:
//
//	go test ./internal/harness -update
//
// regenerates the golden files.
//
// Example scenario:
//
//	name: restore_cash
//	description: Restoring an old commit brings back its cash amount
//	steps:
//	  - label: c1
//	    op: cash
//	    prev: "100.00"
//	    next: "250.00"
//	  - label: r1
//	    op: restore
//	    commit: c1
//	assertions:
//	  - type: restore_amount
//	    commit: r1
//	    amount: "250.00"
package harness
