// Package harness executes YAML-described workflow scenarios against a
// real engine and compares the resulting trace and folded state against
// golden snapshots.
//
// A scenario is a named sequence of operations (start, register,
// decide, propose, approve, transition, deliver, verify, checklist,
// abort) with optional per-step expectations. The harness runs every
// step through a throwaway store with a frozen clock and a fixed run ID
// generator, so the canonical snapshot of a scenario is byte-stable
// across machines and runs.
//
// Snapshots are asserted with goldie; fixtures live under
// testdata/golden and scenarios under testdata/scenarios.
package harness
