// Package tools registers and executes structured tools for agent runs.
//
// Invariants:
// - Tool names are unique.
// - Parameters are schema-validated before execution.
// - Every execution resolves to a Result; handler errors, panics and
//   timeouts never escape past it.
// - Blocked-tier tools never execute.
package tools
