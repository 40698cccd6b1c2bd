// Package agent runs bounded think/act/observe loops against the
// completion router and the tool registry.
//
// Invariants:
// - A run resolves to exactly one terminal status; terminal runs are immutable.
// - Steps within a run are strictly sequential; no parallel tool execution.
// - Caller overrides pass through SanitizeConfig; the deny-list is never caller-settable.
// - The active-run entry is removed on every exit path, including panics.
//
// Usage:
//
//	orch, _ := agent.NewOrchestrator(agent.Options{Router: rtr, Registry: reg, Logger: logger})
//	run, err := orch.Run(ctx, "summarize today's calendar", nil, nil)
//	_ = run
//	_ = err
package agent
