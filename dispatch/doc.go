// Package dispatch routes step-execution requests to concrete agent
// backends with an ordered fallback chain.
//
// Backends implement the Backend interface and register in a Registry; the
// Dispatcher resolves an agent hint (possibly "a|b|c" alternation matched
// against signals from prior results), tries the resolved backend, and
// degrades along the fixed chain premium -> generic session-spawn -> local
// CLI. Each hop is attempted at most once under its own timeout. Dispatch
// itself never fails: an exhausted chain produces a Result with
// Success=false carrying the per-hop diagnostics.
package dispatch
