// Package aep is an agent orchestration runtime: a long-lived process that
// accepts JSON-shaped tasks, routes each to a named agent, and returns a
// structured result.
//
// Agents may be built in, dynamically loaded from signed native shared
// libraries (hot-reloaded from a watched directory), or bridged to an
// external language runtime through a single serialising worker thread.
//
// # Core Interfaces
//
// The root package defines the dispatch surface every agent implements:
//
//   - [Agent] — uniform handler contract (handle, health, name, type, capabilities)
//   - [Registry] — concurrent name→agent map with atomic hot-reload replacement
//   - [Dispatcher] — bounded-concurrency task execution with per-task deadlines
//   - [Task] / [Reply] — one submitted unit of work and its single-shot response
//
// # Subsystems
//
// Supporting packages implement the rest of the platform:
//
//   - internal/plugin — signed plugin loading, quarantine, hot-reload watching
//   - internal/bridge — the foreign-runtime bridge worker and its queue
//   - memory — the embedding memory engine with cached vectors and rerank search
//   - auth — credential storage, login lockout, and bearer tokens
//   - settings — the typed configuration tree and its load-time validation
//   - health — OTEL instruments and per-agent health aggregation
//
// See the cmd/aepd directory for the daemon wiring everything together.
package aep
