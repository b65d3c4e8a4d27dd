// Package core provides the foundational domain types used by AgentGraph. It
// defines the core abstractions for:
//
//   - Messages (the canonical conversational unit, built from content blocks)
//   - Roles (a closed set constructed explicitly at every ingress boundary)
//   - Run steps (one streamed unit of a node's turn)
//   - Events (the typed execution event taxonomy emitted by running nodes)
//   - Call budgets (per-run model call limiting)
//
// The package intentionally keeps implementation concerns (state reduction,
// routing, stream aggregation, provider payloads) out of scope, exposing small
// types that the other packages compose.
package core
