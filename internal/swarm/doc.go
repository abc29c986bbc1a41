// Package swarm implements the coordination consensus engine: the swarm
// registry, agent records, the coordination lifecycle with quorum voting, and
// the reputation feedback loop.
//
// Every mutating operation authorizes its caller through an injected
// identity.Authorizer, then runs as one optimistic ledger transaction. The
// records it touches, the swarm counters and the events it emits are committed
// together or not at all. Rejections are *Error values classified by Kind.
//
// Lifecycle of a coordination:
//
//	Pending ──vote quorum──▶ Approved ──execute──▶ Executed
//	   │                        │
//	   ├──vote quorum (tie)──▶ Rejected
//	   └────────close──────────┴──▶ Failed | Cancelled
package swarm
