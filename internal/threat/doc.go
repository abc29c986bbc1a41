// Package threat implements the threat registry the swarm coordinates
// around: sequentially numbered threats, peer confirmation with automatic
// escalation, false-positive voting and a create-once address watchlist.
//
// Mutations go through a swarm.Runner, so they share the identity checks,
// the typed errors and the event outbox of the coordination engine.
package threat
