// Package session drives one tensor transfer over a frame link.
//
// Ownership boundary:
// - acknowledgment wait (Listener)
// - stop-and-wait fragment loop (Sender)
// - retry/backoff policy
//
// At most one fragment is in flight per transfer. The Sender only advances
// past fragment k after the receiver acknowledged k, or jumps to whatever
// index the receiver reports it expects next.
package session
