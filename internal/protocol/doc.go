// Package protocol owns the wire contract shared by host and peer.
//
// Ownership boundary:
// - link frame primitives (frame)
// - fragment header primitives (fragment)
// - acknowledgment record primitives (ack)
// - reliable transfer driver (session)
package protocol
