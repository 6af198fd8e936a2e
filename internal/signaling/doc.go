// Package signaling implements the room-coordination core: a hub that owns
// the room registry, per-connection read/write pumps, and the WebSocket
// endpoint browser clients connect to.
//
// Clients join at most one named room at a time. Offer, answer and
// ice-candidate payloads are relayed verbatim to the other members of the
// room named in each message, tagged with the sender's connection id. All
// registry mutations flow through a single hub goroutine, so join, leave,
// relay and disconnect cleanup are processed atomically and in order.
package signaling
