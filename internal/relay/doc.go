// Package relay routes signaling events between participants.
//
// Two pieces of state are involved. The Registry is process-local and maps a
// participant id to its live connection; it starts empty on every boot. Room
// membership lives in an external MembershipStore and survives restarts.
// Participant id is the only link between them, so a member with no local
// connection is simply treated as offline.
//
// Delivery is limited to connections attached to this process.
package relay
