// Package control implements the drive client: a keyboard driver and the
// link that carries its commands to the relay hub.
//
// The Link runs independently of input. It polls the hub's /health endpoint
// until it answers, dials the controller endpoint, and every SendInterval
// sends whatever message was staged last (most recent wins, repeats are
// harmless). A lost link is re-established the same way. Staging a quit
// message moves the link to Quitting; once that message is sent the link
// closes with a close handshake, enters Quit and never reconnects.
//
// The Driver maps keys to Vehicle adjustments. A throttle or steering value
// never crosses zero in a single step and stays within [-1, 1].
//
// Wire format:
//
//	{"Type":"move","throttle":-0.2,"steering":0.25}
//	{"Type":"quit"}
package control
