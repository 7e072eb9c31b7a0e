// Package websocket implements the relay hub between a robot and its controller.
//
// The websocket package implements:
//   - A registry holding at most one connection per role
//   - A frame relay loop that copies messages to the paired role
//   - A ping bridge that also measures ping/pong round-trip times
//   - Connection lifecycle management and graceful shutdown
//
// Roles:
//
// Four fixed roles exist, each paired with exactly one other:
//   - robot (/robot, /receive) ↔ controller (/oculus, /send)
//   - robot-ping (/robot/ping) ↔ controller-ping (/oculus/ping)
//
// Binding a connection to an occupied role closes the previous occupant;
// the last connection to arrive wins.
//
// Relaying:
//
// Every accepted connection gets its own goroutine reading messages and
// writing them to whatever connection currently holds the paired role. The
// destination is looked up again for every message, so a controller that
// reconnects becomes the target of the robot's running loop without any
// coordination. Messages are dropped while the paired role is empty.
//
// Latency:
//
// On the ping roles each payload equal to "ping" or "pong" (any case)
// drives a per-loop timer. The time from a ping to the next pong is logged,
// exported as a histogram and kept as the latest RTT for that direction.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.WithLogger(logger))
//	http.HandleFunc("/robot", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, websocket.RoleRobot)
//	})
//	defer hub.Shutdown(ctx)
package websocket
