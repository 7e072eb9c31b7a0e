package websocket

import (
	"errors"
	"fmt"
)

// Role is one of the four fixed endpoints the hub can bind a connection to.
type Role int

const (
	RoleRobot Role = iota
	RoleController
	RoleRobotPing
	RoleControllerPing

	numRoles = 4
)

// ErrUnknownPath is returned by RoleForPath for unmapped request paths.
var ErrUnknownPath = errors.New("unknown websocket path")

// routes maps upgrade paths to roles. /send and /receive are the paths used
// by the first keyboard client and robot script.
var routes = map[string]Role{
	"/robot":       RoleRobot,
	"/receive":     RoleRobot,
	"/oculus":      RoleController,
	"/send":        RoleController,
	"/robot/ping":  RoleRobotPing,
	"/oculus/ping": RoleControllerPing,
}

// Roles lists every role in slot order.
func Roles() []Role {
	return []Role{RoleRobot, RoleController, RoleRobotPing, RoleControllerPing}
}

// Paths returns every routable upgrade path.
func Paths() []string {
	paths := make([]string, 0, len(routes))
	for p := range routes {
		paths = append(paths, p)
	}
	return paths
}

// RoleForPath classifies an upgrade request path.
func RoleForPath(path string) (Role, error) {
	if r, ok := routes[path]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownPath, path)
}

func (r Role) String() string {
	switch r {
	case RoleRobot:
		return "robot"
	case RoleController:
		return "controller"
	case RoleRobotPing:
		return "robot-ping"
	case RoleControllerPing:
		return "controller-ping"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Peer is the role frames from r are forwarded to.
func (r Role) Peer() Role {
	switch r {
	case RoleRobot:
		return RoleController
	case RoleController:
		return RoleRobot
	case RoleRobotPing:
		return RoleControllerPing
	default:
		return RoleRobotPing
	}
}

// IsPing reports whether r belongs to the latency side channel.
func (r Role) IsPing() bool {
	return r == RoleRobotPing || r == RoleControllerPing
}

// Label names the forwarding direction of a loop reading from r.
func (r Role) Label() string {
	switch r {
	case RoleRobot:
		return "robot → oculus"
	case RoleController:
		return "oculus → robot"
	case RoleRobotPing:
		return "robot-ping → oculus-ping"
	case RoleControllerPing:
		return "oculus-ping → robot-ping"
	default:
		return r.String()
	}
}

func (r Role) valid() bool {
	return r >= 0 && r < numRoles
}
