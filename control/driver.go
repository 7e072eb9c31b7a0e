package control

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Stager accepts outbound messages. *Link implements it.
type Stager interface {
	Stage(Message)
	Quit()
}

const (
	header = `Teleop Relay - keyboard drive`
	menu   = `W/Up: throttle   S/Down: reverse   A/Left, D/Right: steer   Q/Esc: quit`
	bye    = `Closing link, goodbye.`
)

// Driver turns key presses into vehicle commands and stages them on a link.
type Driver struct {
	link    Stager
	vehicle Vehicle
	out     io.Writer
	log     *zap.Logger
}

// NewDriver creates a driver staging on link and echoing to out. A nil out
// discards the echo.
func NewDriver(link Stager, out io.Writer, logger *zap.Logger) *Driver {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{link: link, out: out, log: logger}
}

// Vehicle returns the current command state.
func (d *Driver) Vehicle() Vehicle {
	return d.vehicle
}

// Handle applies one key. It returns false once the key asked to quit.
func (d *Driver) Handle(k Key) bool {
	switch k {
	case KeyQuit:
		d.link.Quit()
		d.printf("%s", bye)
		return false
	case KeyUp:
		// The car wiring drives forward on negative throttle.
		d.vehicle.AdjustThrottle(-ThrottleRate)
	case KeyDown:
		d.vehicle.AdjustThrottle(ThrottleRate)
	case KeyLeft:
		d.vehicle.AdjustSteering(SteeringRate)
	case KeyRight:
		d.vehicle.AdjustSteering(-SteeringRate)
	default:
		return true
	}

	move := d.vehicle.Move()
	d.link.Stage(move)
	d.printf("throttle %+.2f  steering %+.2f", move.Throttle, move.Steering)
	return true
}

// Run reads keys from src until a quit key, ctx ends, or src fails.
func (d *Driver) Run(ctx context.Context, src KeySource) error {
	d.printf("%s", header)
	d.printf("%s", menu)

	for ctx.Err() == nil {
		k, raw, err := src.ReadKey()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.link.Quit()
				return nil
			}
			return fmt.Errorf("reading key: %w", err)
		}
		if k == KeyOther {
			d.log.Debug("ignored key", zap.Uint8("byte", raw))
			continue
		}
		if !d.Handle(k) {
			return nil
		}
	}
	return ctx.Err()
}

// printf writes one line; raw terminals need the explicit carriage return.
func (d *Driver) printf(format string, args ...interface{}) {
	fmt.Fprintf(d.out, format+"\r\n", args...)
}
