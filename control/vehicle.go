package control

import "math"

const (
	// MaxCommand bounds throttle and steering symmetrically.
	MaxCommand = 1.0

	ThrottleRate = 0.1
	SteeringRate = 0.25

	// Values closer to zero than this are treated as zero, so repeated
	// float steps land exactly on it.
	zeroEpsilon = 1e-9
)

// Vehicle is the command state of the remote car.
type Vehicle struct {
	throttle float64
	steering float64
}

func (v *Vehicle) Throttle() float64 { return v.throttle }
func (v *Vehicle) Steering() float64 { return v.steering }

// AdjustThrottle adds delta to the throttle and returns the new value.
func (v *Vehicle) AdjustThrottle(delta float64) float64 {
	v.throttle = clampCommand(v.throttle, v.throttle+delta)
	return v.throttle
}

// AdjustSteering adds delta to the steering and returns the new value.
func (v *Vehicle) AdjustSteering(delta float64) float64 {
	v.steering = clampCommand(v.steering, v.steering+delta)
	return v.steering
}

// Move snapshots the current command.
func (v *Vehicle) Move() MoveMessage {
	return MoveMessage{Throttle: v.throttle, Steering: v.steering}
}

// clampCommand never lets a value pass through zero in one step: a change
// that would flip the sign stops at zero.
func clampCommand(cur, next float64) float64 {
	if math.Abs(next) < zeroEpsilon {
		return 0
	}
	if (next > 0 && cur < 0) || (next < 0 && cur > 0) {
		return 0
	}
	return math.Max(-MaxCommand, math.Min(MaxCommand, next))
}
