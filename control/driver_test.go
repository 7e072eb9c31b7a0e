package control

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingLink struct {
	staged []Message
	quit   bool
}

func (r *recordingLink) Stage(m Message) { r.staged = append(r.staged, m) }
func (r *recordingLink) Quit()           { r.quit = true }

func TestDriverKeyMapping(t *testing.T) {
	tests := []struct {
		key  Key
		want MoveMessage
	}{
		{KeyUp, MoveMessage{Throttle: -ThrottleRate}},
		{KeyDown, MoveMessage{Throttle: ThrottleRate}},
		{KeyLeft, MoveMessage{Steering: SteeringRate}},
		{KeyRight, MoveMessage{Steering: -SteeringRate}},
	}

	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			link := &recordingLink{}
			d := NewDriver(link, nil, zaptest.NewLogger(t))

			assert.True(t, d.Handle(tt.key))
			require.Len(t, link.staged, 1)
			assert.Equal(t, tt.want, link.staged[0])
		})
	}
}

func TestDriverIgnoresOtherKeys(t *testing.T) {
	link := &recordingLink{}
	d := NewDriver(link, nil, nil)

	assert.True(t, d.Handle(KeyOther))
	assert.Empty(t, link.staged)
	assert.False(t, link.quit)
}

func TestDriverRun(t *testing.T) {
	link := &recordingLink{}
	var out bytes.Buffer
	d := NewDriver(link, &out, zaptest.NewLogger(t))

	src := newKeyReader(strings.NewReader("ww\x1b[Cxq" + "ssss"))
	require.NoError(t, d.Run(context.Background(), src))

	assert.True(t, link.quit)
	require.Len(t, link.staged, 3, "keys after quit are not read")
	assert.Equal(t, MoveMessage{Throttle: -0.2, Steering: -SteeringRate}, link.staged[2])
	v := d.Vehicle()
	assert.InDelta(t, -0.2, v.Throttle(), 1e-9)

	assert.Contains(t, out.String(), menu)
	assert.Contains(t, out.String(), bye)
}

func TestDriverRunQuitsOnEOF(t *testing.T) {
	link := &recordingLink{}
	d := NewDriver(link, nil, nil)

	require.NoError(t, d.Run(context.Background(), newKeyReader(strings.NewReader("s"))))
	assert.True(t, link.quit)
	assert.Len(t, link.staged, 1)
}
