package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{Up, "UP"},
		{Down, "DOWN"},
		{Left, "LEFT"},
		{Right, "RIGHT"},
		{Direction(9), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dir.String())
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("left")
	require.NoError(t, err)
	assert.Equal(t, Left, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestEmitterOrder(t *testing.T) {
	var e Emitter
	var got []string
	e.Subscribe(func(ev Event) { got = append(got, "first") })
	e.Subscribe(func(ev Event) { got = append(got, "second") })

	e.Emit(ReturnPressed{})
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestEmitterCancel(t *testing.T) {
	var e Emitter
	count := 0
	cancel := e.Subscribe(func(Event) { count++ })
	e.Emit(EscapePressed{})
	cancel()
	cancel()
	e.Emit(EscapePressed{})

	assert.Equal(t, 1, count)
	assert.Zero(t, e.Len())
}

func TestEmitterPayload(t *testing.T) {
	var e Emitter
	var got []Event
	e.Subscribe(func(ev Event) { got = append(got, ev) })

	e.Emit(CharacterPressed{Char: 'a'})
	e.Emit(DirectionPressed{Direction: Right})

	assert.Equal(t, []Event{CharacterPressed{Char: 'a'}, DirectionPressed{Direction: Right}}, got)
}

func TestEmitterUnsubscribeDuringEmit(t *testing.T) {
	var e Emitter
	calls := 0
	var cancel func()
	cancel = e.Subscribe(func(Event) {
		calls++
		cancel()
	})
	e.Subscribe(func(Event) { calls++ })

	e.Emit(Activated{})
	e.Emit(Activated{})
	assert.Equal(t, 3, calls)
}
