package Filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, LevelBelow, Classify(-1, -0.5, 0.5))
	assert.Equal(t, LevelBetween, Classify(-0.5, -0.5, 0.5))
	assert.Equal(t, LevelBetween, Classify(0.5, -0.5, 0.5))
	assert.Equal(t, LevelAbove, Classify(0.6, -0.5, 0.5))
}

func TestStateMachine_UnarmedIdleIgnoresRise(t *testing.T) {
	m := NewBeatStateMachine(0)
	assert.Equal(t, EventNone, m.Step(0, LevelBetween).Kind)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, EventNone, m.Step(1, LevelAbove).Kind)
	assert.Equal(t, StateIdle, m.State())
}

func TestStateMachine_RiseAndFall(t *testing.T) {
	m := NewBeatStateMachine(0)
	m.Step(0, LevelBelow)
	m.Step(1, LevelBelow)

	assert.Equal(t, EventNone, m.Step(2, LevelBetween).Kind)
	assert.Equal(t, StateRisingEdge, m.State())

	ev := m.Step(3, LevelAbove)
	assert.Equal(t, EventOnset, ev.Kind)
	assert.Equal(t, 2.0, ev.Onset)
	assert.Equal(t, 3.0, ev.HighCrossing)
	assert.Equal(t, StateInBeat, m.State())

	m.Step(4, LevelAbove)
	assert.Equal(t, EventNone, m.Step(5, LevelBetween).Kind)
	assert.Equal(t, StateFallingEdge, m.State())

	ev = m.Step(6, LevelBelow)
	assert.Equal(t, EventOffset, ev.Kind)
	assert.Equal(t, 2.0, ev.Onset)
	assert.Equal(t, 5.0, ev.Offset)
	assert.Equal(t, StateIdle, m.State())
}

func TestStateMachine_FalseRise(t *testing.T) {
	m := NewBeatStateMachine(0)
	m.Step(0, LevelBelow)
	m.Step(1, LevelBetween)
	ev := m.Step(2, LevelBelow)
	assert.Equal(t, EventFalseRise, ev.Kind)
	assert.Equal(t, StateIdle, m.State())

	// 重新上升时，起点取最新的 below 样本
	ev = m.Step(3, LevelAbove)
	assert.Equal(t, EventOnset, ev.Kind)
	assert.Equal(t, 2.5, ev.Onset)
}

func TestStateMachine_FallingEdgeBackToInBeat(t *testing.T) {
	m := NewBeatStateMachine(0)
	m.Step(0, LevelBelow)
	m.Step(1, LevelAbove)
	m.Step(2, LevelBetween)
	m.Step(3, LevelAbove)
	assert.Equal(t, StateInBeat, m.State())

	m.Step(4, LevelBetween)
	ev := m.Step(5, LevelBelow)
	assert.Equal(t, EventOffset, ev.Kind)
	assert.Equal(t, 4.0, ev.Offset)
}

func TestStateMachine_RefractoryRejectionDisarms(t *testing.T) {
	m := NewBeatStateMachine(10)
	m.Step(0, LevelBelow)
	m.Step(1, LevelAbove)
	m.Step(2, LevelBelow)

	ev := m.Step(3, LevelAbove)
	assert.Equal(t, EventRejected, ev.Kind)
	assert.Equal(t, StateIdle, m.State())

	// 被拒绝后必须先回到 low 以下
	assert.Equal(t, EventNone, m.Step(4, LevelBetween).Kind)
	assert.Equal(t, StateIdle, m.State())
}

func TestStateMachine_Finish(t *testing.T) {
	m := NewBeatStateMachine(0)
	assert.Equal(t, EventNone, m.Finish(1).Kind)

	m.Step(0, LevelBelow)
	m.Step(1, LevelAbove)
	m.Step(2, LevelBetween)
	ev := m.Finish(2)
	assert.Equal(t, EventOffset, ev.Kind)
	assert.Equal(t, 2.0, ev.Offset)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, "FallingEdge", StateFallingEdge.String())
}
