package Filters

import "fmt"

/*
三电平迟滞状态机
把每个采样点分成 below-low / between / above-high 三档，
再由一个显式的状态机 (Idle -> RisingEdge -> InBeat -> FallingEdge) 给出节拍的起止时刻。

起点 (onset) = 最后一个 below-low 样本时间 与 第一个 above-high 样本时间 的中点
终点 (offset) = 最后一个 above-high 样本时间 与 第一个 below-low 样本时间 的中点

不应期 (refractory) 比较的是 候选 onset 与 上一个已接受节拍的 above-high 穿越时刻，
不是上一个 onset。这个行为是刻意保留的。
*/

// Level 是单个采样点相对两条阈值的位置
type Level int

const (
	LevelBelow   Level = iota // d < low
	LevelBetween              // low <= d <= high
	LevelAbove                // d > high
)

// Classify 把一个幅度值归入三档
func Classify(v, low, high float64) Level {
	switch {
	case v < low:
		return LevelBelow
	case v > high:
		return LevelAbove
	default:
		return LevelBetween
	}
}

// BeatState 状态机的命名状态
type BeatState int

const (
	StateIdle        BeatState = iota // 在 low 以下 (或尚未武装)
	StateRisingEdge                   // 离开 low，尚未到达 high
	StateInBeat                       // 在 high 以上
	StateFallingEdge                  // 离开 high，尚未回到 low
)

func (s BeatState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRisingEdge:
		return "RisingEdge"
	case StateInBeat:
		return "InBeat"
	case StateFallingEdge:
		return "FallingEdge"
	}
	return fmt.Sprintf("BeatState(%d)", int(s))
}

// EventKind 每一步转移产生的事件
type EventKind int

const (
	EventNone      EventKind = iota
	EventOnset               // 接受了一个新的节拍起点
	EventOffset              // 当前节拍结束
	EventFalseRise           // 上升途中跌回 low 以下，丢弃
	EventRejected            // 到达 high 但落在不应期内，丢弃
)

// Event 转移结果。Onset/Offset 只在对应事件里有意义
type Event struct {
	Kind         EventKind
	Onset        float64
	Offset       float64
	HighCrossing float64
}

// BeatStateMachine 节拍检测状态机
// 所有跨样本的扫描状态都收在这里，Step 是唯一的转移函数
type BeatStateMachine struct {
	refractory float64

	state BeatState
	armed bool // Idle 时是否见过 below-low 样本 (只有见过才允许开始上升)

	riseStart float64 // 最近一个 below-low 样本的时间
	fallStart float64 // 最近一个 above-high 样本的时间

	onset        float64
	highCrossing float64

	hasPrev          bool
	prevHighCrossing float64
}

// NewBeatStateMachine 创建状态机
func NewBeatStateMachine(refractory float64) *BeatStateMachine {
	return &BeatStateMachine{
		refractory: refractory,
		state:      StateIdle,
	}
}

// State 当前状态
func (m *BeatStateMachine) State() BeatState {
	return m.state
}

// Step 输入一个采样点 (时间 t, 已分档的 level)，返回产生的事件
func (m *BeatStateMachine) Step(t float64, level Level) Event {
	switch m.state {
	case StateIdle:
		switch level {
		case LevelBelow:
			m.armed = true
			m.riseStart = t
		case LevelBetween:
			if m.armed {
				m.state = StateRisingEdge
			}
		case LevelAbove:
			// 一步从 below 跳到 above
			if m.armed {
				return m.reachHigh(t)
			}
		}

	case StateRisingEdge:
		switch level {
		case LevelBelow:
			m.state = StateIdle
			m.riseStart = t
			return Event{Kind: EventFalseRise}
		case LevelAbove:
			return m.reachHigh(t)
		}

	case StateInBeat:
		switch level {
		case LevelAbove:
			m.fallStart = t
		case LevelBetween:
			m.state = StateFallingEdge
		case LevelBelow:
			return m.reachLow(t)
		}

	case StateFallingEdge:
		switch level {
		case LevelAbove:
			// 下降被打断，重新等待连续下降
			m.state = StateInBeat
			m.fallStart = t
		case LevelBelow:
			return m.reachLow(t)
		}
	}
	return Event{Kind: EventNone}
}

// Finish 序列结束。如果还在节拍中，offset 取最后时间戳
func (m *BeatStateMachine) Finish(lastT float64) Event {
	if m.state != StateInBeat && m.state != StateFallingEdge {
		return Event{Kind: EventNone}
	}
	m.state = StateIdle
	m.armed = false
	return Event{Kind: EventOffset, Onset: m.onset, Offset: lastT, HighCrossing: m.highCrossing}
}

func (m *BeatStateMachine) reachHigh(t float64) Event {
	onset := (m.riseStart + t) / 2
	if m.hasPrev && onset-m.prevHighCrossing < m.refractory {
		// 不应期内：放弃这次上升，必须先回到 low 以下才能重新武装
		m.state = StateIdle
		m.armed = false
		return Event{Kind: EventRejected, Onset: onset, HighCrossing: t}
	}

	m.state = StateInBeat
	m.onset = onset
	m.highCrossing = t
	m.fallStart = t
	m.hasPrev = true
	m.prevHighCrossing = t
	return Event{Kind: EventOnset, Onset: onset, HighCrossing: t}
}

func (m *BeatStateMachine) reachLow(t float64) Event {
	offset := (m.fallStart + t) / 2
	m.state = StateIdle
	m.armed = true
	m.riseStart = t
	return Event{Kind: EventOffset, Onset: m.onset, Offset: offset, HighCrossing: m.highCrossing}
}
