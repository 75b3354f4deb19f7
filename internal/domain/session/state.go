package session

import (
	"sync"

	"cuishou-server-go/internal/domain/eventbus"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

// State 通话会话所处的阶段
type State int32

const (
	StateIdle State = iota
	StateGreeting
	StateListening
	StateThinking
	StateSpeaking
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// 允许的状态迁移，回到idle任何状态都可以
var transitions = map[State][]State{
	StateIdle:        {StateGreeting, StateListening},
	StateGreeting:    {StateSpeaking, StateListening},
	StateListening:   {StateThinking},
	StateThinking:    {StateSpeaking, StateListening},
	StateSpeaking:    {StateListening, StateInterrupted},
	StateInterrupted: {StateListening, StateThinking},
}

// Machine 会话状态机。
// 迁移经过校验后同步通知，前端的session_status就来自onChange
type Machine struct {
	sessionID string
	logger    *logging.Logger
	onChange  func(from, to State)

	mutex sync.Mutex
	state State
}

// NewMachine 创建状态机，初始为idle
func NewMachine(sessionID string, logger *logging.Logger, onChange func(from, to State)) *Machine {
	return &Machine{
		sessionID: sessionID,
		logger:    logger,
		onChange:  onChange,
	}
}

// Current 当前状态
func (m *Machine) Current() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

// TransitionTo 尝试迁移，不合法的迁移返回错误且状态不变
func (m *Machine) TransitionTo(to State) error {
	m.mutex.Lock()
	from := m.state
	if from == to {
		m.mutex.Unlock()
		return nil
	}
	if to != StateIdle && !allowed(from, to) {
		m.mutex.Unlock()
		return platformerrors.New(platformerrors.KindInternal, "session.TransitionTo",
			"不允许的状态迁移: "+from.String()+" -> "+to.String())
	}
	m.state = to
	m.mutex.Unlock()

	m.logger.DebugTag("会话", "状态迁移 %s -> %s", from, to)
	eventbus.Publish(eventbus.EventSessionStateChanged, eventbus.SessionStateEventData{
		SessionID: m.sessionID,
		From:      from.String(),
		To:        to.String(),
	})
	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// Reset 无条件回到idle
func (m *Machine) Reset() {
	_ = m.TransitionTo(StateIdle)
}

func allowed(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
