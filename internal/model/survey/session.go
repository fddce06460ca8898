package survey

import "time"

// State 问卷会话生命周期中的阶段
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateCollecting State = "collecting"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
	StateClosed     State = "closed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateClosed || s == StateFailed
}

// Session 参与者的一次实验运行, 只保存在内存中
type Session struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event 生命周期状态转换事件
type Event struct {
	SessionID string    `json:"sessionId"`
	From      State     `json:"from,omitempty"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
