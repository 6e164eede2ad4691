package model

import "time"

// BotState 购票机器人状态机的状态。
// 除 SelectingTickets -> SolvingCaptcha -> Submitting -> SelectingTickets
// 的重试环外，状态只会沿列表顺序向前推进。
type BotState string

const (
	StateIdle             BotState = "idle"
	StateInitializing     BotState = "initializing"
	StateWaiting          BotState = "waiting"
	StateLoggingIn        BotState = "logging_in"
	StateSelectingShow    BotState = "selecting_show"
	StateSelectingArea    BotState = "selecting_area"
	StateSelectingTickets BotState = "selecting_tickets"
	StateSolvingCaptcha   BotState = "solving_captcha"
	StateSubmitting       BotState = "submitting"
	StateSuccess          BotState = "success"
	StateFailed           BotState = "failed"
	StateError            BotState = "error"
)

// Terminal 是否为终止状态。终止后状态机不再变化。
func (s BotState) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateError
}

// StatusReport 某一时刻的状态快照，供 CLI / monitor 读取。
type StatusReport struct {
	RunID        string   `json:"runId"`
	State        BotState `json:"state"`
	EventURL     string   `json:"eventUrl"`
	TargetShow   string   `json:"targetShow,omitempty"`
	TargetArea   string   `json:"targetArea,omitempty"`
	TicketCount  int      `json:"ticketCount"`
	ChosenArea   string   `json:"chosenArea,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	StartedAtMs  int64    `json:"startedAtMs,omitempty"`
	EndedAtMs    int64    `json:"endedAtMs,omitempty"`
	DurationSec  float64  `json:"durationSeconds,omitempty"`
}

// Duration 起止时间均已记录时返回耗时，否则返回 0。
func (r StatusReport) Duration() time.Duration {
	if r.StartedAtMs == 0 || r.EndedAtMs == 0 {
		return 0
	}
	return time.Duration(r.EndedAtMs-r.StartedAtMs) * time.Millisecond
}
