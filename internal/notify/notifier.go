package notify

import (
	"context"

	"tixbot/internal/model"
)

// RunFinishedEvent 一次购票流程到达终止态。
type RunFinishedEvent struct {
	At          int64          `json:"atMs"`
	RunID       string         `json:"runId"`
	EventURL    string         `json:"eventUrl"`
	TargetShow  string         `json:"targetShow,omitempty"`
	ChosenArea  string         `json:"chosenArea,omitempty"`
	TicketCount int            `json:"ticketCount"`
	FinalState  model.BotState `json:"finalState"`
	Error       string         `json:"error,omitempty"`
	DurationSec float64        `json:"durationSeconds"`
}

type Notifier interface {
	NotifyRunFinished(ctx context.Context, evt RunFinishedEvent)
}
