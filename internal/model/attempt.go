package model

import "time"

// AttemptOutcome 一次验证码提交在远端的结果。
type AttemptOutcome string

const (
	OutcomeAccepted     AttemptOutcome = "accepted"
	OutcomeRejected     AttemptOutcome = "rejected"
	OutcomeUndetermined AttemptOutcome = "undetermined"
)

// ChallengeAttempt 一次验证码识别尝试的记录。
// 仅在单次重试循环内有效，随 run 一起落库。
type ChallengeAttempt struct {
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	LengthOK   bool           `json:"lengthOk"`
	Confidence float64        `json:"confidence,omitempty"`
	Outcome    AttemptOutcome `json:"outcome"`
	AtMs       int64          `json:"atMs"`
}

// RunRecord 一次完整购票流程的落库记录。
type RunRecord struct {
	ID           string             `json:"id"`
	EventURL     string             `json:"eventUrl"`
	TargetShow   string             `json:"targetShow,omitempty"`
	TargetArea   string             `json:"targetArea,omitempty"`
	TicketCount  int                `json:"ticketCount"`
	ChosenArea   string             `json:"chosenArea,omitempty"`
	FinalState   BotState           `json:"finalState"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      time.Time          `json:"endedAt"`
	Attempts     []ChallengeAttempt `json:"attempts,omitempty"`
}
