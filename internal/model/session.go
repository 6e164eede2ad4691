package model

import "time"

// PurchaseSession 一次购票任务的不可变目标参数。
// 在编排器构造时创建，整个生命周期内不再修改。
type PurchaseSession struct {
	EventURL    string `json:"eventUrl"`
	TargetShow  string `json:"targetShow,omitempty"`
	TargetArea  string `json:"targetArea,omitempty"`
	TicketCount int    `json:"ticketCount"`

	// SaleOpenAt 为零值时视为“已开卖”，调度器立即放行。
	SaleOpenAt time.Time     `json:"saleOpenAt,omitempty"`
	LeadTime   time.Duration `json:"-"`

	MaxCaptchaRetry int `json:"maxCaptchaRetry"`
	MaxSubmitCycles int `json:"maxSubmitCycles"`
}
