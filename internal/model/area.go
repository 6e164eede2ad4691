package model

// AreaStatus 区域候选从页面文案推导出的状态。
type AreaStatus string

const (
	AreaSoldOut    AreaStatus = "sold_out"
	AreaLimited    AreaStatus = "limited"
	AreaHotSelling AreaStatus = "hot_selling"
	AreaUnknown    AreaStatus = "unknown"
)

// AreaCandidate 选区页上的一个可选区域。
// 每次解析选区页时重建，不做持久化。
type AreaCandidate struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Status    AreaStatus `json:"status"`
	Remaining int        `json:"remaining,omitempty"`
	Eligible  bool       `json:"eligible"`
}
