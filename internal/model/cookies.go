package model

// Cookie 浏览器 cookie 的落库形态。
// 登录态按 profile 标签存入 sqlite，下次启动时回灌进浏览器。
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// LoginProfile 一份持久化的登录会话。
type LoginProfile struct {
	Label     string   `json:"label"`
	Cookies   []Cookie `json:"cookies"`
	UpdatedMs int64    `json:"updatedMs"`
}
