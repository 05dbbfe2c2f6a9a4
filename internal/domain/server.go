package domain

// DefaultServerName 是未指定名称时的服务端名称。
const DefaultServerName = "AMMDS"

// ServerRegistration 描述一个已登记的 AMMDS 服务端。
//
// 约束：
// - URL 是唯一键，形如 http(s)://host:port（不带尾部 '/'）
// - 同一时刻最多一个 Preferred；只有 Enabled 的登记才参与选择
type ServerRegistration struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Secret    string `json:"secret,omitempty"`
	Enabled   bool   `json:"enabled"`
	Preferred bool   `json:"preferred"`

	// Status 是最近一次健康检查结果；nil 表示尚未检查。
	Status *bool `json:"status,omitempty"`
}
