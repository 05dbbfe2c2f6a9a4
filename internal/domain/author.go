package domain

// Author 是 handler 的作者信息（静态、不可变，与 handler 一一对应）。
type Author struct {
	Name        string `json:"name"`
	GitHub      string `json:"github"`
	Description string `json:"description,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Email       string `json:"email,omitempty"`
	Website     string `json:"website,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
}

// OfficialAuthor 是内置 handler 共用的作者信息。
var OfficialAuthor = Author{
	Name:        "AMMDS",
	GitHub:      "https://github.com/QYG2297248353/AMMDS-Extensions",
	Description: "AMMDS Official Extension",
	Email:       "ammds@lifebus.top",
	Website:     "https://ammds.lifebus.top",
	Telegram:    "https://t.me/+OgCuWhS93zczZjhl",
	Twitter:     "https://x.com/MS2297248353",
}
