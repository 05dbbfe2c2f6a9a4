package domain

// SessionState 是特权侧持有的会话状态。受限侧只能通过 relay 消息读取，不能直接修改。
type SessionState struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	ActiveTabID   int    `json:"activateTabId"`
	PreviousTabID int    `json:"previousTabId,omitempty"`
	WindowID      int    `json:"windowId,omitempty"`
	IsFavorited   bool   `json:"isFavorited"`
	IsSubscribed  bool   `json:"isSubscribed"`
}

// TabInfo 是一个标签页的身份信息（标题 + URL）。
type TabInfo struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}
