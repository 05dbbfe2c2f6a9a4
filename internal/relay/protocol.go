// Package relay 连接受限侧（解析 + 请求发起）与特权侧（真正的网络请求 + 会话状态）。
//
// 两侧之间只有消息：请求带关联 id，每个请求恰好得到一个回复；通知没有回复。
// 传输层可以是进程内管道（Pipe）或 websocket（WSPeer），语义一致。
package relay

import (
	"encoding/json"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

// 消息名。
const (
	MsgFetchAPI     = "fetch-api"
	MsgGetActiveTab = "get-active-tab"
	MsgGetTab       = "get-tab"
	MsgTabActive    = "tab-active"
)

// Message 是线上帧。Reply=true 表示对同 ID 请求的回复；ID 为空表示通知。
type Message struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Reply bool            `json:"reply,omitempty"`
}

// FetchRequest 是 fetch-api 的请求载荷。
type FetchRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// FetchResponse 是 fetch-api 的回复载荷。HTTP 状态码本身不算失败。
type FetchResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TabQuery 是 get-active-tab / get-tab 的请求载荷。
type TabQuery struct {
	TabID int `json:"tabId,omitempty"`
}

// TabInfo 是标签页查询与 tab-active 通知的载荷。
type TabInfo = domain.TabInfo
