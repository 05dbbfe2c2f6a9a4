package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/ammds-bridge/internal/config"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
	"github.com/John-Robertt/ammds-bridge/internal/store"
)

// Dependencies 是子命令共享的运行时依赖（通过 kong.Bind 注入 Run）。
type Dependencies struct {
	Ctx      context.Context
	Stdout   io.Writer
	Stderr   io.Writer
	Config   config.Config
	Logger   zerolog.Logger
	KV       store.KV
	Servers  *servers.Registry
	Handlers *handler.Registry
}

// CLI 是 kong 的命令树。
type CLI struct {
	Config  string `short:"c" type:"path" env:"AMMDS_CONFIG" help:"配置文件路径（默认查找 ./ammds.yaml 与 ~/.ammds/ammds.yaml）"`
	Verbose bool   `short:"v" help:"输出 debug 日志"`

	Serve    ServeCmd    `cmd:"" help:"启动特权侧服务：relay websocket + HTTP API + 定时健康检查"`
	Extract  ExtractCmd  `cmd:"" help:"抓取并解析详情页，只输出结果，不导入"`
	Import   ImportCmd   `cmd:"" help:"抓取、解析并导入到默认 AMMDS 服务端"`
	Servers  ServersCmd  `cmd:"" help:"管理 AMMDS 服务端登记"`
	Handlers HandlersCmd `cmd:"" help:"列出内置站点 handler"`
}

// ServeCmd 是 "serve" 子命令。
type ServeCmd struct {
	Addr string `help:"监听地址（覆盖 server.addr）"`
}

// ExtractCmd 是 "extract" 子命令。
type ExtractCmd struct {
	URLs        []string `arg:"" name:"url" help:"详情页 URL（可多个）"`
	HTML        string   `type:"existingfile" help:"从本地 HTML 文件解析（只接受一个 URL，不发网络请求）"`
	NFO         string   `type:"path" help:"把解析结果导出为 NFO 到该目录"`
	NFOKeep     bool     `name:"nfo-keep" help:"已存在的 NFO 不覆盖"`
	Refresh     bool     `help:"忽略页面缓存（fetch.cache_dir），重新抓取"`
	Concurrency int      `help:"并发数（默认 fetch.concurrency）"`
}

// ImportCmd 是 "import" 子命令。
type ImportCmd struct {
	URLs        []string `arg:"" name:"url" help:"详情页 URL（可多个）"`
	Favorite    bool     `xor:"action" help:"导入并收藏"`
	Subscribe   bool     `xor:"action" help:"导入并订阅"`
	Attachments bool     `help:"把海报/背景图下载为附件一并上传（也可配置 fetch.attachments=true）"`
	NFO         string   `type:"path" help:"导入成功后额外导出 NFO 到该目录"`
	NFOKeep     bool     `name:"nfo-keep" help:"已存在的 NFO 不覆盖"`
	Refresh     bool     `help:"忽略页面缓存（fetch.cache_dir），重新抓取"`
	Concurrency int      `help:"并发数（默认 fetch.concurrency）"`
}

// ServersCmd 是 "servers" 命令组。
type ServersCmd struct {
	List    ServersListCmd    `cmd:"" default:"1" help:"列出已登记的服务端"`
	Add     ServersAddCmd     `cmd:"" help:"登记（或覆盖）服务端"`
	Delete  ServersDeleteCmd  `cmd:"" help:"删除服务端登记"`
	Default ServersDefaultCmd `cmd:"" help:"设为默认服务端"`
	Check   ServersCheckCmd   `cmd:"" help:"立即对启用的服务端做健康检查"`
}

type ServersListCmd struct{}

type ServersAddCmd struct {
	URL     string `arg:"" help:"服务端地址，形如 http://host:port"`
	Name    string `help:"显示名称" default:"AMMDS"`
	Secret  string `env:"AMMDS_SECRET" help:"x-api-key 密钥"`
	Enabled bool   `negatable:"" default:"true" help:"是否启用"`
	Default bool   `help:"同时设为默认"`
}

type ServersDeleteCmd struct {
	URL string `arg:"" help:"服务端地址"`
}

type ServersDefaultCmd struct {
	URL string `arg:"" help:"服务端地址"`
}

type ServersCheckCmd struct{}

// HandlersCmd 是 "handlers" 子命令。
type HandlersCmd struct {
	JSON bool `help:"以 JSON 输出"`
}
