// Package all 汇总内置 handler，顺序即发现顺序（Resolve 取第一个匹配者）。
package all

import (
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/handler/avdanyuwiki"
	"github.com/John-Robertt/ammds-bridge/internal/handler/javbus"
	"github.com/John-Robertt/ammds-bridge/internal/handler/javdb"
)

// Modules 返回内置模块列表（每次返回新切片）。
func Modules() []handler.Module {
	return []handler.Module{
		{Path: "handler/javbus", New: javbus.New},
		{Path: "handler/javdb", New: javdb.New},
		{Path: "handler/avdanyuwiki", New: avdanyuwiki.New},
	}
}
