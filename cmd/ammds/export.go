package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/ammds-bridge/internal/app"
	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/infra/fsx"
	"github.com/John-Robertt/ammds-bridge/internal/nfo"
)

var _ app.Exporter = (*nfoExporter)(nil)

// nfoExporter 写 <Dir>/<CODE>/<CODE>.nfo（原子写入）。
//
// 约束：Keep=true 时已存在的 NFO 保持不动（视为成功）。
type nfoExporter struct {
	Dir  string
	Keep bool
}

func (e *nfoExporter) Export(meta domain.Metadata) error {
	code, ok := domain.ParseCode(meta.UniqueID)
	if !ok {
		return fmt.Errorf("uniqueid 不是合法番号：%q", meta.UniqueID)
	}
	b, err := nfo.Encode(meta)
	if err != nil {
		return err
	}
	dir := filepath.Join(e.Dir, string(code))
	name := string(code) + ".nfo"
	if !e.Keep {
		return fsx.WriteFile(dir, name, b)
	}
	err = fsx.WriteFileNoOverwrite(dir, name, b)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}
