// Package fsx 提供导出用的原子文件写入（同目录临时文件 + rename）。
package fsx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// 测试通过替换它模拟 rename 失败。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标已存在但不是普通文件。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// WriteFile 原子写入 dir/name，已存在则覆盖。页面缓存与 NFO 导出共用。
func WriteFile(dir, name string, data []byte) error {
	dst, err := target(dir, name)
	if err != nil {
		return err
	}
	return commit(dst, data)
}

// WriteFileNoOverwrite 与 WriteFile 相同，但目标已存在时返回 os.ErrExist。
//
// 约束：目标是目录或其他非普通文件时返回 *PathTypeConflictError。
func WriteFileNoOverwrite(dir, name string, data []byte) error {
	dst, err := target(dir, name)
	if err != nil {
		return err
	}
	fi, err := os.Lstat(dst)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return commit(dst, data)
	case err != nil:
		return err
	case fi.IsDir():
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
	case !fi.Mode().IsRegular():
		return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return os.ErrExist
}

// target 拒绝带路径分隔符的文件名：调用方只能写到 dir 的直接子项。
func target(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("非法文件名：%q", name)
	}
	return filepath.Join(filepath.Clean(dir), name), nil
}

func commit(dst string, data []byte) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = renameFunc(tmp.Name(), dst); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 尽力把 rename 落盘；Windows 不支持对目录 fsync。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if f, err := os.Open(dir); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
}
