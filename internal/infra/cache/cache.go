package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/infra/fsx"
)

// Store 提供 <root>/ 下的页面快照与元数据缓存。
//
// 布局：
// - <root>/pages/<handler>/<CODE>.html
// - <root>/metadata/<handler>/<CODE>.json
//
// 约束：ReadOnly=true 时只允许读。
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath 返回页面快照的绝对路径。
func (s Store) PagePath(handler string, code domain.Code) (string, error) {
	return s.path("pages", handler, code, ".html")
}

// MetadataPath 返回元数据 JSON 的绝对路径。
func (s Store) MetadataPath(handler string, code domain.Code) (string, error) {
	return s.path("metadata", handler, code, ".json")
}

func (s Store) ReadPage(handler string, code domain.Code) ([]byte, bool, error) {
	path, err := s.PagePath(handler, code)
	if err != nil {
		return nil, false, err
	}
	return readFile(path)
}

func (s Store) ReadMetadata(handler string, code domain.Code) ([]byte, bool, error) {
	path, err := s.MetadataPath(handler, code)
	if err != nil {
		return nil, false, err
	}
	return readFile(path)
}

func (s Store) WritePage(handler string, code domain.Code, html []byte) error {
	return s.write("pages", handler, code, ".html", html)
}

func (s Store) WriteMetadata(handler string, code domain.Code, json []byte) error {
	return s.write("metadata", handler, code, ".json", json)
}

func (s Store) path(kind, handler string, code domain.Code, ext string) (string, error) {
	h, err := cleanHandler(handler)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("code 不能为空")
	}
	return filepath.Join(s.Root, kind, h, string(code)+ext), nil
}

func (s Store) write(kind, handler string, code domain.Code, ext string, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.path(kind, handler, code, ext)
	if err != nil {
		return err
	}
	return fsx.WriteFile(filepath.Dir(path), filepath.Base(path), data)
}

func readFile(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

var handlerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanHandler(h string) (string, error) {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return "", fmt.Errorf("handler 不能为空")
	}
	// 只防路径穿越；handler 名称本身来自注册表。
	if !handlerNameRE.MatchString(h) {
		return "", fmt.Errorf("非法 handler：%q", h)
	}
	return h, nil
}
