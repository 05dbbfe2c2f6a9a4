// Package ammds 封装 AMMDS 服务端接口：响应信封、影片导入、健康检查。
//
// 所有请求都经由 relay.Client 发出；本包不直接做网络 I/O。
package ammds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
)

const (
	PathMovieImport = "/api/v1/movie/import"
	PathHealthCheck = "/api/v1/health/check"
)

// Envelope 是服务端统一响应结构。
//
// 约束：成功与否只看 Code 是否落在 [200,300)，与 HTTP 状态码无关。
type Envelope[T any] struct {
	Code      int    `json:"code"`
	Data      T      `json:"data"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func (e Envelope[T]) OK() bool { return e.Code >= 200 && e.Code < 300 }

// Decode 把 relay 回传的 data（已解码 JSON 或文本）还原为信封。
// 非 JSON 文本视为应用错误（Code=0，Message=原文）。
func Decode[T any](data any) (Envelope[T], error) {
	var env Envelope[T]
	var raw []byte
	switch x := data.(type) {
	case nil:
		return env, &relay.ApplicationError{Message: "空响应"}
	case string:
		s := strings.TrimSpace(x)
		if !strings.HasPrefix(s, "{") {
			return env, &relay.ApplicationError{Message: s}
		}
		raw = []byte(s)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return env, &relay.ApplicationError{Message: err.Error()}
		}
		raw = b
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, &relay.ApplicationError{Message: fmt.Sprintf("响应不是合法信封：%v", err)}
	}
	if !env.OK() {
		return env, &relay.ApplicationError{Code: env.Code, Message: env.Message}
	}
	return env, nil
}

// validate 作为 relay.Options.Validate：信封失败不会被重试。
func validate(data any) error {
	_, err := Decode[json.RawMessage](data)
	return err
}

// API 是 AMMDS 接口调用入口。
type API struct {
	Client     *relay.Client
	RetryTimes int
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

func (a *API) options() relay.Options {
	return relay.Options{RetryTimes: a.RetryTimes, RetryDelay: a.RetryDelay, Validate: validate}
}

// ImportMovie 以 multipart 表单提交元数据；附件作为文件分段上传。
func (a *API) ImportMovie(ctx context.Context, meta domain.Metadata) (bool, error) {
	if err := meta.Validate(); err != nil {
		return false, err
	}
	data, err := a.Client.PostForm(ctx, PathMovieImport, meta, a.options())
	if err != nil {
		a.Logger.Error().Err(err).Str("uniqueid", meta.UniqueID).Msg("导入失败")
		return false, err
	}
	env, err := Decode[any](data)
	if err != nil {
		return false, err
	}
	// 约束：信封成功但 data 显式为 false 表示服务端未接收该条目。
	if b, ok := env.Data.(bool); ok && !b {
		a.Logger.Warn().Str("uniqueid", meta.UniqueID).Str("message", env.Message).Msg("服务端未接收")
		return false, nil
	}
	a.Logger.Info().Str("uniqueid", meta.UniqueID).Str("message", env.Message).Msg("导入成功")
	return true, nil
}

// HealthCheck 探测 baseURL 对应的服务端。
// baseURL 非 http(s) 或以 '/' 结尾时直接返回错误，不发出请求。
func (a *API) HealthCheck(ctx context.Context, baseURL string) (bool, error) {
	if err := servers.ValidateBaseURL(baseURL); err != nil {
		return false, err
	}
	data, err := a.Client.Get(ctx, baseURL+PathHealthCheck, relay.Options{Validate: validate})
	if err != nil {
		return false, err
	}
	env, err := Decode[any](data)
	if err != nil {
		return false, err
	}
	if b, ok := env.Data.(bool); ok {
		return b, nil
	}
	return true, nil
}
