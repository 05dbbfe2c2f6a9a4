package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// 请求状态（仅用于日志的 state 字段）。
const (
	stateReceived   = "received"
	stateValidated  = "validated"
	stateRejected   = "rejected"
	stateDispatched = "dispatched"
	stateSucceeded  = "succeeded"
	stateFailed     = "failed"
)

const invalidRequest = "invalid request data"

// Server 是特权侧的 fetch-api 执行者：把 FetchRequest 还原为真实 HTTP 请求。
//
// 约束：
// - 不重试（重试只属于 Client）；HTTP 应由 RetryMax=0 的 client 构造
// - 任何完成的响应都是 success=true（HTTP 状态码不算失败），只有传输错误是 success=false
type Server struct {
	HTTP   *http.Client
	Logger zerolog.Logger
}

// Register 在 Peer 上注册 fetch-api 处理。
func (s *Server) Register(p *Peer) {
	p.Handle(MsgFetchAPI, s.Handle)
}

// Handle 是 fetch-api 的 HandlerFunc；载荷无法解码时同样按 invalid request 回复。
func (s *Server) Handle(ctx context.Context, msg Message) (any, error) {
	var req FetchRequest
	if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &req) != nil {
		s.Logger.Warn().Str("state", stateRejected).Str("id", msg.ID).Msg(invalidRequest)
		return FetchResponse{Success: false, Error: invalidRequest}, nil
	}
	return s.Execute(ctx, req), nil
}

// Execute 执行一次请求。
func (s *Server) Execute(ctx context.Context, req FetchRequest) FetchResponse {
	log := s.Logger.With().Str("method", req.Method).Str("url", req.URL).Logger()
	log.Debug().Str("state", stateReceived).Msg("fetch-api")

	if strings.TrimSpace(req.URL) == "" {
		log.Warn().Str("state", stateRejected).Msg(invalidRequest)
		return FetchResponse{Success: false, Error: invalidRequest}
	}
	log.Debug().Str("state", stateValidated).Msg("fetch-api")

	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("state", stateFailed).Msg("构造请求失败")
		return FetchResponse{Success: false, Error: err.Error()}
	}

	c := s.HTTP
	if c == nil {
		c = http.DefaultClient
	}
	log.Debug().Str("state", stateDispatched).Msg("fetch-api")
	resp, err := c.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("state", stateFailed).Msg("请求失败")
		return FetchResponse{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		log.Warn().Err(err).Str("state", stateFailed).Int("status", resp.StatusCode).Msg("读取响应失败")
		return FetchResponse{Success: false, Error: err.Error()}
	}
	log.Info().Str("state", stateSucceeded).Int("status", resp.StatusCode).Msg("fetch-api")
	return FetchResponse{Success: true, Data: data}
}

func buildHTTPRequest(ctx context.Context, req FetchRequest) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers := http.Header{}
	for k, v := range req.Headers {
		headers.Set(k, v)
	}

	var body io.Reader
	if hasBody(method) && req.Body != nil {
		mediaType, _, _ := mime.ParseMediaType(headers.Get(headerContentType))
		switch mediaType {
		case mimeURLEncode:
			s, err := urlEncoded(req.Body)
			if err != nil {
				return nil, err
			}
			body = strings.NewReader(s)
		case mimeMultipart:
			b, ct, err := multipartBody(req.Body)
			if err != nil {
				return nil, err
			}
			headers.Del(headerContentType)
			headers.Set(headerContentType, ct)
			body = bytes.NewReader(b)
		default:
			b, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("编码 JSON body 失败：%w", err)
			}
			headers.Set(headerContentType, mimeJSON)
			body = bytes.NewReader(b)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = headers
	return httpReq, nil
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func urlEncoded(body any) (string, error) {
	switch x := body.(type) {
	case string:
		return x, nil
	case map[string]any:
		q := url.Values{}
		for k, v := range x {
			q.Set(k, scalarString(v))
		}
		return q.Encode(), nil
	}
	return "", fmt.Errorf("urlencoded body 必须是对象或字符串，实际 %T", body)
}

// multipartBody 从替身重建真实 multipart：带文件标记的字段（或数组元素）还原为文件分片。
func multipartBody(body any) ([]byte, string, error) {
	fields, ok := body.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("multipart body 必须是对象，实际 %T", body)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range keys {
		v := fields[k]
		if arr, ok := v.([]any); ok && len(arr) > 0 {
			if _, isFile, _ := DecodeFile(arr[0]); isFile {
				for _, el := range arr {
					if err := writeFileOrField(w, k, el); err != nil {
						return nil, "", err
					}
				}
				continue
			}
		}
		if err := writeFileOrField(w, k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFileOrField(w *multipart.Writer, key string, v any) error {
	a, isFile, err := DecodeFile(v)
	if err != nil {
		return err
	}
	if !isFile {
		return w.WriteField(key, scalarString(v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(key), escapeQuotes(a.Name)))
	ct := a.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set(headerContentType, ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(a.Data)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// scalarString：字符串原样，其余 JSON 编码。
func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func readResponse(resp *http.Response) (any, error) {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get(headerContentType)), mimeJSON) {
		return string(b), nil
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, errors.Join(errors.New("响应声明为 JSON 但无法解析"), err)
	}
	return v, nil
}
