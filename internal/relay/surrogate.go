package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

// FileSurrogate 是二进制附件跨 relay 时的 JSON 替身。
type FileSurrogate struct {
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	Base64     string `json:"base64"`
	FileMarker bool   `json:"fileMarker"`
}

// EncodeAttachment 把附件编码为替身。
func EncodeAttachment(a domain.Attachment) FileSurrogate {
	return FileSurrogate{
		Name:       a.Name,
		MimeType:   a.MimeType,
		Base64:     base64.StdEncoding.EncodeToString(a.Data),
		FileMarker: true,
	}
}

// DecodeFile 把解码后的 JSON 值（map）还原为附件；不带文件标记时返回 false。
func DecodeFile(v any) (domain.Attachment, bool, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return domain.Attachment{}, false, nil
	}
	if marker, _ := m["fileMarker"].(bool); !marker {
		return domain.Attachment{}, false, nil
	}
	name, _ := m["name"].(string)
	mime, _ := m["mimeType"].(string)
	b64, _ := m["base64"].(string)
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return domain.Attachment{}, true, fmt.Errorf("附件 %q base64 解码失败：%w", name, err)
	}
	return domain.Attachment{Name: name, MimeType: mime, Data: data}, true, nil
}

// formFielder 由可以自行展开为表单字段的类型实现（如 domain.Metadata）。
type formFielder interface {
	FormFields() map[string]any
}

// FormSurrogate 把表单 body 转为可 JSON 传输的替身。
//
// 规则：
// - 附件 / 附件切片：逐个编码为 FileSurrogate
// - 字符串、布尔、数字：原样保留
// - 其余非标量：JSON 字符串化
// - nil 字段：丢弃
func FormSurrogate(body any) (map[string]any, error) {
	fields, err := formFields(body)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case nil:
			continue
		case domain.Attachment:
			out[k] = EncodeAttachment(x)
		case *domain.Attachment:
			if x != nil {
				out[k] = EncodeAttachment(*x)
			}
		case []domain.Attachment:
			files := make([]FileSurrogate, 0, len(x))
			for _, a := range x {
				files = append(files, EncodeAttachment(a))
			}
			out[k] = files
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
			out[k] = x
		default:
			b, err := json.Marshal(x)
			if err != nil {
				return nil, fmt.Errorf("表单字段 %q 编码失败：%w", k, err)
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

func formFields(body any) (map[string]any, error) {
	switch x := body.(type) {
	case nil:
		return map[string]any{}, nil
	case formFielder:
		return x.FormFields(), nil
	case map[string]any:
		return x, nil
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, v := range x {
			out[k] = v
		}
		return out, nil
	}
	// 结构体按 json 字段名展开。
	rv := reflect.Indirect(reflect.ValueOf(body))
	if rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("表单 body 必须是对象，实际 %T", body)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
