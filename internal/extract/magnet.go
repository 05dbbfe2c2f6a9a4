package extract

import (
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// MagnetHash 从 magnet URI 中取出 btih 信息哈希（小写十六进制）。
// URI 无法解析时返回缺失。
func MagnetHash(uri string) (string, bool) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(strings.ToLower(uri), "magnet:") {
		return "", false
	}
	m, err := metainfo.ParseMagnetUri(uri)
	if err != nil || m.InfoHash == (metainfo.Hash{}) {
		return "", false
	}
	return strings.ToLower(m.InfoHash.HexString()), true
}
