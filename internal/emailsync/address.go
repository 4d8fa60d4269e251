package emailsync

import (
	"regexp"
	"strings"
)

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// NormalizeAddress 把 "Name <addr>" 规范成小写的 addr；空输入返回空串
func NormalizeAddress(value string) string {
	if value == "" {
		return ""
	}
	addr := value
	if m := angleAddr.FindStringSubmatch(value); m != nil {
		addr = m[1]
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsAddress 判断规范化后的值是否是单个邮箱地址，排除 "undisclosed-recipients:;" 和多收件人
func IsAddress(addr string) bool {
	at := strings.IndexByte(addr, '@')
	return at > 0 && at < len(addr)-1 && !strings.ContainsAny(addr, " ,;:<>")
}
