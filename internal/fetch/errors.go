package fetch

import (
	"fmt"
	"strings"

	"github.com/fantribe/top250/internal/domain"
)

// HTTPStatusError 表示镜像返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// ParseError 表示响应体无法按快照格式解析。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("解析失败：%v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AggregateError 表示所有镜像都失败了。
// Attempts 按尝试顺序排列，每个被尝试的镜像恰好一条。
type AggregateError struct {
	Attempts []domain.Attempt
}

func (e *AggregateError) Error() string {
	lines := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		lines = append(lines, fmt.Sprintf("数据源 %d：%s", a.Mirror, a.ErrorMsg))
	}
	return "所有数据源均失败：\n" + strings.Join(lines, "\n")
}
