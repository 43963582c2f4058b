package render

import (
	"embed"
	"html/template"
	"io"

	"github.com/fantribe/top250/internal/domain"
)

// FailureMessage 是所有镜像都失败时展示给用户的固定提示。
const FailureMessage = "数据请求失败，请尝试其他日期"

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("page.html").ParseFS(templateFS, "templates/page.html"))

// Page 是页面模板的输入。URL 类字段由调用方（server/export）拼好。
type Page struct {
	Title string

	Date string // 当前日期 YYYY-MM-DD
	Min  string // 日期选择器下界
	Max  string // 日期选择器上界（今天）

	CanPrev bool
	CanNext bool
	PrevURL string
	NextURL string

	// FormAction 为空时表单提交到当前路径。
	FormAction  string
	ShowPosters bool

	// Snapshot 为 nil 表示拉取失败。
	Snapshot *domain.Snapshot
	Rows     []Row
}

// Row 是表格中的一行；CoverSrc 可能是改写过的海报代理地址。
type Row struct {
	domain.Movie
	CoverSrc string
}

// Rows 按 movies 的当前顺序生成表格行；poster 为 nil 时直接使用原始封面地址。
func Rows(movies []domain.Movie, poster func(string) string) []Row {
	rows := make([]Row, 0, len(movies))
	for _, m := range movies {
		src := m.Cover
		if poster != nil && src != "" {
			src = poster(src)
		}
		rows = append(rows, Row{Movie: m, CoverSrc: src})
	}
	return rows
}

// WritePage 渲染整页 HTML。所有字段都经过 html/template 转义。
func WritePage(w io.Writer, p Page) error {
	if p.Title == "" {
		p.Title = "电影排行榜"
	}
	return pageTmpl.Execute(w, struct {
		Page
		FailureMessage string
	}{p, FailureMessage})
}
