package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fantribe/top250/internal/domain"
)

// WriteText 输出终端友好的对齐表格（show 命令在 TTY 下使用）。
func WriteText(w io.Writer, s domain.Snapshot) error {
	if s.Subtitle != "" {
		fmt.Fprintln(w, s.Subtitle)
	}
	fmt.Fprintf(w, "日期: %s  最新更新: %s\n\n", s.Date, s.UpdateTime)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "序号\t排名\t电影\t评分\t年份\t国别/地区\t更多信息")
	for _, m := range s.Movies {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Index, m.Rank, oneLine(m.Title), m.Rating, m.Year, oneLine(m.Region), oneLine(firstInfo(m.Info)),
		)
	}
	return tw.Flush()
}

func firstInfo(info []string) string {
	for _, s := range info {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const max = 40
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
