package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fantribe/top250/internal/app/run"
	"github.com/fantribe/top250/internal/config"
	"github.com/fantribe/top250/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(date, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = time.Now()
	fmt.Fprintf(p.w, "[%s] 拉取 %s\n", p.startedAt.Format("15:04:05"), date)
	fmt.Fprintf(p.w, "  file: %s\n", path)
}

func (p *progressUI) OnAttempt(a domain.Attempt) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a.Stage == domain.StageOK {
		fmt.Fprintf(p.w, "  数据源 %d: ok (%s)\n", a.Mirror, truncate(a.URL, 120))
		return
	}
	fmt.Fprintf(p.w, "  数据源 %d: %s 失败 %s\n", a.Mirror, a.Stage, truncate(a.ErrorMsg, 90))
}

func (p *progressUI) OnDone(s domain.Snapshot, err error, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		fmt.Fprintf(p.w, "失败: attempts=%d (%s)\n\n", len(s.Attempts), formatShortDuration(dur))
		return
	}
	fmt.Fprintf(p.w, "就绪: movies=%d mirror=%d fallback=%d (%s)\n\n", len(s.Movies), s.Mirror, s.Failed(), formatShortDuration(dur))
}

// printConfig 打印生效配置，降低“到底连的是哪个仓库/镜像”的排查成本。
func printConfig(w io.Writer, eff config.EffectiveConfig) {
	fmt.Fprintln(w, "配置（生效）:")
	if eff.File != "" {
		fmt.Fprintf(w, "  file: %s\n", eff.File)
	}
	fmt.Fprintf(w, "  repo: %s/%s@%s\n", eff.Owner, eff.Repo, eff.Branch)
	fmt.Fprintf(w, "  file_path: %s\n", eff.FilePath)
	fmt.Fprintf(w, "  mirrors: %s\n", formatStringListJSON(eff.Mirrors))
	fmt.Fprintf(w, "  min_date: %s (%s)\n", eff.MinDate.Format("2006-01-02"), eff.Location)
	fmt.Fprintf(w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(w, "  image_proxy: %s\n", onOff(eff.ImageProxy))
	fmt.Fprintf(w, "  rate_limit: %g/s timeout: %s\n", eff.RateLimit, eff.Timeout)
	fmt.Fprintf(w, "  poster_proxy: %s\n", onOff(eff.PosterProxy))
	if eff.ProbeSchedule != "" {
		fmt.Fprintf(w, "  probe_schedule: %s\n", eff.ProbeSchedule)
	}
	fmt.Fprintln(w)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	// 不回显账号密码。
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// truncate 按 rune 截断，避免切坏中文错误信息。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if max <= 0 || len(rs) <= max {
		return s
	}
	if max <= 3 {
		return string(rs[:max])
	}
	return string(rs[:max-3]) + "..."
}

// formatAttemptChain 把尝试记录压成一行：mirror:stage[:error]。
func formatAttemptChain(attempts []domain.Attempt) string {
	if len(attempts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := fmt.Sprintf("%d:%s", a.Mirror, a.Stage)
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
