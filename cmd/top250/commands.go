package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/fantribe/top250/internal/app/probe"
	"github.com/fantribe/top250/internal/app/run"
	"github.com/fantribe/top250/internal/app/server"
	"github.com/fantribe/top250/internal/config"
	"github.com/fantribe/top250/internal/domain"
	"github.com/fantribe/top250/internal/infra/fsx"
	"github.com/fantribe/top250/internal/infra/httpx"
	"github.com/fantribe/top250/internal/navigator"
	"github.com/fantribe/top250/internal/render"
)

func (c *cli) serveCmd(ctx context.Context, args []string) int {
	var a commonArgs
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	a.register(fs)
	fs.StringVar(&a.Listen, "listen", "", "监听地址（默认 :8080）")
	if ok, code := c.parseFlags(fs, args); !ok {
		return code
	}

	eff, err := c.loadConfig(a.CLIArgs)
	if err != nil {
		c.emitError(err)
		return 1
	}
	loader, err := run.New(eff)
	if err != nil {
		c.emitError(err)
		return 1
	}
	imageClient, err := httpx.NewImageClient(eff.ProxyURL, eff.ImageProxy)
	if err != nil {
		c.emitError(err)
		return 1
	}
	if c.interactive {
		printConfig(c.stderr, eff)
	}

	now := clock(eff.Location)
	srv := server.New(server.Options{
		Loader: loader,
		Floor:  eff.MinDate,
		Now:    now,
		Poster: server.PosterOptions{
			Enabled: eff.PosterProxy,
			Width:   eff.PosterWidth,
			Hosts:   eff.PosterHosts,
			Client:  imageClient,
		},
		AccessLog: c.stderr,
	})

	if eff.ProbeSchedule != "" {
		p := &probe.Prober{Loader: loader, Floor: eff.MinDate, Now: now}
		if _, err := probe.Start(ctx, eff.ProbeSchedule, eff.Location, p); err != nil {
			c.emitError(err)
			return 1
		}
	}

	if err := server.ListenAndServe(ctx, eff.Listen, srv.Handler()); err != nil {
		c.emitError(err)
		return 1
	}
	return 0
}

// dayArgs 是 show/export 的日期选择参数。
type dayArgs struct {
	Date string
	Nav  string
}

func (d *dayArgs) register(fs *pflag.FlagSet) {
	fs.StringVarP(&d.Date, "date", "d", "", "日期 YYYY-MM-DD（默认昨天）")
	fs.StringVar(&d.Nav, "nav", "", "在 --date 基础上移动一天：prev|next")
}

// pickDay 驱动一次日期状态机，返回最终日期与导航器（供页面渲染前后链接）。
func (c *cli) pickDay(eff config.EffectiveConfig, d dayArgs) (*navigator.Navigator, error) {
	nav := navigator.New(eff.MinDate, clock(eff.Location))
	if d.Date != "" {
		day, err := navigator.ParseDay(d.Date)
		if err != nil {
			return nil, err
		}
		if !nav.Set(day) {
			fmt.Fprintf(c.stderr, "日期 %s 晚于今天，已改为 %s\n", d.Date, nav.Current().Format(navigator.DateLayout))
		}
	}
	switch d.Nav {
	case "":
	case "prev":
		nav.Prev()
	case "next":
		nav.Next()
	default:
		return nil, fmt.Errorf("--nav 只能是 prev 或 next，实际是 %q", d.Nav)
	}
	return nav, nil
}

// load 是 show/export 共用的“配置 -> 日期 -> 拉取”流程；返回 0 表示成功。
func (c *cli) load(ctx context.Context, a commonArgs, d dayArgs) (*navigator.Navigator, domain.Snapshot, int) {
	eff, err := c.loadConfig(a.CLIArgs)
	if err != nil {
		c.emitError(err)
		return nil, domain.Snapshot{}, 1
	}
	nav, err := c.pickDay(eff, d)
	if err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n", err)
		return nil, domain.Snapshot{}, 2
	}
	loader, err := run.New(eff)
	if err != nil {
		c.emitError(err)
		return nil, domain.Snapshot{}, 1
	}

	var obs run.Observer
	if c.interactive {
		printConfig(c.stderr, eff)
		obs = newProgressUI(c.stderr)
	}
	s, err := loader.Load(ctx, nav.Current(), obs)
	if err != nil {
		c.emitSnapshot(s)
		fmt.Fprintf(c.stderr, "%s\n%v\n", render.FailureMessage, err)
		return nav, s, 1
	}
	return nav, s, 0
}

func (c *cli) showCmd(ctx context.Context, args []string) int {
	var a commonArgs
	var d dayArgs
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	a.register(fs)
	d.register(fs)
	if ok, code := c.parseFlags(fs, args); !ok {
		return code
	}

	_, s, code := c.load(ctx, a, d)
	if code != 0 {
		return code
	}
	c.emitSnapshot(s)
	return 0
}

// emitSnapshot：TTY 输出表格；非 TTY 时 stdout 必须且仅输出一个 Snapshot JSON（摘要走 stderr）。
func (c *cli) emitSnapshot(s domain.Snapshot) {
	if c.stdoutTTY {
		if len(s.Movies) > 0 {
			_ = render.WriteText(c.stdout, s)
		}
		fmt.Fprintln(c.stdout, summaryLine(s))
		return
	}
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(s)
	fmt.Fprintln(c.stderr, summaryLine(s))
	if s.Failed() > 0 {
		fmt.Fprintf(c.stderr, "attempts: %s\n", formatAttemptChain(s.Attempts))
	}
}

func (c *cli) exportCmd(ctx context.Context, args []string) int {
	var a commonArgs
	var d dayArgs
	out := "site"
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	a.register(fs)
	d.register(fs)
	fs.StringVarP(&out, "out", "o", out, "输出目录；页面写到 <out>/<date>/")
	if ok, code := c.parseFlags(fs, args); !ok {
		return code
	}

	nav, s, code := c.load(ctx, a, d)
	if code != 0 {
		return code
	}

	dir := filepath.Join(out, s.Date)
	if !filepath.IsAbs(dir) && c.cwd != "" {
		dir = filepath.Join(c.cwd, dir)
	}
	var page bytes.Buffer
	if err := render.WritePage(&page, exportPage(nav, s)); err != nil {
		c.emitError(err)
		return 1
	}
	if err := fsx.WriteFileAtomic(dir, "index.html", page.Bytes()); err != nil {
		c.emitError(err)
		return 1
	}
	if err := fsx.WriteJSON(dir, "top250.json", s); err != nil {
		c.emitError(err)
		return 1
	}

	c.emitSnapshot(s)
	if c.interactive {
		fmt.Fprintf(c.stderr, "out: %s\n", dir)
	}
	return 0
}

// exportPage 生成静态页：前后链接指向相邻日期的目录（由多次 export 组成一个站点）。
func exportPage(nav *navigator.Navigator, s domain.Snapshot) render.Page {
	cur := nav.Current()
	p := render.Page{
		Date:        s.Date,
		Min:         nav.Floor().Format(navigator.DateLayout),
		Max:         nav.Today().Format(navigator.DateLayout),
		CanPrev:     nav.CanPrev(),
		CanNext:     nav.CanNext(),
		ShowPosters: true,
		Snapshot:    &s,
		Rows:        render.Rows(s.Movies, nil),
	}
	if p.CanPrev {
		p.PrevURL = "../" + cur.AddDate(0, 0, -1).Format(navigator.DateLayout) + "/"
	}
	if p.CanNext {
		p.NextURL = "../" + cur.AddDate(0, 0, 1).Format(navigator.DateLayout) + "/"
	}
	return p
}

func summaryLine(s domain.Snapshot) string {
	if s.Mirror == 0 {
		return fmt.Sprintf("完成：date=%s movies=0 failed=%d", s.Date, s.Failed())
	}
	return fmt.Sprintf("完成：date=%s movies=%d mirror=%d failed=%d", s.Date, len(s.Movies), s.Mirror, s.Failed())
}

// clock 返回按配置时区计算的“现在”。
func clock(loc *time.Location) func() time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}
