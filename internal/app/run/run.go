package run

import (
	"context"
	"fmt"
	"time"

	"github.com/fantribe/top250/internal/config"
	"github.com/fantribe/top250/internal/domain"
	"github.com/fantribe/top250/internal/fetch"
	"github.com/fantribe/top250/internal/infra/httpx"
	"github.com/fantribe/top250/internal/navigator"
	"github.com/fantribe/top250/internal/normalize"
	"github.com/fantribe/top250/internal/render"
	"github.com/fantribe/top250/internal/snapshot"
	"github.com/fantribe/top250/internal/source"
)

// Loader 把“日期 -> 镜像拉取 -> 解析 -> 规范化 -> 排序”串起来。
//
// State 在整个进程内共享（serve 模式下所有请求共用“上次成功的镜像”）。
type Loader struct {
	Fetcher      fetch.Fetcher
	State        *fetch.State
	PathTemplate string

	now func() time.Time
}

// New 按最终配置构建 Loader（数据源解析器 + 数据客户端 + 镜像状态）。
func New(eff config.EffectiveConfig) (*Loader, error) {
	res, err := source.NewResolver(eff.Owner, eff.Repo, eff.Branch, eff.Mirrors)
	if err != nil {
		return nil, err
	}
	c, err := httpx.NewDataClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		RateLimit: eff.RateLimit,
		Timeout:   eff.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}
	return &Loader{
		Fetcher:      fetch.Fetcher{Resolver: res, Client: c},
		State:        &fetch.State{},
		PathTemplate: eff.FilePath,
	}, nil
}

// Load 拉取某一天的榜单。
//
// 失败时仍返回带 Attempts 的 Snapshot（Movies 为空），方便上层解释失败原因。
func (l *Loader) Load(ctx context.Context, day time.Time, obs Observer) (domain.Snapshot, error) {
	if obs == nil {
		obs = Nop{}
	}
	started := time.Now()

	day = navigator.Day(day)
	path := source.SnapshotPath(l.PathTemplate, day)
	s := domain.Snapshot{
		Date: day.Format(navigator.DateLayout),
		Path: path,
	}
	obs.OnStart(s.Date, path)

	var payload snapshot.Payload
	f := l.Fetcher
	f.Observer = obs
	res, err := f.Fetch(ctx, l.State, path, func(body []byte) error {
		p, e := snapshot.Decode(body)
		if e != nil {
			return e
		}
		payload = p
		return nil
	})

	s.Attempts = res.Attempts
	s.FetchedAt = l.clock()
	if err == nil {
		s.Mirror = res.Mirror
		s.SourceURL = res.URL
		s.Subtitle = payload.Subtitle
		s.UpdateTime = payload.UpdateTime
		s.Movies = normalize.Movies(payload.Movies)
		render.SortByRank(s.Movies)
	}
	s.Finalize()

	obs.OnDone(s, err, time.Since(started))
	return s, err
}

func (l *Loader) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}
