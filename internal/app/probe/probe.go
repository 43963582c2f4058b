package probe

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fantribe/top250/internal/app/run"
	"github.com/fantribe/top250/internal/domain"
	"github.com/fantribe/top250/internal/navigator"
)

// Prober 定时拉取“默认日期”（昨天）的榜单，让共享的镜像状态始终指向一个可用的镜像。
// 用户打开页面时第一跳就命中，不必现场回退。
type Prober struct {
	Loader *run.Loader
	Floor  time.Time
	Now    func() time.Time
}

// Probe 执行一次探测，返回命中的镜像（1-based）。
func (p *Prober) Probe(ctx context.Context) (int, error) {
	nav := navigator.New(p.Floor, p.Now)
	s, err := p.Loader.Load(ctx, nav.Current(), logObserver{})
	if err != nil {
		return 0, err
	}
	return s.Mirror, nil
}

// Start 按 cron 表达式（5 段标准格式）启动定时探测；ctx 取消后停止。
func Start(ctx context.Context, schedule string, loc *time.Location, p *Prober) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(schedule, func() {
		jctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if m, err := p.Probe(jctx); err != nil {
			log.Printf("probe: 失败：%v", err)
		} else {
			log.Printf("probe: 数据源 %d 可用", m)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

type logObserver struct{ run.Nop }

func (logObserver) OnAttempt(a domain.Attempt) {
	if a.Stage != domain.StageOK {
		log.Printf("probe: 数据源 %d %s 失败：%s", a.Mirror, a.Stage, a.ErrorMsg)
	}
}
