package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/fantribe/top250/internal/domain"
	"github.com/fantribe/top250/internal/source"
)

// maxBody 限制单个快照的大小（Top250 的 JSON 通常在 1MB 以内）。
const maxBody = 32 << 20

// State 记住上一次成功的镜像下标，用于下次优先尝试。
//
// 由调用方持有并显式传入 Fetch；可被多个 goroutine 共享。
type State struct {
	mu  sync.Mutex
	idx int
}

// Index 返回下一次应最先尝试的镜像下标（0-based）。
func (s *State) Index() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

func (s *State) remember(i int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.idx = i
	s.mu.Unlock()
}

// DecodeFunc 解析一个镜像返回的响应体；返回错误则视为该镜像失败。
type DecodeFunc func(body []byte) error

// Observer 接收每一次镜像尝试（CLI 进度输出 / 服务端日志）。实现必须并发安全。
type Observer interface {
	OnAttempt(a domain.Attempt)
}

// Result 描述一次成功的拉取。
type Result struct {
	Mirror   int // 1-based
	URL      string
	Attempts []domain.Attempt
}

// Fetcher 按“上次成功的镜像优先，环形回绕”的顺序拉取同一个逻辑文件。
type Fetcher struct {
	Resolver source.Resolver
	Client   *http.Client
	Observer Observer
}

// Fetch 依次尝试各镜像：GET + decode。第一个成功的镜像会写回 st。
//
// 约束：
// - 不区分临时/永久错误：任何失败都换下一个镜像
// - 全部失败：返回 *AggregateError（每个镜像一条，按尝试顺序）
// - ctx 取消：立即停止，返回包装后的 ctx 错误
func (f *Fetcher) Fetch(ctx context.Context, st *State, file string, decode DecodeFunc) (Result, error) {
	n := f.Resolver.Len()
	if n == 0 {
		return Result{}, errors.New("没有可用的镜像")
	}
	if decode == nil {
		return Result{}, errors.New("decode 不能为空")
	}
	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}

	start := st.Index() % n
	attempts := make([]domain.Attempt, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, fmt.Errorf("拉取已取消：%w", err)
		}

		idx := (start + i) % n
		url := f.Resolver.URL(idx, file)
		a := domain.Attempt{Mirror: idx + 1, URL: url}

		body, err := get(ctx, c, url)
		if err == nil {
			if derr := decode(body); derr != nil {
				err = &ParseError{URL: url, Err: derr}
			}
		}
		if err != nil {
			a.Stage = stageOf(err)
			a.ErrorMsg = err.Error()
			attempts = append(attempts, a)
			f.notify(a)
			continue
		}

		a.Stage = domain.StageOK
		attempts = append(attempts, a)
		f.notify(a)
		st.remember(idx)
		return Result{Mirror: idx + 1, URL: url, Attempts: attempts}, nil
	}
	return Result{Attempts: attempts}, &AggregateError{Attempts: attempts}
}

func (f *Fetcher) notify(a domain.Attempt) {
	if f.Observer != nil {
		f.Observer.OnAttempt(a)
	}
}

func stageOf(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return domain.StageParse
	}
	return domain.StageFetch
}

func get(ctx context.Context, c *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBody {
		return nil, fmt.Errorf("响应体超过 %d 字节", maxBody)
	}
	return b, nil
}
