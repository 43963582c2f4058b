package httpx

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 5.0

	// 快照请求最多额外重发两次。
	snapshotRetries = 2
)

// 镜像和图床对默认的 Go UA 不友好，请求时从这里随机挑一个。
var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
}

func browserAgent() string {
	return browserAgents[rand.IntN(len(browserAgents))]
}

// Transport 是镜像快照和海报下载共用的出站 RoundTripper。
//
// 它只处理连接层面的事：补 UA、按令牌桶放行、连接失败时重发幂等请求。
// 非 2xx 响应原样交回调用方，换镜像的决定由 fetch 做。
type Transport struct {
	Base *http.Transport

	// Limiter 非空时每一次真正发出的请求（包括重发）都要先拿到令牌。
	Limiter *rate.Limiter

	// RetryMax 是连接失败后额外重发的次数，只对无 body 的 GET/HEAD 生效。
	RetryMax int

	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	retries := 0
	if idempotent(req) && t.RetryMax > 0 {
		retries = t.RetryMax
	}

	ctx := req.Context()
	var lastErr error
	for i := 0; i <= retries; i++ {
		if err := t.wait(ctx); err != nil {
			return nil, errors.Join(lastErr, err)
		}
		resp, err := t.Base.RoundTrip(t.prepare(req))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func idempotent(req *http.Request) bool {
	return (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
}

func (t *Transport) wait(ctx context.Context) error {
	if t.Limiter == nil {
		return nil
	}
	return t.Limiter.Wait(ctx)
}

// prepare 复制请求，避免改动调用方持有的 Header。
func (t *Transport) prepare(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", browserAgent())
	}
	r.Close = t.DisableKeepAlives
	return r
}

// Options 描述拉取快照时的网络策略，零值即直连、不限速、DefaultTimeout。
type Options struct {
	ProxyURL  string
	RateLimit float64 // 每秒请求数，<=0 不限速
	Timeout   time.Duration
}

// NewDataClient 返回拉取镜像快照用的 client。
// 配了代理时每次请求都新建连接；RateLimit>0 时按令牌桶（突发 1）放行。
func NewDataClient(o Options) (*http.Client, error) {
	c, err := newClient(strings.TrimSpace(o.ProxyURL), o.Timeout)
	if err != nil {
		return nil, err
	}
	if o.RateLimit > 0 {
		c.Transport.(*Transport).Limiter = rate.NewLimiter(rate.Limit(o.RateLimit), 1)
	}
	return c, nil
}

// NewImageClient 返回 /poster 下载原图用的 client；只有 viaProxy 为真时才走 proxyURL。
func NewImageClient(proxyURL string, viaProxy bool) (*http.Client, error) {
	if !viaProxy {
		return newClient("", 0)
	}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, errors.New("image_proxy=true 但 proxy.url 为空")
	}
	return newClient(proxyURL, 0)
}

func newClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &Transport{
			Base:              base,
			RetryMax:          snapshotRetries,
			DisableKeepAlives: base.DisableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}
