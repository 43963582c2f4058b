package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/fantribe/top250/internal/app/run"
	"github.com/fantribe/top250/internal/domain"
	"github.com/fantribe/top250/internal/navigator"
)

// Options 是 serve 模式的依赖与开关。
type Options struct {
	Loader *run.Loader

	// Floor 是最早可选日期；Now 决定“今天”（已按配置时区转换）。
	Floor time.Time
	Now   func() time.Time

	Poster PosterOptions

	// AccessLog 为 nil 时写 stderr。
	AccessLog io.Writer
}

// Server 持有路由与共享依赖。每个请求独立构造 Navigator，不共享“当前日期”。
type Server struct {
	opts   Options
	router *mux.Router
}

func New(o Options) *Server {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AccessLog == nil {
		o.AccessLog = os.Stderr
	}
	s := &Server{opts: o, router: mux.NewRouter()}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	r := s.router
	gzip := handlers.CompressHandler

	r.Use(requestID)
	r.Handle("/", gzip(http.HandlerFunc(s.pageHandler))).Methods("GET", "HEAD")
	r.Handle("/api/top250", gzip(http.HandlerFunc(s.apiHandler))).Methods("GET", "HEAD")
	r.HandleFunc("/poster", s.posterHandler).Methods("GET", "HEAD")
	r.HandleFunc("/healthz", s.healthHandler).Methods("GET", "HEAD")
}

// Handler 返回带访问日志的完整 handler。
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(s.opts.AccessLog, s.router)
}

// ListenAndServe 启动 HTTP 服务；ctx 取消后优雅退出（最多等 10 秒）。
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

// requestID 透传或生成请求 ID，方便把访问日志和拉取日志对上。
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// navigate 按查询参数驱动一次日期状态机：先 date，再 nav。
// 非法的 date 被忽略（回到默认日期）。
func (s *Server) navigate(r *http.Request) *navigator.Navigator {
	q := r.URL.Query()
	nav := navigator.New(s.opts.Floor, s.opts.Now)
	if v := q.Get("date"); v != "" {
		if d, err := navigator.ParseDay(v); err == nil {
			nav.Set(d)
		}
	}
	switch q.Get("nav") {
	case "prev":
		nav.Prev()
	case "next":
		nav.Next()
	}
	return nav
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mirror": s.opts.Loader.State.Index() + 1,
	})
}

func serveJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	j := json.NewEncoder(w)
	j.SetIndent("", "  ")
	if err := j.Encode(obj); err != nil {
		log.Printf("encode json: %v", err)
	}
}

// requestLog 把镜像尝试记到服务端日志，带上请求 ID。
type requestLog struct {
	run.Nop
	id string
}

func (l requestLog) OnDone(s domain.Snapshot, err error, dur time.Duration) {
	if err != nil {
		log.Printf("[%s] %s 拉取失败（%s）：%v", l.id, s.Date, dur.Round(time.Millisecond), err)
		return
	}
	log.Printf("[%s] %s 数据源 %d，%d 部，失败 %d 次（%s）", l.id, s.Date, s.Mirror, len(s.Movies), s.Failed(), dur.Round(time.Millisecond))
}
