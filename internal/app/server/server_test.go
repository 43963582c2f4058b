package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fantribe/top250/internal/app/run"
	"github.com/fantribe/top250/internal/config"
	"github.com/fantribe/top250/internal/render"
)

const snapshotJSON = `{
  "description": {"subtitle": "豆瓣电影 Top 250"},
  "update_time": "2025-05-01 08:00",
  "movies": [
    {"rank": "2", "title": "霸王别姬", "score": "9.6", "covers": "https://img1.doubanio.com/p2.jpg", "url": "https://movie.douban.com/subject/1291546/", "abstract": ["陈凯歌", "1993 / 中国大陆 / 剧情"]},
    {"rank": "1", "title": "肖申克的救赎", "score": "9.7", "covers": "https://img1.doubanio.com/p1.jpg", "url": "https://movie.douban.com/subject/1292052/", "abstract": ["弗兰克·德拉邦特", "1994 / 美国 / 犯罪"]}
  ]
}`

type fixture struct {
	srv    *Server
	mu     sync.Mutex
	paths  []string
	failed bool
}

func (f *fixture) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func newFixture(t *testing.T, failed bool) *fixture {
	t.Helper()
	f := &fixture{failed: failed}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		if f.failed {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(snapshotJSON))
	}))
	t.Cleanup(upstream.Close)

	l, err := run.New(config.EffectiveConfig{
		Owner:    "o",
		Repo:     "r",
		Branch:   "main",
		FilePath: "data-top/{month}/movie-top250-{day}.json",
		Mirrors: []string{
			upstream.URL + "/m1/{file}",
			upstream.URL + "/m2/{file}",
		},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	f.srv = New(Options{
		Loader:    l,
		Floor:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Now:       func() time.Time { return time.Date(2025, 5, 3, 12, 0, 0, 0, time.UTC) },
		Poster:    PosterOptions{Width: 120},
		AccessLog: io.Discard,
	})
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func document(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("解析 HTML 失败：%v", err)
	}
	return doc
}

func TestPage_DefaultsToYesterday(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("期望响应带 X-Request-ID")
	}
	doc := document(t, rec)

	if v, _ := doc.Find("#datePicker").Attr("value"); v != "2025-05-02" {
		t.Fatalf("期望默认日期 2025-05-02，实际 %q", v)
	}
	if v, _ := doc.Find("#datePicker").Attr("max"); v != "2025-05-03" {
		t.Fatalf("期望 max=2025-05-03，实际 %q", v)
	}
	if doc.Find("#prevDate").HasClass("disabled") || doc.Find("#nextDate").HasClass("disabled") {
		t.Fatalf("期望前后都可导航")
	}
	rows := doc.Find("#dataTable tbody tr")
	if rows.Length() != 2 {
		t.Fatalf("期望 2 行，实际 %d", rows.Length())
	}
	if got := rows.First().Find("td").Eq(3).Text(); got != "肖申克的救赎" {
		t.Fatalf("期望第一行为排名 1，实际 %q", got)
	}
	if !strings.Contains(doc.Find("#dataInfo").Text(), "最新更新: 2025-05-01 08:00") {
		t.Fatalf("信息面板不符合预期：%q", doc.Find("#dataInfo").Text())
	}
	if got := f.seen(); len(got) != 1 || got[0] != "/m1/data-top/202505/movie-top250-20250502.json" {
		t.Fatalf("请求路径不符合预期：%v", got)
	}
}

func TestPage_FloorDisablesPrev(t *testing.T) {
	f := newFixture(t, false)
	doc := document(t, f.get(t, "/?date=2025-05-01"))

	if !doc.Find("#prevDate").HasClass("disabled") {
		t.Fatalf("期望最早日期时“上一天”被禁用")
	}
	if got := f.seen(); len(got) != 1 || got[0] != "/m1/data-top/202505/movie-top250-20250501.json" {
		t.Fatalf("请求路径不符合预期：%v", got)
	}

	// 在最早日期继续后退：保持不变。
	doc = document(t, f.get(t, "/?date=2025-05-01&nav=prev"))
	if v, _ := doc.Find("#datePicker").Attr("value"); v != "2025-05-01" {
		t.Fatalf("期望仍为 2025-05-01，实际 %q", v)
	}
}

func TestPage_NextAndFutureDates(t *testing.T) {
	f := newFixture(t, false)

	doc := document(t, f.get(t, "/?date=2025-05-02&nav=next"))
	if v, _ := doc.Find("#datePicker").Attr("value"); v != "2025-05-03" {
		t.Fatalf("期望前进到 2025-05-03，实际 %q", v)
	}
	if !doc.Find("#nextDate").HasClass("disabled") {
		t.Fatalf("期望今天时“下一天”被禁用")
	}

	doc = document(t, f.get(t, "/?date=2030-01-01"))
	if v, _ := doc.Find("#datePicker").Attr("value"); v != "2025-05-02" {
		t.Fatalf("期望未来日期回到默认日期，实际 %q", v)
	}

	doc = document(t, f.get(t, "/?date=garbage"))
	if v, _ := doc.Find("#datePicker").Attr("value"); v != "2025-05-02" {
		t.Fatalf("期望非法日期回到默认日期，实际 %q", v)
	}
}

func TestPage_NavLinksCarryState(t *testing.T) {
	f := newFixture(t, false)
	doc := document(t, f.get(t, "/?date=2025-05-02&posters=0"))

	href, _ := doc.Find("#prevDate").Attr("href")
	u, err := url.Parse(href)
	if err != nil {
		t.Fatalf("解析链接失败：%v", err)
	}
	q := u.Query()
	if q.Get("date") != "2025-05-02" || q.Get("nav") != "prev" || q.Get("posters") != "0" {
		t.Fatalf("上一天链接不符合预期：%q", href)
	}
}

func TestPage_Failure(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/?date=2025-05-02")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("期望 502，实际 %d", rec.Code)
	}
	doc := document(t, rec)
	if got := strings.TrimSpace(doc.Find("#dataInfo blockquote.top250-quote").Text()); got != render.FailureMessage {
		t.Fatalf("期望失败提示，实际 %q", got)
	}
	if doc.Find("#dataTable tbody tr").Length() != 0 {
		t.Fatalf("失败时不应渲染数据行")
	}
	if got := f.seen(); len(got) != 2 {
		t.Fatalf("期望两个镜像都被尝试，实际 %v", got)
	}
}

func TestPage_PosterToggle(t *testing.T) {
	f := newFixture(t, false)

	doc := document(t, f.get(t, "/?posters=0"))
	if _, ok := doc.Find("#showPosters").Attr("checked"); ok {
		t.Fatalf("posters=0 时复选框不应勾选")
	}
	if style, _ := doc.Find("#dataTable tbody tr td").Eq(1).Attr("style"); !strings.Contains(style, "display:none") {
		t.Fatalf("posters=0 时海报列应隐藏，实际 style=%q", style)
	}

	// 表单提交：hidden 0 在前，checkbox 1 在后。
	doc = document(t, f.get(t, "/?posters=0&posters=1"))
	if _, ok := doc.Find("#showPosters").Attr("checked"); !ok {
		t.Fatalf("勾选后应显示海报")
	}
	if src, _ := doc.Find("#dataTable tbody tr img").First().Attr("src"); src != "https://img1.doubanio.com/p1.jpg" {
		t.Fatalf("未启用代理时应直接使用原始封面，实际 %q", src)
	}
}

func TestAPI(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get(t, "/api/top250?date=2025-05-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("期望 JSON，实际 %q", ct)
	}
	var got struct {
		Date   string `json:"date"`
		Mirror int    `json:"mirror"`
		Movies []struct {
			Index int    `json:"index"`
			Title string `json:"title"`
			Year  string `json:"year"`
		} `json:"movies"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析 JSON 失败：%v", err)
	}
	if got.Date != "2025-05-01" || got.Mirror != 1 || got.Error != "" {
		t.Fatalf("响应不符合预期：%+v", got)
	}
	if len(got.Movies) != 2 || got.Movies[0].Title != "肖申克的救赎" || got.Movies[0].Year != "1994" {
		t.Fatalf("movies 不符合预期：%+v", got.Movies)
	}
}

func TestAPI_Failure(t *testing.T) {
	f := newFixture(t, true)
	rec := f.get(t, "/api/top250")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("期望 502，实际 %d", rec.Code)
	}
	var got struct {
		Movies   []any `json:"movies"`
		Attempts []struct {
			Mirror int    `json:"mirror"`
			Stage  string `json:"stage"`
		} `json:"attempts"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析 JSON 失败：%v", err)
	}
	if got.Error != render.FailureMessage || got.Movies == nil || len(got.Attempts) != 2 {
		t.Fatalf("失败响应不符合预期：%+v", got)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get(t, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status": "ok"`) {
		t.Fatalf("健康检查不符合预期：%d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestID_PassThrough(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("期望透传请求 ID，实际 %q", got)
	}
}

func TestPoster(t *testing.T) {
	var img bytes.Buffer
	if err := jpeg.Encode(&img, image.NewRGBA(image.Rect(0, 0, 300, 450)), nil); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(img.Bytes())
	}))
	t.Cleanup(images.Close)

	f := newFixture(t, false)
	f.srv.opts.Poster = PosterOptions{Enabled: true, Width: 120, Hosts: []string{"127.0.0.1"}}

	rec := f.get(t, "/poster?"+url.Values{"src": {images.URL + "/p.jpg"}, "w": {"60"}}.Encode())
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d：%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("期望设置 Cache-Control")
	}
	cfg, err := jpeg.DecodeConfig(rec.Body)
	if err != nil {
		t.Fatalf("期望输出 JPEG：%v", err)
	}
	if cfg.Width != 60 || cfg.Height != 90 {
		t.Fatalf("期望 60x90，实际 %dx%d", cfg.Width, cfg.Height)
	}

	rec = f.get(t, "/poster?"+url.Values{"src": {"https://evil.example/p.jpg"}}.Encode())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("期望非白名单域名 403，实际 %d", rec.Code)
	}

	rec = f.get(t, "/poster?"+url.Values{"src": {images.URL + "/missing.jpg"}}.Encode())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("期望上游失败 502，实际 %d", rec.Code)
	}
}

func TestPoster_RedirectOffAllowList(t *testing.T) {
	var hits atomic.Int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("不应被读取"))
	}))
	t.Cleanup(other.Close)
	target := strings.Replace(other.URL, "127.0.0.1", "localhost", 1) + "/p.jpg"
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}))
	t.Cleanup(images.Close)

	f := newFixture(t, false)
	f.srv.opts.Poster = PosterOptions{Enabled: true, Width: 120, Hosts: []string{"127.0.0.1"}}

	rec := f.get(t, "/poster?"+url.Values{"src": {images.URL + "/p.jpg"}}.Encode())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("期望重定向出白名单时 502，实际 %d", rec.Code)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("期望不请求白名单外的地址，实际 %d 次", n)
	}
}

func TestPoster_RewriteAndDisabled(t *testing.T) {
	f := newFixture(t, false)

	rec := f.get(t, "/poster?src=https://img1.doubanio.com/p1.jpg")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("未启用时期望 404，实际 %d", rec.Code)
	}

	f.srv.opts.Poster = PosterOptions{Enabled: true, Width: 120, Hosts: []string{"doubanio.com"}}
	doc := document(t, f.get(t, "/"))
	src, _ := doc.Find("#dataTable tbody tr img").First().Attr("src")
	u, err := url.Parse(src)
	if err != nil {
		t.Fatalf("解析海报地址失败：%v", err)
	}
	if u.Path != "/poster" || u.Query().Get("src") != "https://img1.doubanio.com/p1.jpg" || u.Query().Get("w") != "120" {
		t.Fatalf("海报地址未改写为代理：%q", src)
	}
}

func TestShowPosters(t *testing.T) {
	cases := []struct {
		q    string
		want bool
	}{
		{"", true},
		{"posters=1", true},
		{"posters=0", false},
		{"posters=0&posters=1", true},
	}
	for _, tc := range cases {
		q, _ := url.ParseQuery(tc.q)
		if got := showPosters(q); got != tc.want {
			t.Fatalf("%q：期望 %v，实际 %v", tc.q, tc.want, got)
		}
	}
}
