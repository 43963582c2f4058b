package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fantribe/top250/internal/infra/imgx"
)

// 海报原图上限；豆瓣大图也只有几百 KB。
const maxPosterBytes = 10 << 20

// PosterOptions 控制 /poster 代理。
type PosterOptions struct {
	Enabled bool
	Width   int
	// Hosts 是允许代理的域名后缀（例如 doubanio.com 匹配 img1.doubanio.com）。
	Hosts  []string
	Client *http.Client
}

func (s *Server) posterURL(src string) string {
	q := url.Values{}
	q.Set("src", src)
	q.Set("w", strconv.Itoa(s.opts.Poster.Width))
	return "/poster?" + q.Encode()
}

func (s *Server) allowedPoster(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range s.opts.Poster.Hosts {
		h = strings.ToLower(strings.TrimPrefix(h, "."))
		if host == h || strings.HasSuffix(host, "."+h) {
			return u, true
		}
	}
	return nil, false
}

func (s *Server) posterHandler(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Poster.Enabled {
		http.NotFound(w, r)
		return
	}
	u, ok := s.allowedPoster(r.URL.Query().Get("src"))
	if !ok {
		http.Error(w, "403 Access denied", http.StatusForbidden)
		return
	}
	width := s.opts.Poster.Width
	if v, err := strconv.Atoi(r.URL.Query().Get("w")); err == nil && v >= 32 && v <= 600 {
		width = v
	}

	data, err := s.download(r, u.String())
	if err != nil {
		log.Printf("[%s] poster %s: %v", r.Header.Get(requestIDHeader), u, err)
		http.Error(w, "502 Bad Gateway", http.StatusBadGateway)
		return
	}
	thumb, err := imgx.Thumbnail(data, width)
	if err != nil {
		log.Printf("[%s] poster %s: %v", r.Header.Get(requestIDHeader), u, err)
		http.Error(w, "502 Bad Gateway", http.StatusBadGateway)
		return
	}

	// 只交给浏览器缓存，服务端不落盘。
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb)))
	_, _ = w.Write(thumb)
}

func (s *Server) download(r *http.Request, src string) ([]byte, error) {
	c := s.opts.Poster.Client
	if c == nil {
		c = http.DefaultClient
	}
	// 每一跳重定向都要重新过白名单。
	cc := *c
	cc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("重定向次数过多")
		}
		if _, ok := s.allowedPoster(req.URL.String()); !ok {
			return fmt.Errorf("重定向到不允许的地址：%s", req.URL.Host)
		}
		return nil
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxPosterBytes {
		return nil, fmt.Errorf("图片超过 %d 字节", maxPosterBytes)
	}
	return b, nil
}
