package server

import (
	"bytes"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/fantribe/top250/internal/domain"
	"github.com/fantribe/top250/internal/navigator"
	"github.com/fantribe/top250/internal/render"
)

// showPosters 解析 posters 参数：缺省显示；多个值时以最后一个为准（表单里 hidden 0 在 checkbox 1 之前）。
func showPosters(q url.Values) bool {
	vs := q["posters"]
	if len(vs) == 0 {
		return true
	}
	return vs[len(vs)-1] != "0"
}

func navURL(date time.Time, nav string, posters bool) string {
	q := url.Values{}
	q.Set("date", date.Format(navigator.DateLayout))
	q.Set("nav", nav)
	if posters {
		q.Set("posters", "1")
	} else {
		q.Set("posters", "0")
	}
	return "/?" + q.Encode()
}

func (s *Server) pageHandler(w http.ResponseWriter, r *http.Request) {
	nav := s.navigate(r)
	posters := showPosters(r.URL.Query())
	id := r.Header.Get(requestIDHeader)

	snap, err := s.opts.Loader.Load(r.Context(), nav.Current(), requestLog{id: id})

	p := render.Page{
		Date:        nav.Current().Format(navigator.DateLayout),
		Min:         nav.Floor().Format(navigator.DateLayout),
		Max:         nav.Today().Format(navigator.DateLayout),
		CanPrev:     nav.CanPrev(),
		CanNext:     nav.CanNext(),
		PrevURL:     navURL(nav.Current(), "prev", posters),
		NextURL:     navURL(nav.Current(), "next", posters),
		FormAction:  "/",
		ShowPosters: posters,
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	} else {
		p.Snapshot = &snap
		var rewrite func(string) string
		if s.opts.Poster.Enabled {
			rewrite = s.posterURL
		}
		p.Rows = render.Rows(snap.Movies, rewrite)
	}

	var buf bytes.Buffer
	if err := render.WritePage(&buf, p); err != nil {
		log.Printf("[%s] render: %v", id, err)
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// apiResponse 在快照之外附带错误信息；失败时 movies 为空数组、attempts 说明原因。
type apiResponse struct {
	domain.Snapshot
	Error string `json:"error,omitempty"`
}

func (s *Server) apiHandler(w http.ResponseWriter, r *http.Request) {
	nav := s.navigate(r)
	snap, err := s.opts.Loader.Load(r.Context(), nav.Current(), requestLog{id: r.Header.Get(requestIDHeader)})
	if err != nil {
		serveJSON(w, http.StatusBadGateway, apiResponse{Snapshot: snap, Error: render.FailureMessage})
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	serveJSON(w, http.StatusOK, apiResponse{Snapshot: snap})
}
