package domain

import "time"

const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageOK    = "ok"
)

// Attempt 记录一次镜像尝试（用于解释 fallback 原因）。
type Attempt struct {
	Mirror   int    `json:"mirror"` // 1-based，与用户看到的“数据源 N”一致
	URL      string `json:"url"`
	Stage    string `json:"stage"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// Snapshot 是某一天的榜单快照（规范化之后）。
// show/export/API 都输出这个结构，字段保持稳定。
type Snapshot struct {
	Date       string `json:"date"` // YYYY-MM-DD
	Path       string `json:"path"` // 仓库内文件路径
	Subtitle   string `json:"subtitle"`
	UpdateTime string `json:"update_time"`

	Mirror    int    `json:"mirror"` // 成功的数据源（1-based）；全部失败时为 0
	SourceURL string `json:"source_url"`

	FetchedAt time.Time `json:"fetched_at"`

	Movies   []Movie   `json:"movies"`
	Attempts []Attempt `json:"attempts"`
}

// Failed 返回失败尝试的数量。
func (s Snapshot) Failed() int {
	n := 0
	for _, a := range s.Attempts {
		if a.Stage != StageOK {
			n++
		}
	}
	return n
}

// Finalize 统一输出形态：
// 1) 时间统一为 UTC（JSON 为 RFC3339 且后缀 Z）
// 2) movies/attempts/info 为 nil 时输出 []，而不是 null
func (s *Snapshot) Finalize() {
	s.FetchedAt = s.FetchedAt.UTC()
	if s.Movies == nil {
		s.Movies = []Movie{}
	}
	if s.Attempts == nil {
		s.Attempts = []Attempt{}
	}
	for i := range s.Movies {
		if s.Movies[i].Info == nil {
			s.Movies[i].Info = []string{}
		}
	}
}
