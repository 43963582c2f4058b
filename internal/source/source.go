package source

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultOwner        = "fantribe"
	DefaultRepo         = "cinephile-douban"
	DefaultBranch       = "main"
	DefaultPathTemplate = "data-top/{month}/movie-top250-{day}.json"
)

// DefaultMirrors 是内置的镜像模板，按优先级排列（jsdmirror -> jsdelivr -> raw github）。
var DefaultMirrors = []string{
	"https://cdn.jsdmirror.com/gh/{owner}/{repo}@{branch}/{file}",
	"https://cdn.jsdelivr.net/gh/{owner}/{repo}@{branch}/{file}",
	"https://raw.githubusercontent.com/{owner}/{repo}/refs/heads/{branch}/{file}",
}

var placeholderRE = regexp.MustCompile(`\{(\w+)\}`)

// Format 把模板中的 {key} 替换为 params[key]；缺失的 key 替换为空串。
func Format(template string, params map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(template, func(m string) string {
		return params[m[1:len(m)-1]]
	})
}

// SnapshotPath 按日期展开文件路径模板：{month}=YYYYMM，{day}=YYYYMMDD。
func SnapshotPath(template string, day time.Time) string {
	d := day.Format("20060102")
	return Format(template, map[string]string{
		"month": d[:6],
		"day":   d,
	})
}

// Resolver 把“仓库坐标 + 镜像模板”解析为具体 URL。
// 镜像列表在启动时确定，之后只读。
type Resolver struct {
	Owner  string
	Repo   string
	Branch string

	mirrors []string
}

func NewResolver(owner, repo, branch string, mirrors []string) (Resolver, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return Resolver{}, fmt.Errorf("repo 不能为空")
	}
	if len(mirrors) == 0 {
		return Resolver{}, fmt.Errorf("至少需要一个镜像模板")
	}
	seen := make(map[string]bool, len(mirrors))
	out := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		m = strings.TrimSpace(m)
		if m == "" {
			return Resolver{}, fmt.Errorf("镜像模板不能为空")
		}
		if !strings.Contains(m, "{file}") {
			return Resolver{}, fmt.Errorf("镜像模板缺少 {file}：%q", m)
		}
		if seen[m] {
			return Resolver{}, fmt.Errorf("重复的镜像模板：%q", m)
		}
		seen[m] = true
		out = append(out, m)
	}
	return Resolver{
		Owner:   strings.TrimSpace(owner),
		Repo:    repo,
		Branch:  strings.TrimSpace(branch),
		mirrors: out,
	}, nil
}

// Len 返回镜像数量。
func (r Resolver) Len() int { return len(r.mirrors) }

// Mirrors 返回镜像模板的副本。
func (r Resolver) Mirrors() []string { return append([]string(nil), r.mirrors...) }

// URL 返回第 i 个镜像（0-based）上 file 的完整地址。
func (r Resolver) URL(i int, file string) string {
	return Format(r.mirrors[i], map[string]string{
		"owner":  r.Owner,
		"repo":   r.Repo,
		"branch": r.Branch,
		"file":   file,
	})
}
