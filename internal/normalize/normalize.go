package normalize

import (
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/fantribe/top250/internal/domain"
)

const placeholder = "-"

// Movies 把一组原始记录规范化（保持输入顺序；排序由 render 负责）。
func Movies(records []gjson.Result) []domain.Movie {
	out := make([]domain.Movie, 0, len(records))
	for _, r := range records {
		out = append(out, Movie(r))
	}
	return out
}

// Movie 用自动检测到的映射表规范化一条记录。
func Movie(rec gjson.Result) domain.Movie {
	return MovieWith(Detect(rec), rec)
}

// MovieWith 用指定映射表规范化一条记录。
func MovieWith(s Schema, rec gjson.Result) domain.Movie {
	m := domain.Movie{
		Title:  firstOf(rec, s.Title),
		Cover:  firstOf(rec, s.Cover),
		Link:   firstOf(rec, s.Link),
		Year:   firstOf(rec, s.Year),
		Region: firstOf(rec, s.Region),
		Rating: ratingOf(rec, s.Rating),
		Schema: s.Name,
	}

	m.Rank = placeholder
	if v, ok := rankOf(rec, s.Rank); ok {
		m.RankValue = v
		m.HasRank = true
		m.Rank = cast.ToString(v)
	}

	if s.Abstract != "" {
		if parts, ok := abstractParts(rec.Get(s.Abstract)); ok {
			if m.Year == "" {
				m.Year = yearFrom(parts)
			}
			if m.Region == "" && len(parts) >= 2 {
				m.Region = parts[1]
			}
		}
	}

	for _, group := range s.Info {
		for _, path := range group {
			if b, ok := bullet(rec.Get(path)); ok {
				m.Info = append(m.Info, b)
				break
			}
		}
	}
	if len(m.Info) == 0 {
		m.Info = []string{firstValue(rec.Get(s.Summary))}
	}
	return m
}

// firstOf 依次取各路径的 first-value，返回第一个非空串。
func firstOf(rec gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := firstValue(rec.Get(p)); v != "" {
			return v
		}
	}
	return ""
}

// ratingOf 与 firstOf 相同，但 "0" 视为“暂无评分”；全部为空时返回 "-"。
func ratingOf(rec gjson.Result, paths []string) string {
	for _, p := range paths {
		v := firstValue(rec.Get(p))
		if v == "0" {
			v = placeholder
		}
		if v != "" {
			return v
		}
	}
	return placeholder
}

func rankOf(rec gjson.Result, paths []string) (float64, bool) {
	v := strings.TrimSpace(firstOf(rec, paths))
	if v == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// firstValue 把任意形状的值收敛为一个展示字符串：
// null -> ""，数组 -> 首元素，对象 -> value 成员，标量 -> 字符串形式。
func firstValue(r gjson.Result) string {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return ""
	case r.IsArray():
		arr := r.Array()
		if len(arr) == 0 {
			return ""
		}
		return text(arr[0])
	case r.IsObject():
		return text(r.Get("value"))
	default:
		return text(r)
	}
}

// text 是单个值的字符串形式（数字取最短表示）。
func text(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return r.Str
	case gjson.Number:
		return cast.ToString(r.Num)
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	}
	if r.IsArray() {
		parts := make([]string, 0, 4)
		for _, e := range r.Array() {
			parts = append(parts, text(e))
		}
		return strings.Join(parts, ",")
	}
	if r.IsObject() {
		return strings.Join(objectValues(r), "/")
	}
	return ""
}

func objectValues(r gjson.Result) []string {
	var vals []string
	r.ForEach(func(_, v gjson.Result) bool {
		vals = append(vals, text(v))
		return true
	})
	return vals
}

func notEmpty(r gjson.Result) bool {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return false
	case r.Type == gjson.String:
		return r.Str != ""
	case r.IsArray():
		return len(r.Array()) > 0
	}
	return true
}

// bullet 把一个信息字段压平为一条列表项：数组用 " / " 连接，对象取各成员值用 "/" 连接。
func bullet(r gjson.Result) (string, bool) {
	if !notEmpty(r) {
		return "", false
	}
	if r.IsArray() {
		parts := make([]string, 0, 4)
		for _, e := range r.Array() {
			parts = append(parts, text(e))
		}
		return strings.Join(parts, " / "), true
	}
	return text(r), true
}

// abstractParts 识别 ["导演: ...", "1994 / 美国 / 犯罪 剧情"] 形式，返回第二个元素按 " / " 切分的结果。
func abstractParts(r gjson.Result) ([]string, bool) {
	if !r.IsArray() {
		return nil, false
	}
	arr := r.Array()
	if len(arr) != 2 {
		return nil, false
	}
	return strings.Split(text(arr[1]), " / "), true
}

// yearFrom 取第一段的前 4 个字符；不是数字时返回 "0"。
func yearFrom(parts []string) string {
	rs := []rune(parts[0])
	if len(rs) > 4 {
		rs = rs[:4]
	}
	prefix := strings.TrimSpace(string(rs))
	if prefix == "" {
		return ""
	}
	if _, err := cast.ToFloat64E(prefix); err != nil {
		return "0"
	}
	return prefix
}
