package snapshot

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Payload 是镜像上某一天 JSON 文件的最小解析结果。
//
// 形状：{ movies: [...], description: { subtitle }, extra: { modify_time }, update_time }
// 只做“字段存在性”检查，movies 里的每条记录保持原样交给 normalize。
type Payload struct {
	Movies     []gjson.Result
	Subtitle   string
	UpdateTime string
}

var (
	ErrInvalidJSON   = errors.New("不是合法的 JSON")
	ErrNotObject     = errors.New("顶层不是 JSON 对象")
	ErrMissingMovies = errors.New("缺少 movies 数组")
)

// Decode 解析快照文件。非法 JSON 或缺少 movies 数组都视为解析失败（调用方会换下一个镜像）。
func Decode(body []byte) (Payload, error) {
	if !gjson.ValidBytes(body) {
		return Payload{}, ErrInvalidJSON
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Payload{}, ErrNotObject
	}
	movies := root.Get("movies")
	if !movies.IsArray() {
		return Payload{}, ErrMissingMovies
	}

	update := strings.TrimSpace(root.Get("extra.modify_time").String())
	if update == "" {
		update = strings.TrimSpace(root.Get("update_time").String())
	}

	return Payload{
		Movies:     movies.Array(),
		Subtitle:   strings.TrimSpace(root.Get("description.subtitle").String()),
		UpdateTime: update,
	}, nil
}
