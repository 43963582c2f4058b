package domain

// Movie 是渲染层消费的规范化电影记录（canonical record）。
//
// 约束：
// - 所有展示字段都是已经决策好的字符串（"-" / "" 等占位也在 normalize 阶段决定）
// - RankValue/HasRank 只用于排序，不进入 JSON
type Movie struct {
	Index  int    `json:"index"` // 排序后的 1-based 序号
	Rank   string `json:"rank"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Cover  string `json:"cover"`
	Rating string `json:"rating"`
	Year   string `json:"year"`
	Region string `json:"region"`

	Info []string `json:"info"`

	// Schema 记录命中的上游映射表（douban_web / douban_api / imdb / generic）。
	Schema string `json:"schema"`

	RankValue float64 `json:"-"`
	HasRank   bool    `json:"-"`
}
