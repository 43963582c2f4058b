package normalize

import "github.com/tidwall/gjson"

// Schema 是某一种上游抓取器输出格式到规范记录的映射表。
//
// 每个字段列出候选路径（gjson 路径语法），按顺序取第一个非空值。
// Info 的每一组是“互为替代”的候选（例如 genre|genres），组与组之间按顺序各成一条。
type Schema struct {
	Name string

	// Signature 出现时选中该表；generic 的 Signature 为空。
	Signature string

	Title  []string
	Rank   []string
	Year   []string
	Region []string
	Cover  []string
	Rating []string
	Link   []string

	// Abstract 指向 ["...", "1994 / 美国 / ..."] 形式的二元数组；为空表示不从中推导年份/地区。
	Abstract string

	Info    [][]string
	Summary string
}

// 各字段的候选路径。所有上游共用同一条优先级链：同一条记录不论来自哪个抓取器，
// 展示结果都一致；上游之间的差别只体现在检测签名上。
var (
	titlePaths  = []string{"name", "title"}
	rankPaths   = []string{"rank"}
	yearPaths   = []string{"year"}
	regionPaths = []string{"region"}
	coverPaths  = []string{"covers", "pic.normal"}
	ratingPaths = []string{"score", "rating"}
	linkPaths   = []string{"links", "url"}

	infoGroups = [][]string{
		{"type_name"},
		{"publish"},
		{"region"},
		{"genre", "genres"},
		{"director"},
		{"actors"},
		{"abstract"},
		{"certificate"},
		{"info"},
		{"quote"},
	}
)

func newSchema(name, signature string) Schema {
	return Schema{
		Name:      name,
		Signature: signature,
		Title:     titlePaths,
		Rank:      rankPaths,
		Year:      yearPaths,
		Region:    regionPaths,
		Cover:     coverPaths,
		Rating:    ratingPaths,
		Link:      linkPaths,
		Abstract:  "abstract",
		Info:      infoGroups,
		Summary:   "summary",
	}
}

var (
	// 豆瓣网页版 Top250：年份/地区藏在 abstract 第二行里。
	DoubanWeb = newSchema("douban_web", "abstract")

	// 豆瓣移动端接口：封面在 pic.normal，评分是 {value, count} 对象。
	DoubanAPI = newSchema("douban_api", "pic")

	// IMDb 风格：有分级（certificate）。
	IMDb = newSchema("imdb", "certificate")

	// Generic 是未知来源的兜底表。
	Generic = newSchema("generic", "")
)

// Schemas 是按检测优先级排列的已知映射表（不含 Generic）。
var Schemas = []Schema{DoubanWeb, DoubanAPI, IMDb}

// Detect 按 Signature 选择映射表；都不匹配时返回 Generic。
func Detect(rec gjson.Result) Schema {
	for _, s := range Schemas {
		if rec.Get(s.Signature).Exists() {
			return s
		}
	}
	return Generic
}
