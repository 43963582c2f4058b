package render

import (
	"sort"

	"github.com/fantribe/top250/internal/domain"
)

// SortByRank 原地稳定排序并写入 1-based 的 Index。
//
// 规则：数字排名升序；没有数字排名的记录排在所有有排名的记录之后，彼此按标题排序。
func SortByRank(movies []domain.Movie) {
	sort.SliceStable(movies, func(i, j int) bool {
		a, b := movies[i], movies[j]
		switch {
		case a.HasRank && b.HasRank:
			return a.RankValue < b.RankValue
		case a.HasRank:
			return true
		case b.HasRank:
			return false
		default:
			return a.Title < b.Title
		}
	})
	for i := range movies {
		movies[i].Index = i + 1
	}
}
