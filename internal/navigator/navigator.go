package navigator

import (
	"fmt"
	"time"
)

// DateLayout 是日期选择器与配置里使用的日期格式。
const DateLayout = "2006-01-02"

// Clock 返回“现在”；时区决定了“今天”是哪一天。
type Clock func() time.Time

// Navigator 是一个只有 current 一个状态的日期状态机，取值范围 [floor, today]（两端都包含）。
//
// 所有日期都规约为 UTC 零点的“日历日”；today 每次都重新由 Clock 计算（跨零点后自动前移）。
type Navigator struct {
	floor   time.Time
	current time.Time
	clock   Clock
}

// New 创建导航器，初始 current 为“昨天”（不早于 floor）。
func New(floor time.Time, clock Clock) *Navigator {
	if clock == nil {
		clock = time.Now
	}
	n := &Navigator{floor: Day(floor), clock: clock}
	n.Reset()
	return n
}

// Day 把任意时刻规约为同一日历日的 UTC 零点。
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay 解析 YYYY-MM-DD。
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式应为 YYYY-MM-DD：%q", s)
	}
	return Day(t), nil
}

// Today 返回当前的上界（今天）。
func (n *Navigator) Today() time.Time { return Day(n.clock()) }

// Floor 返回生效的下界；配置的 floor 晚于今天时，以今天为下界。
func (n *Navigator) Floor() time.Time {
	today := n.Today()
	if n.floor.After(today) {
		return today
	}
	return n.floor
}

// Current 返回当前选中的日期。
func (n *Navigator) Current() time.Time { return n.current }

// Reset 回到默认值：昨天，但不早于 floor。
func (n *Navigator) Reset() {
	n.current = n.clamp(n.Today().AddDate(0, 0, -1))
}

// Prev 后退一天；已在 floor 时保持不变。返回 current 是否变化。
func (n *Navigator) Prev() bool {
	before := n.current
	d := n.current.AddDate(0, 0, -1)
	if floor := n.Floor(); d.Before(floor) {
		d = floor
	}
	n.current = d
	return !n.current.Equal(before)
}

// Next 前进一天，不超过今天；已在今天时保持不变。返回 current 是否变化。
func (n *Navigator) Next() bool {
	before := n.current
	d := n.current.AddDate(0, 0, 1)
	if today := n.Today(); d.After(today) {
		d = today
	}
	n.current = d
	return !n.current.Equal(before)
}

// Set 选择指定日期：晚于今天时拒绝并回到默认值；早于 floor 时取 floor。
// 返回是否接受了该日期。
func (n *Navigator) Set(d time.Time) bool {
	d = Day(d)
	if d.After(n.Today()) {
		n.Reset()
		return false
	}
	n.current = n.clamp(d)
	return true
}

// CanPrev 表示“上一天”按钮是否可用。
func (n *Navigator) CanPrev() bool { return n.current.After(n.Floor()) }

// CanNext 表示“下一天”按钮是否可用。
func (n *Navigator) CanNext() bool { return n.current.Before(n.Today()) }

func (n *Navigator) clamp(d time.Time) time.Time {
	if floor := n.Floor(); d.Before(floor) {
		return floor
	}
	if today := n.Today(); d.After(today) {
		return today
	}
	return d
}
