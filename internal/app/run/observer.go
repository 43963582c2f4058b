package run

import (
	"time"

	"github.com/fantribe/top250/internal/domain"
)

// Observer 用于把“拉取进度/镜像尝试/结果”从核心流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：serve 模式下多个请求会同时触发事件。
type Observer interface {
	// OnStart 在发起第一个请求之前调用。
	OnStart(date, path string)
	// OnAttempt 在每个镜像尝试结束时调用（成功或失败）。
	OnAttempt(a domain.Attempt)
	// OnDone 在 Load 返回前调用；err 非空表示所有镜像均失败或被取消。
	OnDone(s domain.Snapshot, err error, dur time.Duration)
}

// Nop 是什么都不做的 Observer。
type Nop struct{}

func (Nop) OnStart(string, string)                          {}
func (Nop) OnAttempt(domain.Attempt)                        {}
func (Nop) OnDone(domain.Snapshot, error, time.Duration) {}
