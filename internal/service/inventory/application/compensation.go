// internal/service/inventory/application/compensation.go
package application

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// compensationList 收集多步操作的补偿函数，失败时按后进先出执行。
// 多品项预占在台账层面只是一串单 SKU 原子操作，批次的 all-or-nothing
// 语义靠它兜底：任何一步失败，之前成功的占用全部退回。
type compensationList struct {
	compensations []func(ctx context.Context)
	lock          sync.Mutex
}

// Add 注册一个补偿函数，新注册的排在最前（LIFO）
func (c *compensationList) Add(comp func(ctx context.Context)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// Trigger 依次执行所有补偿函数。
// 补偿失败由各函数自行记录，这里不中断剩余补偿的执行。
func (c *compensationList) Trigger(ctx context.Context, logger zerolog.Logger) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	logger.Info().Int("count", len(c.compensations)).Msg("executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}
