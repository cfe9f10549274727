// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"qcom/internal/service/inventory/domain"
)

// Locker 是清理任务的领导权锁。多实例部署时只允许一个实例执行清理，
// 生产实现基于 ZooKeeper 临时顺序节点；测试里用空实现即可。
type Locker interface {
	Lock() error
	Unlock() error
}

// NopLocker 单实例或测试用的空锁
type NopLocker struct{}

func (NopLocker) Lock() error   { return nil }
func (NopLocker) Unlock() error { return nil }

// ExpirySweeper 周期性扫描过期的 PENDING 预占单并逐个释放。
// TTL 过期是协作式的（sweep 驱动，不抢占）；每个预占单的释放独立成事务，
// 单条失败只记日志，不中断本轮剩余预占单的处理（best-effort, at-least-once）。
type ExpirySweeper struct {
	lifecycle    *ReservationLifecycle
	reservations domain.ReservationRepository
	locker       Locker
	interval     time.Duration
	batchSize    int
	parallelism  int
	logger       zerolog.Logger
}

func NewExpirySweeper(
	lifecycle *ReservationLifecycle,
	reservations domain.ReservationRepository,
	locker Locker,
	interval time.Duration,
	logger zerolog.Logger,
) *ExpirySweeper {
	if locker == nil {
		locker = NopLocker{}
	}
	return &ExpirySweeper{
		lifecycle:    lifecycle,
		reservations: reservations,
		locker:       locker,
		interval:     interval,
		batchSize:    200,
		parallelism:  4,
		logger:       logger.With().Str("component", "expiry-sweeper").Logger(),
	}
}

// Run 阻塞运行清理循环，直到 ctx 取消。通常放在独立 goroutine 里。
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if err := s.locker.Lock(); err != nil {
				s.logger.Warn().Err(err).Msg("could not acquire sweep leadership, skipping round")
				continue
			}
			released, err := s.SweepOnce(ctx)
			if uerr := s.locker.Unlock(); uerr != nil {
				s.logger.Warn().Err(uerr).Msg("failed to release sweep leadership")
			}
			if err != nil {
				s.logger.Error().Err(err).Msg("sweep round failed")
				continue
			}
			if released > 0 {
				s.logger.Info().Int("released", released).Msg("sweep round finished")
			}
		}
	}
}

// SweepOnce 执行一轮清理，返回成功释放的数量。
// 查询失败会中止本轮；单条释放失败只计日志。
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.reservations.FindExpired(ctx, time.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	released := make(chan string, len(expired))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, reservation := range expired {
		r := reservation
		g.Go(func() error {
			if err := s.lifecycle.Expire(gctx, r.ID); err != nil {
				// 下一轮还会扫到它，这里不让单条失败拖垮整轮
				s.logger.Warn().Err(err).Str("reservation", r.ID).Msg("failed to expire reservation")
				return nil
			}
			released <- r.ID
			return nil
		})
	}
	_ = g.Wait()
	close(released)

	count := 0
	for range released {
		count++
	}
	sweepReleasedTotal.Add(float64(count))
	return count, nil
}
