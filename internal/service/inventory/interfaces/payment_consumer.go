// internal/service/inventory/interfaces/payment_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"qcom/internal/pkg/mq"
	"qcom/internal/service/inventory/application"
	"qcom/internal/service/inventory/domain"
)

// 上游订单/支付域发布的主题
const (
	TopicPaymentSucceeded = "payment.succeeded"
	TopicPaymentFailed    = "payment.failed"
	TopicOrderCancelled   = "order.cancelled"
)

// paymentEnvelope 是上游事件的统一信封，载荷里带订单号
type paymentEnvelope struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Payload   struct {
		OrderID string `json:"orderId"`
	} `json:"payload"`
}

// PaymentConsumerAdapter 是一个驱动适配器：监听支付与订单事件，
// 驱动编排器完成预占的确认或释放。支付成功确认扣减，支付失败和
// 订单取消走释放。
type PaymentConsumerAdapter struct {
	reader       *kafka.Reader
	orchestrator *application.AllocationOrchestrator
	logger       zerolog.Logger
	wg           sync.WaitGroup
	stopped      atomic.Bool
}

func NewPaymentConsumerAdapter(brokers []string, groupID string, orchestrator *application.AllocationOrchestrator, logger zerolog.Logger) *PaymentConsumerAdapter {
	topics := []string{TopicPaymentSucceeded, TopicPaymentFailed, TopicOrderCancelled}
	return &PaymentConsumerAdapter{
		reader:       mq.NewGroupReader(brokers, groupID, topics),
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "payment-consumer").Logger(),
	}
}

// Start 开始监听。长期运行，随 ctx 取消或 Stop 退出。
func (a *PaymentConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info().Msg("payment consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，处理成功后再提交 offset
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || a.stopped.Load() {
					a.logger.Info().Msg("payment consumer shutting down")
					return
				}
				a.logger.Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				a.logger.Error().Err(err).Msg("failed to commit offset")
			}
		}
	}()
}

// Stop 优雅地停止消费者
func (a *PaymentConsumerAdapter) Stop() {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	a.logger.Info().Msg("payment consumer stopped")
}

func (a *PaymentConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	var envelope paymentEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		// 解不开的消息跳过，生产环境应转入死信队列
		a.logger.Error().Err(err).Str("topic", msg.Topic).Msg("failed to unmarshal event, skipping")
		return
	}
	if envelope.Payload.OrderID == "" {
		a.logger.Warn().Str("topic", msg.Topic).Str("event", envelope.EventID).Msg("event has no orderId, skipping")
		return
	}

	propagator := otel.GetTextMapPropagator()
	headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := propagator.Extract(parentCtx, &headerCarrier)

	orderID := envelope.Payload.OrderID
	var err error
	switch msg.Topic {
	case TopicPaymentSucceeded:
		err = a.orchestrator.ConfirmByOrder(ctx, orderID)
	case TopicPaymentFailed:
		err = a.orchestrator.ReleaseByOrder(ctx, orderID, application.ReleaseReasonPaymentFailed)
	case TopicOrderCancelled:
		err = a.orchestrator.ReleaseByOrder(ctx, orderID, application.ReleaseReasonCancelled)
	default:
		a.logger.Warn().Str("topic", msg.Topic).Msg("unexpected topic, skipping")
		return
	}

	switch {
	case err == nil:
		a.logger.Info().Str("topic", msg.Topic).Str("order", orderID).Msg("payment event handled")
	case errors.Is(err, domain.ErrNotFound):
		// 预占可能已被过期清理删除或事件重放，记下即可
		a.logger.Warn().Str("topic", msg.Topic).Str("order", orderID).Msg("no reservation bound to order")
	case errors.Is(err, domain.ErrConflict):
		// 幂等重放或输掉了与过期清理的竞争
		a.logger.Warn().Err(err).Str("topic", msg.Topic).Str("order", orderID).Msg("reservation already settled")
	default:
		a.logger.Error().Err(err).Str("topic", msg.Topic).Str("order", orderID).Msg("failed to handle payment event")
	}
}
