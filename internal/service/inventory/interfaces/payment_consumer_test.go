// internal/service/inventory/interfaces/payment_consumer_test.go
package interfaces

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Stop 与消费循环并发执行：停止标志从另一个 goroutine 写入，
// 循环必须观察到它并退出，Stop 在 WaitGroup 上等到循环真正结束。
func TestPaymentConsumerStopTerminatesLoop(t *testing.T) {
	// broker 不可达，循环停在 FetchMessage 的错误重试上
	consumer := NewPaymentConsumerAdapter([]string{"127.0.0.1:1"}, "test-group", nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		consumer.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not terminate the consumer loop")
	}
}
