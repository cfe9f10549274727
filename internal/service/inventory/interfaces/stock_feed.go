// internal/service/inventory/interfaces/stock_feed.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"qcom/internal/service/inventory/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 运营看板部署在独立域名下
	CheckOrigin: func(r *http.Request) bool { return true },
}

const clientSendBuffer = 256

type feedMessage struct {
	Topic     string       `json:"topic"`
	Timestamp string       `json:"timestamp"`
	Payload   domain.Event `json:"payload"`
}

// feedClient 是一个订阅连接的代表。连接的所有写入都经由 send channel
// 汇聚到 writePump 这一个 goroutine，websocket 连接不允许并发写。
// 关闭走 done channel，send 永远不关，并发 Publish 不会写到已关闭的 channel。
type feedClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// writePump 独占连接的写端，把 send channel 里的消息逐条写出
func (c *feedClient) writePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *feedClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// StockFeedHub 把库存域事件实时推送给 websocket 订阅方（运营看板）。
// 它实现 domain.EventPublisher，作为复合发布器的一个下游挂载。
// 慢客户端（send 缓冲写满）直接踢掉，广播永远不阻塞业务流程。
type StockFeedHub struct {
	mu      sync.RWMutex
	clients map[*feedClient]bool
	logger  zerolog.Logger
}

func NewStockFeedHub(logger zerolog.Logger) *StockFeedHub {
	return &StockFeedHub{
		clients: make(map[*feedClient]bool),
		logger:  logger.With().Str("component", "stock-feed").Logger(),
	}
}

// HandleFeed 处理 websocket 升级并登记订阅连接
func (h *StockFeedHub) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", total).Msg("feed client connected")

	go client.writePump()

	// 读循环只为感知断连，客户端发什么都丢弃
	go func() {
		defer h.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish 实现 domain.EventPublisher，把事件广播给全部订阅连接。
// 写入只进各客户端的 send 缓冲，缓冲已满说明客户端消费不动，踢掉。
func (h *StockFeedHub) Publish(ctx context.Context, event domain.Event) error {
	msg := feedMessage{
		Topic:     event.Topic(),
		Timestamp: event.Meta().OccurredAt.UTC().Format(time.RFC3339),
		Payload:   event,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("dropping slow feed client")
			h.drop(c)
		}
	}
	return nil
}

// Close 断开全部订阅连接
func (h *StockFeedHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *StockFeedHub) drop(client *feedClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}
