// internal/service/inventory/domain/stock.go
package domain

import (
	"time"

	"qcom/internal/pkg/geo"
)

// Item 是一条 (SKU, 数量) 请求项
type Item struct {
	SKUID    string `json:"skuId"`
	Quantity int    `json:"quantity"`
}

// StockRecord 是每个 (仓库, SKU) 的库存台账行。
// 不变量：任何一次变更之后都必须满足 0 <= Reserved <= OnHand。
// 该行只能通过 StockRepository 的 reserve/release/confirm 原语变更，
// 禁止直接写字段；Available 永远是推导值，不单独落库。
type StockRecord struct {
	WarehouseID string    `json:"warehouseId"`
	SKUID       string    `json:"skuId"`
	OnHand      int       `json:"onHand"`
	Reserved    int       `json:"reserved"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Available 返回可供新预占使用的数量
func (s *StockRecord) Available() int {
	return s.OnHand - s.Reserved
}

// Warehouse 是来自目录/运营域的只读参考数据
type Warehouse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
	RadiusKm float64   `json:"radiusKm"`
	Active   bool      `json:"active"`
}
