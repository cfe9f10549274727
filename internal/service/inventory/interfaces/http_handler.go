// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"qcom/internal/pkg/geo"
	"qcom/internal/service/inventory/application"
	"qcom/internal/service/inventory/domain"
)

// InventoryHandler 封装了 inventory 服务的 HTTP 处理器
type InventoryHandler struct {
	orchestrator *application.AllocationOrchestrator
	lifecycle    *application.ReservationLifecycle
	ledger       *application.StockLedger
	feed         *StockFeedHub

	// 请求未携带 freeRadiusKm 时使用的平台默认免费半径
	defaultFreeRadiusKm float64
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例
func NewInventoryHandler(
	orchestrator *application.AllocationOrchestrator,
	lifecycle *application.ReservationLifecycle,
	ledger *application.StockLedger,
	feed *StockFeedHub,
	defaultFreeRadiusKm float64,
) *InventoryHandler {
	return &InventoryHandler{
		orchestrator:        orchestrator,
		lifecycle:           lifecycle,
		ledger:              ledger,
		feed:                feed,
		defaultFreeRadiusKm: defaultFreeRadiusKm,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/allocate", h.handleAllocate)
	mux.HandleFunc("/reservations/confirm", h.handleConfirm)
	mux.HandleFunc("/reservations/release", h.handleRelease)
	mux.HandleFunc("/reservations/get", h.handleGetReservation)
	mux.HandleFunc("/availability", h.handleAvailability)
	mux.HandleFunc("/stock/set", h.handleSetStock)
	if h.feed != nil {
		mux.HandleFunc("/stock/feed", h.feed.HandleFeed)
	}
}

// AllocateRequest 是结账分配请求。
// freeRadiusKm 用指针区分"未携带"和"显式 0"：未携带时落到平台默认值。
type AllocateRequest struct {
	Items    []domain.Item `json:"items"`
	Customer geo.Point     `json:"customer"`
	Policy   struct {
		FreeRadiusKm *float64 `json:"freeRadiusKm"`
		PayMode      string   `json:"payMode"`
	} `json:"deliveryPolicy"`
	OrderID string `json:"orderId,omitempty"`
}

// AllocateResponse 返回预占单和运费报价
type AllocateResponse struct {
	ReservationID      string  `json:"reservationId"`
	WarehouseID        string  `json:"warehouseId"`
	ExpiresAt          string  `json:"expiresAt"`
	DistanceKm         float64 `json:"distanceKm"`
	DeliveryFee        int     `json:"deliveryFee"`
	SellerDeliveryCost int     `json:"sellerDeliveryCost"`
}

func (h *InventoryHandler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	policy := domain.DeliveryPolicy{
		FreeRadiusKm: h.defaultFreeRadiusKm,
		PayMode:      domain.PayMode(req.Policy.PayMode),
	}
	if req.Policy.FreeRadiusKm != nil {
		policy.FreeRadiusKm = *req.Policy.FreeRadiusKm
	}
	if policy.PayMode == "" {
		policy.PayMode = domain.PayModeUser
	}

	result, err := h.orchestrator.Allocate(ctx, req.Items, req.Customer, policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// 调用方已持有订单号时顺手回填，失败不影响分配结果
	if req.OrderID != "" {
		if bindErr := h.orchestrator.BindOrder(ctx, result.Reservation.ID, req.OrderID); bindErr != nil {
			writeDomainError(w, bindErr)
			return
		}
	}

	writeJSON(w, http.StatusCreated, AllocateResponse{
		ReservationID:      result.Reservation.ID,
		WarehouseID:        result.Reservation.WarehouseID,
		ExpiresAt:          result.Reservation.ExpiresAt.UTC().Format(time.RFC3339),
		DistanceKm:         result.Quote.DistanceKm,
		DeliveryFee:        result.Quote.DeliveryFee,
		SellerDeliveryCost: result.Quote.SellerDeliveryCost,
	})
}

// ConfirmRequest 确认预占，可携带订单号在确认前回填
type ConfirmRequest struct {
	ReservationID string `json:"reservationId"`
	OrderID       string `json:"orderId,omitempty"`
}

func (h *InventoryHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReservationID == "" {
		http.Error(w, "reservationId is required", http.StatusBadRequest)
		return
	}

	if req.OrderID != "" {
		if err := h.orchestrator.BindOrder(ctx, req.ReservationID, req.OrderID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if err := h.orchestrator.ConfirmAllocation(ctx, req.ReservationID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ReleaseRequest 释放预占
type ReleaseRequest struct {
	ReservationID string `json:"reservationId"`
	Reason        string `json:"reason,omitempty"`
}

func (h *InventoryHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReservationID == "" {
		http.Error(w, "reservationId is required", http.StatusBadRequest)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = application.ReleaseReasonCancelled
	}

	if err := h.orchestrator.ReleaseAllocation(ctx, req.ReservationID, reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *InventoryHandler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	id := r.URL.Query().Get("id")
	orderID := r.URL.Query().Get("order_id")

	var (
		reservation *domain.Reservation
		err         error
	)
	switch {
	case id != "":
		reservation, err = h.lifecycle.FindByID(ctx, id)
	case orderID != "":
		reservation, err = h.lifecycle.FindByOrderID(ctx, orderID)
	default:
		http.Error(w, "id or order_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (h *InventoryHandler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	warehouseID := r.URL.Query().Get("warehouse_id")
	skuID := r.URL.Query().Get("sku_id")
	if warehouseID == "" || skuID == "" {
		http.Error(w, "warehouse_id and sku_id are required", http.StatusBadRequest)
		return
	}

	record, err := h.ledger.GetAvailability(ctx, warehouseID, skuID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"warehouseId": record.WarehouseID,
		"skuId":       record.SKUID,
		"onHand":      record.OnHand,
		"reserved":    record.Reserved,
		"available":   record.Available(),
	})
}

// SetStockRequest 运营铺货接口
type SetStockRequest struct {
	WarehouseID string `json:"warehouseId"`
	SKUID       string `json:"skuId"`
	OnHand      int    `json:"onHand"`
}

func (h *InventoryHandler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req SetStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WarehouseID == "" || req.SKUID == "" || req.OnHand < 0 {
		http.Error(w, "warehouseId, skuId and non-negative onHand are required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.SetOnHand(ctx, req.WarehouseID, req.SKUID, req.OnHand); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// writeDomainError 按错误类别映射 HTTP 状态码：
// 资源缺失 404，状态冲突 409，库存不足 422，其余 500。
func writeDomainError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock):
		statusCode = http.StatusUnprocessableEntity
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
