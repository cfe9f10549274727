// internal/service/inventory/domain/selector.go
package domain

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"qcom/internal/pkg/geo"
)

// AvailabilityFunc 是选仓时使用的库存视图：返回某 (仓库, SKU) 的可用数量。
// 记录不存在时返回 ErrNotFound，调用方视为不可用。
type AvailabilityFunc func(ctx context.Context, warehouseID, skuID string) (int, error)

// EligibilityPolicy 判断一个仓库对于给定配送距离是否有资格参与选仓。
// 接口定义在领域层，具体实现（CEL 规则引擎）在基础设施层。
type EligibilityPolicy interface {
	Eligible(w Warehouse, distanceKm float64) (bool, error)
}

// SelectionResult 是选仓结果：命中的仓库及其运费报价
type SelectionResult struct {
	WarehouseID string        `json:"warehouseId"`
	Quote       DeliveryQuote `json:"quote"`
}

type warehouseCandidate struct {
	warehouse  Warehouse
	distanceKm float64
	available  bool
}

// SelectWarehouse 为一组请求项挑选一个可完整履约的仓库。
//
// 算法：过滤 active 仓库并应用资格规则 -> 计算到客户的距离 -> 按距离稳定排序
// （距离相同保持入参顺序）-> 返回第一个所有请求项都满足 available >= quantity
// 的仓库及其报价。可用性是时点快照，真正的防超卖由台账的原子 reserve 兜底。
//
// 没有任何仓库可完整履约时返回 (nil, nil)：这是一个合法结果而不是错误，
// 由编排方决定如何终止下单。
//
// payMode=seller 不需要单独的扫描分支：运费计算本身已保证卖家承担模式下
// 买家运费为 0，一遍扫描同时覆盖两种承担方式。
func SelectWarehouse(
	ctx context.Context,
	items []Item,
	customer geo.Point,
	policy DeliveryPolicy,
	pricing PricingConfig,
	warehouses []Warehouse,
	availability AvailabilityFunc,
	rule EligibilityPolicy,
) (*SelectionResult, error) {
	candidates := make([]warehouseCandidate, 0, len(warehouses))

	for _, w := range warehouses {
		if !w.Active {
			continue
		}
		distance := geo.Distance(customer, w.Location)

		if rule != nil {
			ok, err := rule.Eligible(w, distance)
			if err != nil {
				return nil, errors.Wrapf(err, "eligibility rule failed for warehouse %s", w.ID)
			}
			if !ok {
				continue
			}
		}

		available, err := allItemsAvailable(ctx, w.ID, items, availability)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, warehouseCandidate{
			warehouse:  w,
			distanceKm: distance,
			available:  available,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distanceKm < candidates[j].distanceKm
	})

	for _, c := range candidates {
		if !c.available {
			continue
		}
		return &SelectionResult{
			WarehouseID: c.warehouse.ID,
			Quote:       QuoteDelivery(c.distanceKm, policy, pricing),
		}, nil
	}

	return nil, nil
}

func allItemsAvailable(ctx context.Context, warehouseID string, items []Item, availability AvailabilityFunc) (bool, error) {
	for _, item := range items {
		available, err := availability(ctx, warehouseID, item.SKUID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return false, errors.Wrapf(err, "availability check failed for warehouse %s sku %s", warehouseID, item.SKUID)
		}
		if available < item.Quantity {
			return false, nil
		}
	}
	return true, nil
}
