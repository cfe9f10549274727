// internal/service/inventory/domain/pricing.go
package domain

import "math"

// PayMode 决定免费半径之外的运费由谁承担
type PayMode string

const (
	PayModeUser   PayMode = "user"   // 买家承担
	PayModeSeller PayMode = "seller" // 卖家承担
)

// DeliveryPolicy 是用户维度的运费策略，由身份域提供，本服务只读
type DeliveryPolicy struct {
	FreeRadiusKm float64 `json:"freeRadiusKm"`
	PayMode      PayMode `json:"payMode"`
}

// PricingConfig 是运费计算的档位参数
type PricingConfig struct {
	BaseFee  float64 `yaml:"baseFee" json:"baseFee"`
	PerKmFee float64 `yaml:"perKmFee" json:"perKmFee"`
	BaseKm   float64 `yaml:"baseKm" json:"baseKm"`
}

// DefaultPricingConfig 返回平台默认的运费档位
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{BaseFee: 20, PerKmFee: 6, BaseKm: 3}
}

// DeliveryQuote 是一次请求内推导出的运费报价，不落库，每次重新计算
type DeliveryQuote struct {
	DistanceKm         float64 `json:"distanceKm"`
	DeliveryFee        int     `json:"deliveryFee"`
	SellerDeliveryCost int     `json:"sellerDeliveryCost"`
}

// QuoteDelivery 根据距离与用户策略计算运费。
// 免费半径内（含边界）运费为 0；超出后按 baseFee + max(0, d-baseKm)*perKmFee 计算，
// 只对最终金额做四舍五入，中间距离不取整。
// payMode=seller 时买家运费恒为 0，原始金额计入卖家成本。
func QuoteDelivery(distanceKm float64, policy DeliveryPolicy, cfg PricingConfig) DeliveryQuote {
	if distanceKm <= policy.FreeRadiusKm {
		return DeliveryQuote{DistanceKm: distanceKm}
	}

	raw := cfg.BaseFee + math.Max(0, distanceKm-cfg.BaseKm)*cfg.PerKmFee

	if policy.PayMode == PayModeSeller {
		return DeliveryQuote{
			DistanceKm:         distanceKm,
			DeliveryFee:        0,
			SellerDeliveryCost: roundHalfUp(raw),
		}
	}
	return DeliveryQuote{
		DistanceKm:  distanceKm,
		DeliveryFee: roundHalfUp(raw),
	}
}

// roundHalfUp 实现 0.5 向上取整的四舍五入
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
