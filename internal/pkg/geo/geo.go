// internal/pkg/geo/geo.go
package geo

import "math"

// earthRadiusKm 是地球平均半径（公里），用于大圆距离计算
const earthRadiusKm = 6371.0

// Point 表示一个经纬度坐标点
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Distance 使用 Haversine 公式计算两点间的大圆距离，单位为公里。
// 纯函数，无副作用；Distance(a,b) == Distance(b,a)（浮点误差范围内）。
func Distance(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
