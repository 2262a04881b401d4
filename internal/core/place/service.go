package place

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"
)

// Place 鄰近店家
type Place struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Amenity  string  `json:"amenity"`
	Cuisine  string  `json:"cuisine,omitempty"`
	Distance float64 `json:"distance_m"`
}

// overpassResponse Overpass API 回應體
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

// overpassCenter way 元素的中心點座標（out center）
type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Service 地點搜尋服務
type Service struct {
	httpClient *resty.Client
	config     *config.OverpassConfig
}

// NewService 創建地點搜尋服務
func NewService(cfg *config.OverpassConfig) *Service {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "text/plain")

	return &Service{
		httpClient: client,
		config:     cfg,
	}
}

// FindNearby 搜尋座標周邊的餐飲店家。
// 端點偶發 504/429，也可能回 200 但沒有任何具名店家；
// 兩種情況都延遲一段時間後重試一次。仍拿不到店家時回傳
// 空清單而不是錯誤，候選池空掉由上層以空狀態呈現。
func (s *Service) FindNearby(ctx context.Context, lat, lon, radiusMeters float64) []Place {
	query := buildQuery(lat, lon, radiusMeters)

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return []Place{}
			}
		}

		places, err := s.query(ctx, query, lat, lon)
		if err != nil {
			common.LogWarn("Overpass 查詢失敗",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if len(places) == 0 {
			common.LogWarn("Overpass 查無具名店家",
				zap.Int("attempt", attempt+1),
				zap.Float64("radius_m", radiusMeters),
			)
			continue
		}

		common.LogInfo("Overpass 查詢成功",
			zap.Int("count", len(places)),
			zap.Float64("radius_m", radiusMeters),
		)
		return places
	}

	return []Place{}
}

// query 發出單次 Overpass 查詢
func (s *Service) query(ctx context.Context, query string, originLat, originLon float64) ([]Place, error) {
	var result overpassResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(query).
		SetResult(&result).
		Post(s.config.BaseURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("overpass returned status %d", resp.StatusCode())
	}

	// 無名稱的節點對使用者沒有意義，直接略過；同名店家只保留第一筆
	places := make([]Place, 0, len(result.Elements))
	seen := make(map[string]bool, len(result.Elements))
	for _, el := range result.Elements {
		name := el.Tags["name"]
		if name == "" {
			name = el.Tags["name:en"]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		// way 元素本身沒有座標，取 out center 給的中心點
		elLat, elLon := el.Lat, el.Lon
		if el.Center != nil {
			elLat, elLon = el.Center.Lat, el.Center.Lon
		}

		places = append(places, Place{
			ID:       el.ID,
			Name:     name,
			Lat:      elLat,
			Lon:      elLon,
			Amenity:  el.Tags["amenity"],
			Cuisine:  el.Tags["cuisine"],
			Distance: haversineMeters(originLat, originLon, elLat, elLon),
		})
	}
	return places, nil
}

// buildQuery 組出 Overpass QL 查詢字串
func buildQuery(lat, lon, radiusMeters float64) string {
	const amenities = `restaurant|fast_food|cafe|food_court|street_vendor`
	return fmt.Sprintf(`[out:json][timeout:25];
(
  node["amenity"~"%s"](around:%.0f,%f,%f);
  way["amenity"~"%s"](around:%.0f,%f,%f);
);
out center;`, amenities, radiusMeters, lat, lon, amenities, radiusMeters, lat, lon)
}

// haversineMeters 計算兩座標間的球面距離（公尺）
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0

	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
