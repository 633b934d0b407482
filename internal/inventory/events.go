package inventory

import (
	"time"

	"github.com/google/uuid"
)

// LowStockAlert is raised after a committed document leaves a product at or below
// its minimum stock.
type LowStockAlert struct {
	ProductID  uuid.UUID `json:"product_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Stock      int       `json:"stock"`
	MinStock   int       `json:"min_stock"`
	Reference  string    `json:"reference"`
	DetectedAt time.Time `json:"detected_at"`
}

// LowStockAlerts filters products down to alerts for those at or below minimum.
func LowStockAlerts(products []Product, reference string, at time.Time) []LowStockAlert {
	var alerts []LowStockAlert
	for _, p := range products {
		if !p.IsLowStock() {
			continue
		}
		alerts = append(alerts, LowStockAlert{
			ProductID:  p.ID,
			Code:       p.Code,
			Name:       p.Name,
			Stock:      p.Stock,
			MinStock:   p.MinStock,
			Reference:  reference,
			DetectedAt: at,
		})
	}
	return alerts
}
