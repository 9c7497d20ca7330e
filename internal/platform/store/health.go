package store

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Stats summarizes store contents for health and capability reporting.
type Stats struct {
	Documents      int            `json:"documents"`
	CreationEvents int            `json:"creation_events"`
	Types          map[string]int `json:"types"`
	Healthy        bool           `json:"healthy"`
}

// GetStats returns a snapshot of store statistics.
func GetStats(s *Store) *Stats {
	counts := s.TypeCounts()
	total := 0
	for _, n := range counts {
		total += n
	}
	return &Stats{
		Documents:      total,
		CreationEvents: s.TotalCount(),
		Types:          counts,
		Healthy:        true,
	}
}

// HealthHandler returns a handler for the health check endpoint.
func HealthHandler(s *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  "store not initialized",
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"store":  GetStats(s),
		})
	}
}
