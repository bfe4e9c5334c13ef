package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/metrics"
	"github.com/surveysystem/tax-api/internal/tax"
)

// ZoneLoader fetches the current zone set from the administrative feed.
type ZoneLoader func(ctx context.Context) ([]tax.Zone, error)

// ZoneHandler serves the administrative tax zone endpoints.
type ZoneHandler struct {
	common *CommonServices
	index  *tax.ZoneIndex
	load   ZoneLoader
	logger *zap.Logger
}

// NewZoneHandler creates a zone handler over the index and feed loader.
func NewZoneHandler(common *CommonServices, index *tax.ZoneIndex, load ZoneLoader) *ZoneHandler {
	return &ZoneHandler{
		common: common,
		index:  index,
		load:   load,
		logger: common.logger,
	}
}

// ZoneResponse represents a tax zone in API responses.
type ZoneResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Level       string `json:"level"`
	StateRate   string `json:"state_rate"`
	CountyRate  string `json:"county_rate"`
	CityRate    string `json:"city_rate"`
	SpecialRate string `json:"special_rate"`
	HasBoundary bool   `json:"has_boundary"`
}

// ListZones returns every zone in the installed snapshot.
func (h *ZoneHandler) ListZones(c *gin.Context) {
	zones := h.index.Zones()
	if zones == nil {
		h.common.HandleError(c, tax.ErrIndexNotLoaded, "Zone index not loaded", http.StatusServiceUnavailable)
		return
	}
	resp := make([]ZoneResponse, 0, len(zones))
	for _, z := range zones {
		resp = append(resp, ZoneResponse{
			ID:          z.ID,
			Name:        z.Name,
			Level:       string(z.Level),
			StateRate:   tax.FormatRateMicros(z.StateRateMicros),
			CountyRate:  tax.FormatRateMicros(z.CountyRateMicros),
			CityRate:    tax.FormatRateMicros(z.CityRateMicros),
			SpecialRate: tax.FormatRateMicros(z.SpecialRateMicros),
			HasBoundary: z.Boundary != nil,
		})
	}
	c.JSON(http.StatusOK, gin.H{"zones": resp, "count": len(resp)})
}

// ReloadZones re-reads the administrative feed and atomically installs
// the new snapshot. Queries in flight finish against the old one.
func (h *ZoneHandler) ReloadZones(c *gin.Context) {
	ctx := c.Request.Context()
	zones, err := h.load(ctx)
	if err != nil {
		h.common.HandleError(c, err, "Failed to load zone feed", http.StatusBadGateway)
		return
	}
	if err := h.index.Load(zones); err != nil {
		h.common.HandleError(c, err, "Zone feed rejected", http.StatusUnprocessableEntity)
		return
	}
	metrics.ZoneReloadsTotal.Inc()

	stats, _ := h.index.Stats()
	h.logger.Info("Zone feed reloaded",
		zap.Int("zones", stats.ZoneCount),
		zap.Int("spatial_zones", stats.SpatialCount))
	c.JSON(http.StatusOK, stats)
}
