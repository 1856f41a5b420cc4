package api

import (
	"encoding/json"
	"net/http"

	"bhs-files/internal/analytics"
)

type StorageUsageResponse struct {
	QuotaMB float64            `json:"quota_mb" example:"1024"`
	Usage   analytics.Usage    `json:"usage"`
	Percent map[string]float64 `json:"percent"`
}

// @Summary      Get storage usage
// @Description  Flattens the full tree, classifies each file by icon tag and sums usage per category against the fixed quota. Percentages are clamped to [0,100] for display.
// @Tags         storage
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  StorageUsageResponse
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /storage/usage [get]
func (s *Server) GetStorageUsageHandler(w http.ResponseWriter, r *http.Request) {
	tree, err := s.store.FetchTree(r.Context(), nil)
	if err != nil {
		http.Error(w, "Failed to fetch tree", http.StatusInternalServerError)
		return
	}

	usage := analytics.Summarize(tree)

	response := StorageUsageResponse{
		QuotaMB: analytics.QuotaMB,
		Usage:   usage,
		Percent: map[string]float64{
			"total":       analytics.PercentOfQuota(usage.TotalMB),
			"image":       analytics.PercentOfQuota(usage.ImageMB),
			"document":    analytics.PercentOfQuota(usage.DocumentMB),
			"video":       analytics.PercentOfQuota(usage.VideoMB),
			"spreadsheet": analytics.PercentOfQuota(usage.SpreadsheetMB),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
