package handler

import (
	"log/slog"
	"net/http"

	"campus-market/internal/observability"
	"campus-market/internal/service"
)

// AdminHandler serves operator endpoints for listing storage.
type AdminHandler struct {
	listingService *service.ListingService
}

func NewAdminHandler(listingService *service.ListingService) *AdminHandler {
	return &AdminHandler{listingService: listingService}
}

type CleanupResponse struct {
	Success bool `json:"success"`
	service.CleanupReport
}

// Cleanup runs the retention and orphaned-image sweeps immediately.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.listingService.RunCleanup(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Error("Manual cleanup failed",
			slog.Int("listings_removed", report.ListingsRemoved),
			slog.Int("images_removed", report.ImagesRemoved),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	slog.Info("manual cleanup finished",
		slog.Int("listings_removed", report.ListingsRemoved),
		slog.Int("images_removed", report.ImagesRemoved))
	writeJSON(w, http.StatusOK, CleanupResponse{Success: true, CleanupReport: report})
}

// Storage reports listing counts and image directory usage.
func (h *AdminHandler) Storage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.listingService.StorageStats(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Error("Failed to collect storage stats",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to collect storage stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
