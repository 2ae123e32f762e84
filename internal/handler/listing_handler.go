package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"campus-market/internal/domain"
	"campus-market/internal/middleware"
	"campus-market/internal/observability"
	"campus-market/internal/service"
)

type ListingHandler struct {
	listingService *service.ListingService
}

func NewListingHandler(listingService *service.ListingService) *ListingHandler {
	return &ListingHandler{listingService: listingService}
}

type MarkSoldResponse struct {
	Status    string `json:"status"`
	ProductID int64  `json:"product_id"`
}

// MarkSold marks a listing sold on behalf of its seller.
func (h *ListingHandler) MarkSold(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	productID, ok := pathID(r, "product_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	if err := h.listingService.MarkSold(r.Context(), productID, userID); err != nil {
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrNotSeller):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			observability.FromContext(r.Context()).Error("Failed to mark product sold",
				slog.Int64("product_id", productID),
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Failed to mark product sold")
		}
		return
	}

	writeJSON(w, http.StatusOK, MarkSoldResponse{Status: "sold", ProductID: productID})
}
