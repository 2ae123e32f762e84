package handler

import (
	"context"
	"net/http"

	"campus-market/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// withURLParams attaches chi URL parameters as the router would.
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), userID))
}
