package rest

import (
	"net/http"

	"thinqscribe-payments/internal/service"
	"thinqscribe-payments/internal/transport/auth"
)

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	d, err := h.svc.Dashboard.Get(r.Context(), userID, clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", d)
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	Success(w, "", h.svc.Policy)
}

func (h *Handler) detectLocation(w http.ResponseWriter, r *http.Request) {
	if h.svc.Locations == nil {
		Success(w, "", service.FallbackLocation(h.svc.Policy.UsdToNgnRate))
		return
	}
	Success(w, "", h.svc.Locations.Detect(r.Context(), clientIP(r)))
}
