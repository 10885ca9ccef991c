package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"thinqscribe-payments/internal/service"
	"thinqscribe-payments/internal/transport/auth"
)

func (h *Handler) listAgreements(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	list, err := h.svc.Agreements.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", list)
}

func (h *Handler) createAgreement(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var in service.CreateAgreementInput
	if err := decodeJSON(w, r, &in); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	a, err := h.svc.Agreements.Create(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	SuccessCreated(w, "Agreement created", a)
}

func (h *Handler) getAgreement(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	a, err := h.svc.Agreements.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", a)
}

func (h *Handler) acceptAgreement(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	a, err := h.svc.Agreements.Accept(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "Agreement accepted", a)
}

func (h *Handler) cancelAgreement(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	a, err := h.svc.Agreements.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "Agreement cancelled", a)
}
