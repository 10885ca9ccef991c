package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"thinqscribe-payments/internal/transport/auth"
)

// statementKey accepts both the bare id and the full key returned on creation.
func statementKey(id string) string {
	if strings.HasPrefix(id, "statements:") {
		return id
	}
	return "statements:" + id
}

func (h *Handler) listStatements(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	list, err := h.svc.Statements.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", list)
}

func (h *Handler) startStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var req statementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	month, err := req.month(time.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.svc.Statements.Start(r.Context(), userID, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	SuccessAccepted(w, "Statement queued", map[string]string{"statement_id": id})
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	st, err := h.svc.Statements.Get(r.Context(), userID, statementKey(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", st)
}
