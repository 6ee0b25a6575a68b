package audit

import (
	"net/http"
	"strconv"

	"github.com/clinicore/clinic-booking/internal/transport"
	"github.com/clinicore/clinic-booking/internal/user"
	"github.com/clinicore/clinic-booking/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.LoggerWrapper()),
		service:     service,
	}
}

// ListByActor handles GET /audit?actor_id=...&limit=...&offset=...
// Only admin roles may read the log.
func (h *Handler) ListByActor(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !actor.Role.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "role lacks permission")
		return
	}

	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		h.WriteError(w, http.StatusBadRequest, "actor_id query parameter is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.service.ListByActor(r.Context(), actorID, limit, offset)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, entries)
}
