package server

import (
	"net/http"
	"strconv"

	"darkgrid/core/fault"
	"darkgrid/core/models"
)

// ListEvents returns events at or after since_tick, ordered by tick then
// insertion time.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := s.db.WithContext(r.Context()).Model(&models.Event{})
	if since := r.URL.Query().Get("since_tick"); since != "" {
		tick, err := strconv.ParseUint(since, 10, 32)
		if err != nil {
			s.writeError(w, fault.Validationf("invalid since_tick"))
			return
		}
		query = query.Where("tick >= ?", uint32(tick))
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var events []models.Event
	if err := query.Order("tick").Order("created_at").Find(&events).Error; err != nil {
		s.writeError(w, fault.Internalf("list events: %v", err))
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}
