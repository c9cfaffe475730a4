package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"darkgrid/core/fault"
	"darkgrid/core/models"
)

// ListEntities returns world entities, optionally filtered by type or owner.
func (s *Server) ListEntities(w http.ResponseWriter, r *http.Request) {
	query := s.db.WithContext(r.Context()).Model(&models.Entity{})
	if t := r.URL.Query().Get("type"); t != "" {
		query = query.Where("type = ?", t)
	}
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			s.writeError(w, fault.Validationf("invalid owner_id"))
			return
		}
		query = query.Where("owner_id = ?", id)
	}
	var entities []models.Entity
	if err := query.Find(&entities).Error; err != nil {
		s.writeError(w, fault.Internalf("list entities: %v", err))
		return
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	s.writeJSON(w, http.StatusOK, entities)
}

// GetEntity returns a single entity by id.
func (s *Server) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fault.Validationf("invalid entity id"))
		return
	}
	var entity models.Entity
	err = s.db.WithContext(r.Context()).First(&entity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.writeError(w, fault.NotFoundf("entity not found"))
		return
	}
	if err != nil {
		s.writeError(w, fault.Internalf("load entity: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, entity)
}
