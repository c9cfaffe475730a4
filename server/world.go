package server

import (
	"net/http"

	"gorm.io/gorm"

	"darkgrid/core/models"
)

type worldResponse struct {
	Tick           uint32 `json:"tick"`
	Seed           uint32 `json:"seed"`
	RulesetVersion string `json:"ruleset_version"`
}

// GetWorld reports the current tick, seed, and active ruleset version.
func (s *Server) GetWorld(w http.ResponseWriter, r *http.Request) {
	var world *models.World
	err := s.inTx(r, func(tx *gorm.DB) error {
		var err error
		world, err = s.engine.GetWorldState(tx)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, worldResponse{
		Tick:           world.Tick,
		Seed:           world.Seed,
		RulesetVersion: world.RulesetVersion,
	})
}
