package server

import (
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"darkgrid/core/engine"
	"darkgrid/core/fault"
	"darkgrid/core/models"
	"darkgrid/gateway/middleware"
)

type actionSubmission struct {
	Type    string         `json:"type"`
	ActorID string         `json:"actor_id"`
	Payload models.JSONMap `json:"payload"`
}

type submitActionsRequest struct {
	Actions []actionSubmission `json:"actions"`
}

type submitActionsResponse struct {
	Accepted []string `json:"accepted"`
	Tick     uint32   `json:"tick"`
}

// SubmitActions queues a batch of actions for the current tick. Every
// action must name the authenticated player as actor; the per-tick quota
// rejects the batch atomically.
func (s *Server) SubmitActions(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req submitActionsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Actions) == 0 {
		s.writeError(w, fault.Validationf("actions must not be empty"))
		return
	}

	submissions := make([]engine.Submission, 0, len(req.Actions))
	for _, a := range req.Actions {
		if a.Type == "" {
			s.writeError(w, fault.Validationf("action type is required"))
			return
		}
		actorID := player.ID
		if a.ActorID != "" {
			parsed, err := uuid.Parse(a.ActorID)
			if err != nil {
				s.writeError(w, fault.Validationf("invalid actor_id"))
				return
			}
			actorID = parsed
		}
		if actorID != player.ID {
			s.writeError(w, fault.Forbiddenf("actor_id does not match authenticated player"))
			return
		}
		submissions = append(submissions, engine.Submission{
			Type:    a.Type,
			ActorID: actorID,
			Payload: a.Payload,
		})
	}

	var accepted []models.Action
	var tick uint32
	err := s.inTx(r, func(tx *gorm.DB) error {
		world, err := s.engine.EnsureWorld(tx)
		if err != nil {
			return err
		}
		tick = world.Tick
		accepted, err = s.engine.EnqueueActions(tx, submissions)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	ids := make([]string, len(accepted))
	for i, action := range accepted {
		ids[i] = action.ID.String()
	}
	s.writeJSON(w, http.StatusAccepted, submitActionsResponse{Accepted: ids, Tick: tick})
}
