package server

import (
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"darkgrid/core/engine"
	"darkgrid/core/fault"
	"darkgrid/core/models"
)

// AdvanceTick applies queued actions and advances the world tick by one.
func (s *Server) AdvanceTick(w http.ResponseWriter, r *http.Request) {
	var result *engine.AdvanceResult
	err := s.inTx(r, func(tx *gorm.DB) error {
		var err error
		result, err = s.engine.AdvanceTick(tx)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// ResetWorld wipes all simulation state and rewinds the tick to zero. The
// world row itself is kept so seed and ruleset survive the reset.
func (s *Server) ResetWorld(w http.ResponseWriter, r *http.Request) {
	err := s.inTx(r, func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.Event{},
			&models.Action{},
			&models.MarketListing{},
			&models.CurrencyPacket{},
			&models.Entity{},
			&models.ReplayLog{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fault.Internalf("reset world: %v", err)
			}
		}
		if err := tx.Model(&models.Player{}).Where("1 = 1").
			Update("balance_mamp", 0).Error; err != nil {
			return fault.Internalf("reset balances: %v", err)
		}
		if err := tx.Model(&models.World{}).Where("id = ?", models.WorldID).
			Update("tick", 0).Error; err != nil {
			return fault.Internalf("rewind tick: %v", err)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// VerifyReplay recomputes the hash chain over [from, to] and reports whether
// it matches the stored chain.
func (s *Server) VerifyReplay(w http.ResponseWriter, r *http.Request) {
	from, err := tickParam(r, "from", 1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var world *models.World
	if err := s.inTx(r, func(tx *gorm.DB) error {
		var err error
		world, err = s.engine.GetWorldState(tx)
		return err
	}); err != nil {
		s.writeError(w, err)
		return
	}
	to, err := tickParam(r, "to", world.Tick)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if from > to {
		s.writeError(w, fault.Validationf("from must not exceed to"))
		return
	}

	var valid bool
	err = s.inTx(r, func(tx *gorm.DB) error {
		var err error
		valid, err = s.engine.VerifyReplayRange(tx, from, to)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"valid": valid, "from": from, "to": to})
}

func tickParam(r *http.Request, name string, fallback uint32) (uint32, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fault.Validationf("invalid %s", name)
	}
	return uint32(parsed), nil
}
