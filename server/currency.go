package server

import (
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"darkgrid/core/fault"
	"darkgrid/core/ledger"
	"darkgrid/core/models"
	"darkgrid/gateway/middleware"
)

type denominationInfo struct {
	Name       string `json:"name"`
	Multiplier int64  `json:"multiplier"`
}

type currencyMetadata struct {
	Name          string             `json:"name"`
	Symbol        string             `json:"symbol"`
	BaseUnit      string             `json:"base_unit"`
	Denominations []denominationInfo `json:"denominations"`
	Lore          string             `json:"lore"`
}

// CurrencyMetadata reports the currency's base unit and denominations.
func (s *Server) CurrencyMetadata(w http.ResponseWriter, _ *http.Request) {
	denoms := make([]denominationInfo, 0, 4)
	for _, d := range models.Denominations() {
		multiplier, _ := ledger.DenominationMultiplier(d)
		denoms = append(denoms, denominationInfo{Name: string(d), Multiplier: multiplier})
	}
	s.writeJSON(w, http.StatusOK, currencyMetadata{
		Name:          "Ampere",
		Symbol:        "AMP",
		BaseUnit:      string(models.DenomMilli),
		Denominations: denoms,
		Lore:          "Raw charge siphoned from the grid; encrypted packets pay out only to those who crack them.",
	})
}

// GetBalance returns the authenticated player's balance in mAMP.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var balance int64
	err := s.inTx(r, func(tx *gorm.DB) error {
		var err error
		balance, err = ledger.Balance(tx, player.ID)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"balance_mamp": balance})
}

type transferRequest struct {
	RecipientID string `json:"recipient_id"`
	AmountMAMP  int64  `json:"amount_mamp"`
}

// Transfer moves currency from the authenticated player to another player.
func (s *Server) Transfer(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		s.writeError(w, fault.Validationf("invalid recipient_id"))
		return
	}

	err = s.inTx(r, func(tx *gorm.DB) error {
		return ledger.Transfer(tx, player.ID, recipientID, req.AmountMAMP)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type mintRequest struct {
	Denom   string         `json:"denom"`
	Payload models.JSONMap `json:"payload"`
}

// MintEncrypted mints an encrypted packet for the authenticated player.
// Dev-mode only; production mints flow through the ruleset.
func (s *Server) MintEncrypted(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		s.writeDetail(w, http.StatusForbidden, "minting disabled")
		return
	}
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var packet *models.CurrencyPacket
	err := s.inTx(r, func(tx *gorm.DB) error {
		world, err := s.engine.EnsureWorld(tx)
		if err != nil {
			return err
		}
		packet, err = ledger.MintEncryptedPacket(tx, player.ID, models.Denomination(req.Denom), req.Payload, world.Tick)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, packet)
}

// ListPackets returns the authenticated player's currency packets.
func (s *Server) ListPackets(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var packets []models.CurrencyPacket
	err := s.inTx(r, func(tx *gorm.DB) error {
		var err error
		packets, err = ledger.ListPackets(tx, player.ID)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if packets == nil {
		packets = []models.CurrencyPacket{}
	}
	s.writeJSON(w, http.StatusOK, packets)
}

type decryptRequest struct {
	PacketID string         `json:"packet_id"`
	Solution map[string]any `json:"solution"`
}

// DecryptPacket redeems an encrypted packet with a puzzle solution.
func (s *Server) DecryptPacket(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req decryptRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	packetID, err := uuid.Parse(req.PacketID)
	if err != nil {
		s.writeError(w, fault.Validationf("invalid packet_id"))
		return
	}

	var reward int64
	err = s.inTx(r, func(tx *gorm.DB) error {
		var err error
		reward, err = ledger.DecryptPacket(tx, player.ID, packetID, req.Solution)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reward_mamp": reward})
}
