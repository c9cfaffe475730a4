// Package ledger holds the atomic currency operations. Balances live on the
// player row in mAMP and never go negative across a committed operation.
package ledger

import (
	"bytes"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"darkgrid/core/fault"
	"darkgrid/core/models"
	"darkgrid/core/puzzle"
)

var multipliers = map[models.Denomination]int64{
	models.DenomMilli: 1,
	models.DenomKilo:  1_000,
	models.DenomMega:  1_000_000,
	models.DenomGiga:  1_000_000_000,
}

// DenominationMultiplier reports the mAMP value of one packet of the given
// denomination.
func DenominationMultiplier(denom models.Denomination) (int64, bool) {
	m, ok := multipliers[denom]
	return m, ok
}

// Balance returns the player's balance in mAMP.
func Balance(tx *gorm.DB, playerID uuid.UUID) (int64, error) {
	var player models.Player
	if err := tx.Select("balance_mamp").First(&player, "id = ?", playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fault.Domainf("player not found")
		}
		return 0, fault.Internalf("load balance: %v", err)
	}
	return player.BalanceMAMP, nil
}

func lockPlayer(tx *gorm.DB, id uuid.UUID) (*models.Player, error) {
	var player models.Player
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&player, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.Domainf("invalid player")
	}
	if err != nil {
		return nil, fault.Internalf("lock player: %v", err)
	}
	return &player, nil
}

// Transfer moves amount mAMP from sender to recipient. Player rows are
// locked in id-ascending order so two opposing transfers cannot deadlock.
// Self-transfer is not rejected here; callers guard where it matters.
func Transfer(tx *gorm.DB, senderID, recipientID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fault.Validationf("amount must be positive")
	}

	first, second := senderID, recipientID
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}
	firstRow, err := lockPlayer(tx, first)
	if err != nil {
		return err
	}
	secondRow := firstRow
	if second != first {
		if secondRow, err = lockPlayer(tx, second); err != nil {
			return err
		}
	}

	sender, recipient := firstRow, secondRow
	if sender.ID != senderID {
		sender, recipient = secondRow, firstRow
	}

	if sender.BalanceMAMP < amount {
		return fault.Domainf("insufficient balance")
	}
	sender.BalanceMAMP -= amount
	recipient.BalanceMAMP += amount

	if err := tx.Model(&models.Player{}).Where("id = ?", sender.ID).
		Update("balance_mamp", sender.BalanceMAMP).Error; err != nil {
		return fault.Internalf("debit sender: %v", err)
	}
	if recipient.ID != sender.ID {
		if err := tx.Model(&models.Player{}).Where("id = ?", recipient.ID).
			Update("balance_mamp", recipient.BalanceMAMP).Error; err != nil {
			return fault.Internalf("credit recipient: %v", err)
		}
	}
	return nil
}

// AdjustBalance applies a signed delta under a row lock and returns the new
// balance. The adjustment fails when the result would be negative.
func AdjustBalance(tx *gorm.DB, playerID uuid.UUID, delta int64) (int64, error) {
	player, err := lockPlayer(tx, playerID)
	if err != nil {
		return 0, err
	}
	newBalance := player.BalanceMAMP + delta
	if newBalance < 0 {
		return 0, fault.Domainf("insufficient balance")
	}
	if err := tx.Model(&models.Player{}).Where("id = ?", playerID).
		Update("balance_mamp", newBalance).Error; err != nil {
		return 0, fault.Internalf("adjust balance: %v", err)
	}
	return newBalance, nil
}

// MintEncryptedPacket creates an encrypted packet carrying the puzzle
// payload.
func MintEncryptedPacket(tx *gorm.DB, ownerID uuid.UUID, denom models.Denomination, payload models.JSONMap, createdTick uint32) (*models.CurrencyPacket, error) {
	if _, ok := multipliers[denom]; !ok {
		return nil, fault.Validationf("unknown denomination %q", denom)
	}
	if payload == nil {
		payload = models.JSONMap{}
	}
	packet := models.CurrencyPacket{
		ID:          uuid.New(),
		Denom:       denom,
		Encrypted:   true,
		Payload:     payload,
		OwnerID:     ownerID,
		CreatedTick: createdTick,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.Create(&packet).Error; err != nil {
		return nil, fault.Internalf("mint packet: %v", err)
	}
	return &packet, nil
}

// ListPackets returns all packets owned by the player.
func ListPackets(tx *gorm.DB, ownerID uuid.UUID) ([]models.CurrencyPacket, error) {
	var packets []models.CurrencyPacket
	if err := tx.Where("owner_id = ?", ownerID).Find(&packets).Error; err != nil {
		return nil, fault.Internalf("list packets: %v", err)
	}
	return packets, nil
}

// DecryptPacket redeems an encrypted packet. The puzzle verifier's hash
// check is the sole correctness criterion; on success the packet is marked
// decrypted, the solution is stored, and the reward credited to the owner.
// Decrypting an already-plaintext packet returns the denomination multiplier
// without touching the balance.
func DecryptPacket(tx *gorm.DB, ownerID, packetID uuid.UUID, solution map[string]any) (int64, error) {
	var packet models.CurrencyPacket
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&packet, "id = ?", packetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && packet.OwnerID != ownerID) {
		return 0, fault.Domainf("packet not found")
	}
	if err != nil {
		return 0, fault.Internalf("lock packet: %v", err)
	}

	if !packet.Encrypted {
		multiplier := multipliers[packet.Denom]
		return multiplier, nil
	}

	reward, ok := puzzle.Verify(packet.Payload, solution)
	if !ok {
		return 0, fault.Domainf("invalid solution")
	}

	packet.Encrypted = false
	packet.Payload["solution"] = solution
	if err := tx.Model(&models.CurrencyPacket{}).Where("id = ?", packet.ID).
		Updates(map[string]any{"encrypted": false, "payload": packet.Payload}).Error; err != nil {
		return 0, fault.Internalf("store solution: %v", err)
	}

	if _, err := AdjustBalance(tx, ownerID, reward); err != nil {
		return 0, err
	}
	return reward, nil
}
