package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"darkgrid/core/fault"
	"darkgrid/core/models"
	"darkgrid/storage"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	return db
}

func seedPlayer(t *testing.T, db *gorm.DB, balance int64) *models.Player {
	t.Helper()
	player := &models.Player{
		ID:          uuid.New(),
		Handle:      "runner-" + uuid.NewString()[:8],
		TokenHash:   uuid.NewString(),
		BalanceMAMP: balance,
	}
	require.NoError(t, db.Create(player).Error)
	return player
}

func TestTransferConservesTotal(t *testing.T) {
	db := testDB(t)
	sender := seedPlayer(t, db, 1000)
	recipient := seedPlayer(t, db, 250)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Transfer(tx, sender.ID, recipient.ID, 400)
	})
	require.NoError(t, err)

	senderBalance, err := Balance(db, sender.ID)
	require.NoError(t, err)
	recipientBalance, err := Balance(db, recipient.ID)
	require.NoError(t, err)
	require.Equal(t, int64(600), senderBalance)
	require.Equal(t, int64(650), recipientBalance)
	require.Equal(t, int64(1250), senderBalance+recipientBalance)
}

func TestTransferInsufficientBalanceRollsBack(t *testing.T) {
	db := testDB(t)
	sender := seedPlayer(t, db, 100)
	recipient := seedPlayer(t, db, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Transfer(tx, sender.ID, recipient.ID, 500)
	})
	require.Error(t, err)
	require.Equal(t, fault.KindDomain, fault.KindOf(err))

	senderBalance, _ := Balance(db, sender.ID)
	recipientBalance, _ := Balance(db, recipient.ID)
	require.Equal(t, int64(100), senderBalance)
	require.Equal(t, int64(0), recipientBalance)
}

func TestTransferRejectsNonPositiveAmounts(t *testing.T) {
	db := testDB(t)
	sender := seedPlayer(t, db, 100)
	recipient := seedPlayer(t, db, 0)

	for _, amount := range []int64{0, -10} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return Transfer(tx, sender.ID, recipient.ID, amount)
		})
		require.Error(t, err)
		require.Equal(t, fault.KindValidation, fault.KindOf(err))
	}
}

func TestTransferToSelfLeavesBalanceUnchanged(t *testing.T) {
	db := testDB(t)
	player := seedPlayer(t, db, 500)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Transfer(tx, player.ID, player.ID, 200)
	})
	require.NoError(t, err)

	balance, err := Balance(db, player.ID)
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestTransferUnknownPlayer(t *testing.T) {
	db := testDB(t)
	sender := seedPlayer(t, db, 500)

	err := db.Transaction(func(tx *gorm.DB) error {
		return Transfer(tx, sender.ID, uuid.New(), 100)
	})
	require.Error(t, err)
	require.Equal(t, fault.KindDomain, fault.KindOf(err))
}

func TestAdjustBalanceNeverGoesNegative(t *testing.T) {
	db := testDB(t)
	player := seedPlayer(t, db, 50)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := AdjustBalance(tx, player.ID, -100)
		return err
	})
	require.Error(t, err)

	balance, _ := Balance(db, player.ID)
	require.Equal(t, int64(50), balance)
}

func TestMintAndDecryptEncryptedPacket(t *testing.T) {
	db := testDB(t)
	player := seedPlayer(t, db, 0)

	payload := models.JSONMap{
		"type":          "hash-chain",
		"difficulty":    2,
		"target_prefix": "00",
		"seed":          "seed",
		"reward_mamp":   2000,
	}

	var packet *models.CurrencyPacket
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		packet, err = MintEncryptedPacket(tx, player.ID, models.DenomKilo, payload, 3)
		return err
	})
	require.NoError(t, err)
	require.True(t, packet.Encrypted)

	var reward int64
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		reward, err = DecryptPacket(tx, player.ID, packet.ID, map[string]any{"nonce": "293"})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), reward)

	balance, _ := Balance(db, player.ID)
	require.Equal(t, int64(2000), balance)

	var stored models.CurrencyPacket
	require.NoError(t, db.First(&stored, "id = ?", packet.ID).Error)
	require.False(t, stored.Encrypted)
	require.Contains(t, stored.Payload, "solution")
}

func TestDecryptRejectsInvalidSolution(t *testing.T) {
	db := testDB(t)
	player := seedPlayer(t, db, 0)

	payload := models.JSONMap{
		"type":          "hash-chain",
		"difficulty":    2,
		"target_prefix": "00",
		"seed":          "seed",
		"reward_mamp":   2000,
	}
	var packet *models.CurrencyPacket
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		packet, err = MintEncryptedPacket(tx, player.ID, models.DenomMilli, payload, 1)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := DecryptPacket(tx, player.ID, packet.ID, map[string]any{"nonce": "1"})
		return err
	})
	require.Error(t, err)
	require.Equal(t, fault.KindDomain, fault.KindOf(err))

	balance, _ := Balance(db, player.ID)
	require.Equal(t, int64(0), balance)
}

func TestDecryptPlaintextPacketReturnsMultiplier(t *testing.T) {
	db := testDB(t)
	player := seedPlayer(t, db, 0)

	packet := models.CurrencyPacket{
		ID:        uuid.New(),
		Denom:     models.DenomMega,
		Encrypted: false,
		Payload:   models.JSONMap{},
		OwnerID:   player.ID,
	}
	require.NoError(t, db.Create(&packet).Error)

	var value int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		value, err = DecryptPacket(tx, player.ID, packet.ID, nil)
		return err
	}))
	require.Equal(t, int64(1_000_000), value)

	balance, _ := Balance(db, player.ID)
	require.Equal(t, int64(0), balance)
}

func TestDecryptForeignPacketReportsNotFound(t *testing.T) {
	db := testDB(t)
	owner := seedPlayer(t, db, 0)
	other := seedPlayer(t, db, 0)

	var packet *models.CurrencyPacket
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		packet, err = MintEncryptedPacket(tx, owner.ID, models.DenomMilli, models.JSONMap{
			"type": "hash-chain", "target_prefix": "0", "reward_mamp": 1,
		}, 1)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := DecryptPacket(tx, other.ID, packet.ID, map[string]any{"nonce": "x"})
		return err
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "packet not found")
}

func TestMintRejectsUnknownDenomination(t *testing.T) {
	db := testDB(t)
	player := seedPlayer(t, db, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := MintEncryptedPacket(tx, player.ID, "TAMP", nil, 0)
		return err
	})
	require.Error(t, err)
	require.Equal(t, fault.KindValidation, fault.KindOf(err))
}

func TestDenominationMultipliers(t *testing.T) {
	expected := map[models.Denomination]int64{
		models.DenomMilli: 1,
		models.DenomKilo:  1_000,
		models.DenomMega:  1_000_000,
		models.DenomGiga:  1_000_000_000,
	}
	for denom, want := range expected {
		got, ok := DenominationMultiplier(denom)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := DenominationMultiplier("zAMP")
	require.False(t, ok)
}
