package replay

import (
	"encoding/json"
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

func snapshotAt(tick uint32) map[string]any {
	return map[string]any{
		"tick":     tick,
		"players":  []map[string]any{{"id": "p1", "balance_mamp": int64(100 * int64(tick))}},
		"listings": []map[string]any{},
	}
}

func TestComputeStateHashDeterministic(t *testing.T) {
	snapshot := snapshotAt(1)
	actions := []map[string]any{{"id": "a", "type": "work"}}

	first := ComputeStateHash(snapshot, actions, GenesisHash)
	second := ComputeStateHash(snapshot, actions, GenesisHash)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	// A different previous hash changes the digest.
	require.NotEqual(t, first, ComputeStateHash(snapshot, actions, first))
}

func TestComputeStateHashSurvivesJSONRoundTrip(t *testing.T) {
	snapshot := snapshotAt(2)
	actions := []map[string]any{{"id": "a", "type": "work", "result": map[string]any{"balance": int64(100)}}}
	direct := ComputeStateHash(snapshot, actions, GenesisHash)

	// Round-trip through JSON turns every number into float64, the shape a
	// stored row scans back as.
	raw, err := json.Marshal(map[string]any{"snapshot": snapshot, "actions": actions})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	roundTripped := ComputeStateHash(decoded["snapshot"].(map[string]any), decoded["actions"], GenesisHash)
	require.Equal(t, direct, roundTripped)
}

func TestAppendAndVerifyRange(t *testing.T) {
	db := testDB(t)

	prev := GenesisHash
	for tick := uint32(1); tick <= 3; tick++ {
		var row *models.ReplayLog
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			var err error
			row, err = Append(tx, tick, snapshotAt(tick), []map[string]any{{"tick": tick}}, prev)
			return err
		}))
		require.Equal(t, prev, row.PrevHash)
		prev = row.StateHash
	}

	valid, err := VerifyRange(db, 1, 3)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestVerifyRangeDetectsTamperedSnapshot(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := Append(tx, 1, snapshotAt(1), nil, GenesisHash)
		return err
	}))

	var row models.ReplayLog
	require.NoError(t, db.First(&row, "tick = ?", 1).Error)
	snapshot := row.Actions["snapshot"].(map[string]any)
	snapshot["tick"] = float64(99)
	require.NoError(t, db.Model(&models.ReplayLog{}).Where("tick = ?", 1).
		Update("actions", row.Actions).Error)

	valid, err := VerifyRange(db, 1, 1)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyRangeDetectsBrokenLink(t *testing.T) {
	db := testDB(t)
	var first *models.ReplayLog
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = Append(tx, 1, snapshotAt(1), nil, GenesisHash)
		return err
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := Append(tx, 2, snapshotAt(2), nil, first.StateHash)
		return err
	}))

	// Rewriting tick 1's stored hash breaks tick 2's chain.
	require.NoError(t, db.Model(&models.ReplayLog{}).Where("tick = ?", 1).
		Update("state_hash", GenesisHash).Error)

	valid, err := VerifyRange(db, 1, 2)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestAppendDuplicateTickConflicts(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := Append(tx, 1, snapshotAt(1), nil, GenesisHash)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Append(tx, 1, snapshotAt(1), nil, GenesisHash)
		return err
	})
	require.Error(t, err)
	require.Equal(t, fault.KindConflict, fault.KindOf(err))
}

func TestPreviousHash(t *testing.T) {
	db := testDB(t)

	prev, err := PreviousHash(db, 1)
	require.NoError(t, err)
	require.Equal(t, GenesisHash, prev)

	var first *models.ReplayLog
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = Append(tx, 1, snapshotAt(1), nil, GenesisHash)
		return err
	}))

	prev, err = PreviousHash(db, 2)
	require.NoError(t, err)
	require.Equal(t, first.StateHash, prev)

	// A gap falls back to genesis rather than failing.
	prev, err = PreviousHash(db, 5)
	require.NoError(t, err)
	require.Equal(t, GenesisHash, prev)
}
