// Package engine orchestrates the tick loop: enqueue with quotas, ordered
// dispatch through the ruleset registry, and hash-chained snapshotting.
package engine

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"darkgrid/core/events"
	"darkgrid/core/fault"
	"darkgrid/core/models"
	"darkgrid/core/replay"
	"darkgrid/core/rules"
	"darkgrid/observability"
)

// PerTickActionLimit caps how many actions one actor may queue for a single
// tick. The count is enforced against persisted rows, so splitting a
// submission across batches does not evade it.
const PerTickActionLimit = 3

// Submission is one action as submitted by a player.
type Submission struct {
	Type    string
	ActorID uuid.UUID
	Payload models.JSONMap
}

// AdvanceResult reports a committed advance: the new tick and the
// applied-action descriptors in apply order.
type AdvanceResult struct {
	Tick    uint32           `json:"tick"`
	Applied []map[string]any `json:"applied"`
}

// Manager owns world access and tick orchestration. All methods operate
// inside the caller's transaction; commit and rollback stay with the
// request boundary.
type Manager struct {
	registry       *rules.Registry
	recorder       *events.Recorder
	seed           uint32
	rulesetVersion string
}

// NewManager wires the tick manager to its registry and event recorder.
// Seed and ruleset version apply only when the world row is first created.
func NewManager(registry *rules.Registry, recorder *events.Recorder, seed uint32, rulesetVersion string) *Manager {
	if seed == 0 {
		seed = 1337
	}
	if rulesetVersion == "" {
		rulesetVersion = "season1"
	}
	return &Manager{
		registry:       registry,
		recorder:       recorder,
		seed:           seed,
		rulesetVersion: rulesetVersion,
	}
}

// EnsureWorld loads the singleton world row, creating it at tick 0 on first
// access.
func (m *Manager) EnsureWorld(tx *gorm.DB) (*models.World, error) {
	var world models.World
	err := tx.First(&world, "id = ?", models.WorldID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		world = models.World{
			ID:             models.WorldID,
			Tick:           0,
			Seed:           m.seed,
			RulesetVersion: m.rulesetVersion,
		}
		if err := tx.Create(&world).Error; err != nil {
			return nil, fault.Internalf("create world: %v", err)
		}
		return &world, nil
	}
	if err != nil {
		return nil, fault.Internalf("load world: %v", err)
	}
	return &world, nil
}

// GetWorldState ensures and returns the world row.
func (m *Manager) GetWorldState(tx *gorm.DB) (*models.World, error) {
	return m.EnsureWorld(tx)
}

// EnqueueActions queues the submissions against the current tick. Quota
// accounting folds in actions already persisted for the tick; the first
// violation rejects the whole batch and the surrounding transaction rolls
// it back.
func (m *Manager) EnqueueActions(tx *gorm.DB, submissions []Submission) ([]models.Action, error) {
	world, err := m.EnsureWorld(tx)
	if err != nil {
		return nil, err
	}

	counts, err := queuedCounts(tx, world.Tick)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	accepted := make([]models.Action, 0, len(submissions))
	for _, sub := range submissions {
		counts[sub.ActorID]++
		if counts[sub.ActorID] > PerTickActionLimit {
			observability.Sim().RecordActionRejected("quota")
			return nil, fault.Validationf("Action quota exceeded")
		}
		payload := sub.Payload
		if payload == nil {
			payload = models.JSONMap{}
		}
		action := models.Action{
			ID:         uuid.New(),
			Tick:       world.Tick,
			ActorID:    sub.ActorID,
			Type:       sub.Type,
			Payload:    payload,
			ReceivedAt: now,
		}
		if err := tx.Create(&action).Error; err != nil {
			return nil, fault.Internalf("enqueue action: %v", err)
		}
		accepted = append(accepted, action)
	}
	return accepted, nil
}

func queuedCounts(tx *gorm.DB, tick uint32) (map[uuid.UUID]int, error) {
	var queued []models.Action
	if err := tx.Select("actor_id").Where("tick = ?", tick).Find(&queued).Error; err != nil {
		return nil, fault.Internalf("count queued actions: %v", err)
	}
	counts := make(map[uuid.UUID]int)
	for _, action := range queued {
		counts[action.ActorID]++
	}
	return counts, nil
}

// ActionsForTick returns the tick's actions in apply order: received_at
// ascending with id as the stable tie-breaker.
func (m *Manager) ActionsForTick(tx *gorm.DB, tick uint32) ([]models.Action, error) {
	var actions []models.Action
	if err := tx.Where("tick = ?", tick).Find(&actions).Error; err != nil {
		return nil, fault.Internalf("load actions: %v", err)
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].ReceivedAt.Equal(actions[j].ReceivedAt) {
			return actions[i].ID.String() < actions[j].ID.String()
		}
		return actions[i].ReceivedAt.Before(actions[j].ReceivedAt)
	})
	return actions, nil
}

// ApplyActions dispatches every queued action for the tick through the
// registry, validator then applier. Any failure, including an unknown
// action type, aborts the whole advance.
func (m *Manager) ApplyActions(tx *gorm.DB, tick uint32) ([]map[string]any, error) {
	actions, err := m.ActionsForTick(tx, tick)
	if err != nil {
		return nil, err
	}
	applied := make([]map[string]any, 0, len(actions))
	for i := range actions {
		action := &actions[i]
		rule, ok := m.registry.Lookup(action.Type)
		if !ok {
			return nil, fault.Validationf("unknown action type: %s", action.Type)
		}
		ctx := &rules.Context{Tx: tx, Tick: tick, Action: action}
		if err := rule.Validate(ctx, action.Payload); err != nil {
			return nil, err
		}
		result, err := rule.Apply(ctx, action.Payload)
		if err != nil {
			return nil, err
		}
		observability.Sim().RecordActionApplied(action.Type)
		applied = append(applied, map[string]any{
			"id":      action.ID.String(),
			"type":    action.Type,
			"payload": map[string]any(action.Payload),
			"result":  map[string]any(result),
		})
	}
	return applied, nil
}

// AdvanceTick applies the current tick's actions, increments the world
// tick, emits tick.advance at the new tick, and appends the snapshot to the
// replay chain. The world row is locked for the duration so concurrent
// advances serialize; the whole advance is atomic within the caller's
// transaction.
func (m *Manager) AdvanceTick(tx *gorm.DB) (*AdvanceResult, error) {
	started := time.Now()

	if _, err := m.EnsureWorld(tx); err != nil {
		return nil, err
	}
	var world models.World
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&world, "id = ?", models.WorldID).Error; err != nil {
		return nil, fault.Internalf("lock world: %v", err)
	}

	currentTick := world.Tick
	applied, err := m.ApplyActions(tx, currentTick)
	if err != nil {
		return nil, err
	}

	world.Tick = currentTick + 1
	if err := tx.Model(&models.World{}).Where("id = ?", models.WorldID).
		Update("tick", world.Tick).Error; err != nil {
		return nil, fault.Internalf("advance world tick: %v", err)
	}

	if _, err := m.recorder.Record(tx, world.Tick, "tick.advance", nil, models.JSONMap{
		"tick": world.Tick,
	}); err != nil {
		return nil, err
	}

	snapshot, err := m.snapshotState(tx, world.Tick)
	if err != nil {
		return nil, err
	}
	prev, err := replay.PreviousHash(tx, world.Tick)
	if err != nil {
		return nil, err
	}
	if _, err := replay.Append(tx, world.Tick, snapshot, applied, prev); err != nil {
		return nil, err
	}

	observability.Sim().RecordTickAdvance(time.Since(started))
	return &AdvanceResult{Tick: world.Tick, Applied: applied}, nil
}

// snapshotState captures the deterministic minimal state at a tick: player
// balances and listing statuses, both sorted by id string ascending.
func (m *Manager) snapshotState(tx *gorm.DB, tick uint32) (map[string]any, error) {
	var players []models.Player
	if err := tx.Select("id", "balance_mamp").Find(&players).Error; err != nil {
		return nil, fault.Internalf("snapshot players: %v", err)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].ID.String() < players[j].ID.String()
	})
	playerRows := make([]map[string]any, len(players))
	for i, p := range players {
		playerRows[i] = map[string]any{"id": p.ID.String(), "balance_mamp": p.BalanceMAMP}
	}

	var listings []models.MarketListing
	if err := tx.Select("id", "status").Find(&listings).Error; err != nil {
		return nil, fault.Internalf("snapshot listings: %v", err)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].ID.String() < listings[j].ID.String()
	})
	listingRows := make([]map[string]any, len(listings))
	for i, l := range listings {
		listingRows[i] = map[string]any{"id": l.ID.String(), "status": string(l.Status)}
	}

	return map[string]any{
		"tick":     tick,
		"players":  playerRows,
		"listings": listingRows,
	}, nil
}

// VerifyReplayRange recomputes the hash chain over [start, end].
func (m *Manager) VerifyReplayRange(tx *gorm.DB, start, end uint32) (bool, error) {
	return replay.VerifyRange(tx, start, end)
}
