package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorldID is the primary key of the singleton world row.
const WorldID = 1

// JSONMap stores a free-form JSON object column. Values round-trip through
// encoding/json, so numbers come back as float64; the replay package
// normalizes them before hashing.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		m = JSONMap{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}

// World is the singleton simulation clock row. Only the tick manager mutates
// it.
type World struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Tick           uint32 `gorm:"not null;default:0" json:"tick"`
	Seed           uint32 `gorm:"not null;default:1337" json:"seed"`
	RulesetVersion string `gorm:"size:64;not null;default:season1" json:"ruleset_version"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Player holds an authenticated participant. Balances are in mAMP and are
// mutated only by the ledger under a row lock.
type Player struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Handle      string    `gorm:"size:64;uniqueIndex" json:"handle"`
	TokenHash   string    `gorm:"size:128;uniqueIndex" json:"-"`
	BalanceMAMP int64     `gorm:"column:balance_mamp;not null;default:0" json:"balance_mamp"`
	CreatedAt   time.Time `json:"-"`
}

// Entity is a generic world object. The core exposes entities for read
// queries only.
type Entity struct {
	ID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Type    string     `gorm:"size:64;index" json:"type"`
	OwnerID *uuid.UUID `gorm:"type:uuid;index" json:"owner_id"`
	Pos     JSONMap    `json:"pos"`
	Attrs   JSONMap    `json:"attrs"`
	Version int        `gorm:"not null;default:1" json:"version"`
}

// ListingStatus enumerates the market listing lifecycle.
type ListingStatus string

const (
	// ListingPending is reserved; the current ruleset never originates it.
	ListingPending   ListingStatus = "pending"
	ListingOpen      ListingStatus = "open"
	ListingFilled    ListingStatus = "filled"
	ListingCancelled ListingStatus = "cancelled"
)

// MarketListing is an offer on the dark-grid market.
type MarketListing struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID    uuid.UUID     `gorm:"type:uuid;index" json:"seller_id"`
	ItemType    string        `gorm:"size:64;index" json:"item_type"`
	ItemAttrs   JSONMap       `json:"item_attrs"`
	PriceAMP    int64         `gorm:"column:price_amp;not null" json:"price_amp"`
	Status      ListingStatus `gorm:"size:16;index" json:"status"`
	CreatedTick uint32        `gorm:"index" json:"created_tick"`
	// FilledTick doubles as the terminated-at marker for cancellations.
	FilledTick *uint32   `json:"filled_tick"`
	CreatedAt  time.Time `json:"-"`
}

// Action is a queued player command. Immutable after insert; apply order is
// (received_at, id) ascending. Signature is reserved and unused.
type Action struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Tick       uint32    `gorm:"index" json:"tick"`
	ActorID    uuid.UUID `gorm:"type:uuid;index" json:"actor_id"`
	Type       string    `gorm:"size:64" json:"type"`
	Payload    JSONMap   `json:"payload"`
	ReceivedAt time.Time `gorm:"index" json:"received_at"`
	Signature  string    `gorm:"size:128" json:"signature,omitempty"`
}

// Event is an append-only record of something that happened at a tick.
type Event struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Tick      uint32     `gorm:"index" json:"tick"`
	Kind      string     `gorm:"size:64" json:"kind"`
	SubjectID *uuid.UUID `gorm:"type:uuid" json:"subject_id"`
	Payload   JSONMap    `json:"payload"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

// Denomination names a currency packet size. The wire string is the source
// of truth; balances are always stored in mAMP.
type Denomination string

const (
	DenomMilli Denomination = "mAMP"
	DenomKilo  Denomination = "kAMP"
	DenomMega  Denomination = "MAMP"
	DenomGiga  Denomination = "GAMP"
)

// Denominations lists the known packet sizes in ascending order.
func Denominations() []Denomination {
	return []Denomination{DenomMilli, DenomKilo, DenomMega, DenomGiga}
}

// CurrencyPacket is a bundle of currency. Encrypted packets gate their
// reward behind a proof-of-work puzzle carried in the payload.
type CurrencyPacket struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Denom       Denomination `gorm:"size:8" json:"denom"`
	Encrypted   bool         `gorm:"not null;default:true" json:"encrypted"`
	Payload     JSONMap      `json:"payload"`
	OwnerID     uuid.UUID    `gorm:"type:uuid;index" json:"owner_id"`
	CreatedTick uint32       `json:"created_tick"`
	CreatedAt   time.Time    `json:"-"`
}

// ReplayLog is the hash-chained per-tick record. The primary key on tick
// guarantees at most one row per tick. Actions carries the applied-action
// descriptors and the snapshot the state hash was computed over.
type ReplayLog struct {
	Tick      uint32    `gorm:"primaryKey" json:"tick"`
	StateHash string    `gorm:"size:64" json:"state_hash"`
	PrevHash  string    `gorm:"size:64" json:"prev_hash"`
	Actions   JSONMap   `json:"actions"`
	CreatedAt time.Time `json:"-"`
}

// AutoMigrate performs all schema migrations for the simulation core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&World{},
		&Player{},
		&Entity{},
		&MarketListing{},
		&Action{},
		&Event{},
		&CurrencyPacket{},
		&ReplayLog{},
	)
}
