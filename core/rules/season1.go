package rules

import (
	"github.com/google/uuid"

	"darkgrid/core/events"
	"darkgrid/core/fault"
	"darkgrid/core/ledger"
	"darkgrid/core/market"
	"darkgrid/core/models"
)

// DefaultWorkReward is credited by a work action that names no reward.
const DefaultWorkReward = 100

// Default builds the season-one dark-grid ruleset: work, list_item,
// buy_item, cancel_listing.
func Default(recorder *events.Recorder) *Registry {
	registry := NewRegistry()
	registry.Register("work", &workRule{recorder: recorder})
	registry.Register("list_item", &listItemRule{recorder: recorder})
	registry.Register("buy_item", &buyItemRule{recorder: recorder})
	registry.Register("cancel_listing", &cancelListingRule{recorder: recorder})
	return registry
}

type workRule struct {
	recorder *events.Recorder
}

func (r *workRule) Validate(ctx *Context, payload models.JSONMap) error {
	return nil
}

func (r *workRule) Apply(ctx *Context, payload models.JSONMap) (models.JSONMap, error) {
	reward := int64(DefaultWorkReward)
	if _, present := payload["reward"]; present {
		v, ok := payloadInt(payload, "reward")
		if !ok {
			return nil, fault.Validationf("reward must be an integer")
		}
		reward = v
	}
	balance, err := ledger.AdjustBalance(ctx.Tx, ctx.Action.ActorID, reward)
	if err != nil {
		return nil, err
	}
	actor := ctx.Action.ActorID
	if _, err := r.recorder.Record(ctx.Tx, ctx.Tick, "action.work", &actor, models.JSONMap{
		"reward":  reward,
		"balance": balance,
	}); err != nil {
		return nil, err
	}
	return models.JSONMap{"balance": balance}, nil
}

type listItemRule struct {
	recorder *events.Recorder
}

func (r *listItemRule) Validate(ctx *Context, payload models.JSONMap) error {
	_, hasItem := payloadString(payload, "item_type")
	price, hasPrice := payloadInt(payload, "price_amp")
	if !hasItem || !hasPrice {
		return fault.Validationf("item_type and price_amp required")
	}
	if price <= 0 {
		return fault.Validationf("price must be positive")
	}
	return nil
}

func (r *listItemRule) Apply(ctx *Context, payload models.JSONMap) (models.JSONMap, error) {
	itemType, _ := payloadString(payload, "item_type")
	price, _ := payloadInt(payload, "price_amp")
	listing, err := market.CreateListing(ctx.Tx, ctx.Action.ActorID, itemType, payloadMap(payload, "item_attrs"), price, ctx.Tick)
	if err != nil {
		return nil, err
	}
	subject := listing.ID
	if _, err := r.recorder.Record(ctx.Tx, ctx.Tick, "market.listing_created", &subject, models.JSONMap{
		"item_type": listing.ItemType,
		"price_amp": listing.PriceAMP,
	}); err != nil {
		return nil, err
	}
	return models.JSONMap{"listing_id": listing.ID.String()}, nil
}

type buyItemRule struct {
	recorder *events.Recorder
}

func (r *buyItemRule) Validate(ctx *Context, payload models.JSONMap) error {
	if _, ok := payloadString(payload, "listing_id"); !ok {
		return fault.Validationf("listing_id required")
	}
	return nil
}

func (r *buyItemRule) Apply(ctx *Context, payload models.JSONMap) (models.JSONMap, error) {
	raw, _ := payloadString(payload, "listing_id")
	listingID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fault.Validationf("invalid listing_id")
	}
	listing, err := market.BuyListing(ctx.Tx, listingID, ctx.Action.ActorID, ctx.Tick)
	if err != nil {
		return nil, err
	}
	subject := listing.ID
	if _, err := r.recorder.Record(ctx.Tx, ctx.Tick, "market.listing_filled", &subject, models.JSONMap{
		"buyer_id": ctx.Action.ActorID.String(),
	}); err != nil {
		return nil, err
	}
	return models.JSONMap{"listing_id": listing.ID.String()}, nil
}

type cancelListingRule struct {
	recorder *events.Recorder
}

func (r *cancelListingRule) Validate(ctx *Context, payload models.JSONMap) error {
	if _, ok := payloadString(payload, "listing_id"); !ok {
		return fault.Validationf("listing_id required")
	}
	return nil
}

func (r *cancelListingRule) Apply(ctx *Context, payload models.JSONMap) (models.JSONMap, error) {
	raw, _ := payloadString(payload, "listing_id")
	listingID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fault.Validationf("invalid listing_id")
	}
	listing, err := market.CancelListing(ctx.Tx, listingID, ctx.Action.ActorID, ctx.Tick)
	if err != nil {
		return nil, err
	}
	subject := listing.ID
	if _, err := r.recorder.Record(ctx.Tx, ctx.Tick, "market.listing_cancelled", &subject, models.JSONMap{}); err != nil {
		return nil, err
	}
	return models.JSONMap{"listing_id": listing.ID.String()}, nil
}
