// Package market manages listing lifecycle and settles fills through the
// ledger.
package market

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"darkgrid/core/fault"
	"darkgrid/core/ledger"
	"darkgrid/core/models"
)

// allowedTransitions is the listing state machine. filled and cancelled are
// terminal; pending is accepted as a stored value but never originated.
var allowedTransitions = map[models.ListingStatus][]models.ListingStatus{
	models.ListingPending: {models.ListingOpen},
	models.ListingOpen:    {models.ListingFilled, models.ListingCancelled},
}

// ValidateTransition ensures a status change follows the state machine.
func ValidateTransition(current, next models.ListingStatus) error {
	for _, state := range allowedTransitions[current] {
		if state == next {
			return nil
		}
	}
	return fault.Domainf("listing transition %s -> %s is not permitted", current, next)
}

// Filter narrows ListListings results.
type Filter struct {
	Status   *models.ListingStatus
	SellerID *uuid.UUID
	ItemType *string
}

// CreateListing opens a new listing at the given tick. Callers are
// responsible for price_amp being positive.
func CreateListing(tx *gorm.DB, sellerID uuid.UUID, itemType string, itemAttrs models.JSONMap, priceAMP int64, tick uint32) (*models.MarketListing, error) {
	if itemAttrs == nil {
		itemAttrs = models.JSONMap{}
	}
	listing := models.MarketListing{
		ID:          uuid.New(),
		SellerID:    sellerID,
		ItemType:    itemType,
		ItemAttrs:   itemAttrs,
		PriceAMP:    priceAMP,
		Status:      models.ListingOpen,
		CreatedTick: tick,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.Create(&listing).Error; err != nil {
		return nil, fault.Internalf("create listing: %v", err)
	}
	return &listing, nil
}

// ListListings returns listings matching the filter ordered by created_tick
// ascending.
func ListListings(tx *gorm.DB, filter Filter) ([]models.MarketListing, error) {
	query := tx.Model(&models.MarketListing{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.ItemType != nil {
		query = query.Where("item_type = ?", *filter.ItemType)
	}
	var listings []models.MarketListing
	if err := query.Order("created_tick").Find(&listings).Error; err != nil {
		return nil, fault.Internalf("list listings: %v", err)
	}
	return listings, nil
}

func lockListing(tx *gorm.DB, id uuid.UUID) (*models.MarketListing, error) {
	var listing models.MarketListing
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&listing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.Domainf("listing not found")
	}
	if err != nil {
		return nil, fault.Internalf("lock listing: %v", err)
	}
	return &listing, nil
}

// BuyListing fills an open listing: the buyer pays the seller through the
// ledger and the listing becomes terminal.
func BuyListing(tx *gorm.DB, listingID, buyerID uuid.UUID, tick uint32) (*models.MarketListing, error) {
	listing, err := lockListing(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingOpen {
		return nil, fault.Domainf("listing is not open")
	}
	if listing.SellerID == buyerID {
		return nil, fault.Domainf("cannot buy your own listing")
	}
	if err := ValidateTransition(listing.Status, models.ListingFilled); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(tx, buyerID, listing.SellerID, listing.PriceAMP); err != nil {
		return nil, err
	}

	listing.Status = models.ListingFilled
	listing.FilledTick = &tick
	if err := tx.Model(&models.MarketListing{}).Where("id = ?", listing.ID).
		Updates(map[string]any{"status": listing.Status, "filled_tick": tick}).Error; err != nil {
		return nil, fault.Internalf("fill listing: %v", err)
	}
	return listing, nil
}

// CancelListing cancels an open listing. Only the seller may cancel;
// filled_tick records the tick the listing terminated.
func CancelListing(tx *gorm.DB, listingID, actorID uuid.UUID, tick uint32) (*models.MarketListing, error) {
	listing, err := lockListing(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actorID {
		return nil, fault.Domainf("only seller can cancel listing")
	}
	if listing.Status != models.ListingOpen {
		return nil, fault.Domainf("listing not open")
	}
	if err := ValidateTransition(listing.Status, models.ListingCancelled); err != nil {
		return nil, err
	}

	listing.Status = models.ListingCancelled
	listing.FilledTick = &tick
	if err := tx.Model(&models.MarketListing{}).Where("id = ?", listing.ID).
		Updates(map[string]any{"status": listing.Status, "filled_tick": tick}).Error; err != nil {
		return nil, fault.Internalf("cancel listing: %v", err)
	}
	return listing, nil
}
