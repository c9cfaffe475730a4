package market

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"darkgrid/core/fault"
	"darkgrid/core/ledger"
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
		Handle:      "trader-" + uuid.NewString()[:8],
		TokenHash:   uuid.NewString(),
		BalanceMAMP: balance,
	}
	require.NoError(t, db.Create(player).Error)
	return player
}

func openListing(t *testing.T, db *gorm.DB, seller uuid.UUID, price int64) *models.MarketListing {
	t.Helper()
	var listing *models.MarketListing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = CreateListing(tx, seller, "cipher-shard", models.JSONMap{"grade": "b"}, price, 1)
		return err
	}))
	return listing
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(models.ListingPending, models.ListingOpen))
	require.NoError(t, ValidateTransition(models.ListingOpen, models.ListingFilled))
	require.NoError(t, ValidateTransition(models.ListingOpen, models.ListingCancelled))

	for _, tc := range []struct{ from, to models.ListingStatus }{
		{models.ListingFilled, models.ListingOpen},
		{models.ListingCancelled, models.ListingOpen},
		{models.ListingFilled, models.ListingCancelled},
		{models.ListingPending, models.ListingFilled},
	} {
		err := ValidateTransition(tc.from, tc.to)
		require.Error(t, err)
		require.Equal(t, fault.KindDomain, fault.KindOf(err))
	}
}

func TestBuyListingSettlesThroughLedger(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 0)
	buyer := seedPlayer(t, db, 500)
	listing := openListing(t, db, seller.ID, 300)

	var filled *models.MarketListing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		filled, err = BuyListing(tx, listing.ID, buyer.ID, 4)
		return err
	}))
	require.Equal(t, models.ListingFilled, filled.Status)
	require.NotNil(t, filled.FilledTick)
	require.Equal(t, uint32(4), *filled.FilledTick)

	sellerBalance, _ := ledger.Balance(db, seller.ID)
	buyerBalance, _ := ledger.Balance(db, buyer.ID)
	require.Equal(t, int64(300), sellerBalance)
	require.Equal(t, int64(200), buyerBalance)
}

func TestBuyListingInsufficientBalanceLeavesListingOpen(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 0)
	buyer := seedPlayer(t, db, 10)
	listing := openListing(t, db, seller.ID, 300)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := BuyListing(tx, listing.ID, buyer.ID, 4)
		return err
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient balance")

	var stored models.MarketListing
	require.NoError(t, db.First(&stored, "id = ?", listing.ID).Error)
	require.Equal(t, models.ListingOpen, stored.Status)
}

func TestBuyOwnListingRejected(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 1000)
	listing := openListing(t, db, seller.ID, 300)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := BuyListing(tx, listing.ID, seller.ID, 2)
		return err
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot buy your own listing")
}

func TestBuyFilledListingRejected(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 0)
	first := seedPlayer(t, db, 500)
	second := seedPlayer(t, db, 500)
	listing := openListing(t, db, seller.ID, 100)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := BuyListing(tx, listing.ID, first.ID, 2)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := BuyListing(tx, listing.ID, second.ID, 2)
		return err
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "listing is not open")

	// Only the first buyer paid.
	secondBalance, _ := ledger.Balance(db, second.ID)
	require.Equal(t, int64(500), secondBalance)
}

func TestCancelListingOnlySeller(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 0)
	other := seedPlayer(t, db, 0)
	listing := openListing(t, db, seller.ID, 100)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := CancelListing(tx, listing.ID, other.ID, 2)
		return err
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "only seller can cancel listing")

	var cancelled *models.MarketListing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		cancelled, err = CancelListing(tx, listing.ID, seller.ID, 3)
		return err
	}))
	require.Equal(t, models.ListingCancelled, cancelled.Status)
	require.NotNil(t, cancelled.FilledTick)
	require.Equal(t, uint32(3), *cancelled.FilledTick)
}

func TestCancelledListingIsTerminal(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 0)
	buyer := seedPlayer(t, db, 500)
	listing := openListing(t, db, seller.ID, 100)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := CancelListing(tx, listing.ID, seller.ID, 2)
		return err
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := BuyListing(tx, listing.ID, buyer.ID, 3)
		return err
	})
	require.Error(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := CancelListing(tx, listing.ID, seller.ID, 3)
		return err
	})
	require.Error(t, err)
}

func TestListListingsFilters(t *testing.T) {
	db := testDB(t)
	seller := seedPlayer(t, db, 0)
	otherSeller := seedPlayer(t, db, 0)
	buyer := seedPlayer(t, db, 1000)

	first := openListing(t, db, seller.ID, 100)
	openListing(t, db, otherSeller.ID, 200)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := BuyListing(tx, first.ID, buyer.ID, 2)
		return err
	}))

	status := models.ListingOpen
	var open []models.MarketListing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		open, err = ListListings(tx, Filter{Status: &status})
		return err
	}))
	require.Len(t, open, 1)
	require.Equal(t, otherSeller.ID, open[0].SellerID)

	var bySeller []models.MarketListing
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		bySeller, err = ListListings(tx, Filter{SellerID: &seller.ID})
		return err
	}))
	require.Len(t, bySeller, 1)
	require.Equal(t, first.ID, bySeller[0].ID)
}
