package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"darkgrid/core/fault"
	"darkgrid/core/market"
	"darkgrid/core/models"
	"darkgrid/gateway/middleware"
)

type createListingRequest struct {
	ItemType  string         `json:"item_type"`
	ItemAttrs models.JSONMap `json:"item_attrs"`
	PriceAMP  int64          `json:"price_amp"`
}

// CreateListing opens a new market listing for the authenticated player.
func (s *Server) CreateListing(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createListingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ItemType == "" {
		s.writeError(w, fault.Validationf("item_type is required"))
		return
	}
	if req.PriceAMP <= 0 {
		s.writeError(w, fault.Validationf("price must be positive"))
		return
	}

	var listing *models.MarketListing
	err := s.inTx(r, func(tx *gorm.DB) error {
		world, err := s.engine.EnsureWorld(tx)
		if err != nil {
			return err
		}
		listing, err = market.CreateListing(tx, player.ID, req.ItemType, req.ItemAttrs, req.PriceAMP, world.Tick)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, listing)
}

// ListListings returns listings filtered by status, seller_id, or item_type.
func (s *Server) ListListings(w http.ResponseWriter, r *http.Request) {
	filter := market.Filter{}
	if status := r.URL.Query().Get("status"); status != "" {
		parsed := models.ListingStatus(status)
		switch parsed {
		case models.ListingPending, models.ListingOpen, models.ListingFilled, models.ListingCancelled:
			filter.Status = &parsed
		default:
			s.writeError(w, fault.Validationf("invalid status %q", status))
			return
		}
	}
	if seller := r.URL.Query().Get("seller_id"); seller != "" {
		id, err := uuid.Parse(seller)
		if err != nil {
			s.writeError(w, fault.Validationf("invalid seller_id"))
			return
		}
		filter.SellerID = &id
	}
	if item := r.URL.Query().Get("item_type"); item != "" {
		filter.ItemType = &item
	}

	var listings []models.MarketListing
	err := s.inTx(r, func(tx *gorm.DB) error {
		var err error
		listings, err = market.ListListings(tx, filter)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if listings == nil {
		listings = []models.MarketListing{}
	}
	s.writeJSON(w, http.StatusOK, listings)
}

// BuyListing fills an open listing on behalf of the authenticated player.
func (s *Server) BuyListing(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fault.Validationf("invalid listing id"))
		return
	}

	var listing *models.MarketListing
	err = s.inTx(r, func(tx *gorm.DB) error {
		world, err := s.engine.EnsureWorld(tx)
		if err != nil {
			return err
		}
		listing, err = market.BuyListing(tx, listingID, player.ID, world.Tick)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

// CancelListing cancels an open listing owned by the authenticated player.
func (s *Server) CancelListing(w http.ResponseWriter, r *http.Request) {
	player, ok := middleware.PlayerFrom(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fault.Validationf("invalid listing id"))
		return
	}

	var listing *models.MarketListing
	err = s.inTx(r, func(tx *gorm.DB) error {
		world, err := s.engine.EnsureWorld(tx)
		if err != nil {
			return err
		}
		listing, err = market.CancelListing(tx, listingID, player.ID, world.Tick)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}
