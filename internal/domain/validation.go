package domain

import (
	"time"
	"unicode/utf8"
)

const (
	MinTitleLength       = 5
	MaxTitleLength       = 80
	MinDescriptionLength = 20
	MaxDescriptionLength = 1400
	MaxAuctionDuration   = 24 * time.Hour
)

// ValidateBid checks a candidate bid against an auction snapshot. Rules run in
// a fixed order and the first failure wins.
func ValidateBid(auction Auction, bidder string, amount int64) error {
	if err := validateParticipant(auction, bidder); err != nil {
		return err
	}

	if amount <= 0 {
		return NewValidationError("bid must be a positive amount, provided: %d", amount)
	}

	if auction.HasBids() && amount <= auction.CurrentBid+auction.MinIncrement {
		return NewValidationError("bid must be greater than %d (current bid %d plus minimum increment %d)",
			auction.CurrentBid+auction.MinIncrement, auction.CurrentBid, auction.MinIncrement)
	}

	if amount < auction.ReservePrice {
		return NewValidationError("bid must be at least the reserve price %d", auction.ReservePrice)
	}

	return nil
}

// ValidateBuyout checks a buyout request and returns the amount it commits to.
func ValidateBuyout(auction Auction, bidder string) (int64, error) {
	if err := validateParticipant(auction, bidder); err != nil {
		return 0, err
	}

	if auction.HasBids() {
		return 0, NewValidationError("buyout is only available before the first bid")
	}

	return auction.BuyoutPrice, nil
}

func validateParticipant(auction Auction, bidder string) error {
	if auction.Status != StatusOngoing {
		return NewStateError("auction %d is %s", auction.ID, auction.Status)
	}
	if bidder == auction.Seller {
		return NewValidationError("sellers cannot bid on their own auction")
	}
	if bidder == auction.CurrentBidder {
		return NewValidationError("you already hold the highest bid")
	}
	if bidder == ModeratorEmail {
		return NewValidationError("the moderator cannot take part in auctions")
	}
	return nil
}

// ValidateListing checks the parameters of a new auction.
func ValidateListing(seller string, draft ListingDraft, duration time.Duration) error {
	if seller == "" {
		return NewValidationError("seller is required")
	}
	if seller == ModeratorEmail {
		return NewStateError("the moderator cannot start auctions")
	}

	if n := utf8.RuneCountInString(draft.Title); n < MinTitleLength || n > MaxTitleLength {
		return NewValidationError("title must be between %d and %d characters, provided: %d",
			MinTitleLength, MaxTitleLength, n)
	}
	if n := utf8.RuneCountInString(draft.Description); n < MinDescriptionLength || n > MaxDescriptionLength {
		return NewValidationError("description must be between %d and %d characters, provided: %d",
			MinDescriptionLength, MaxDescriptionLength, n)
	}

	if draft.ReservePrice < 0 {
		return NewValidationError("reserve price cannot be negative, provided: %d", draft.ReservePrice)
	}
	if draft.BuyoutPrice <= draft.ReservePrice {
		return NewValidationError("buyout price must be greater than the reserve price %d, provided: %d",
			draft.ReservePrice, draft.BuyoutPrice)
	}
	if draft.MinIncrement < 1 {
		return NewValidationError("minimum increment must be at least 1, provided: %d", draft.MinIncrement)
	}

	// End times are time-of-day values, so a full day would wrap to zero.
	if duration < time.Second || duration >= MaxAuctionDuration {
		return NewValidationError("duration must be between 1 second and 24 hours, provided: %s", duration)
	}

	return nil
}
