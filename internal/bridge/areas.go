package bridge

import (
	"fmt"

	"auction-engine/internal/domain"
)

// Area is one domain area served by its own bridge instance.
type Area struct {
	// Key is the short name used in transport routes.
	Key string
	// Name is the service-registry name of the area.
	Name  string
	Kinds []domain.EventKind
}

var (
	Auctions = Area{
		Key:   "auctions",
		Name:  "auction-engine.auctions",
		Kinds: []domain.EventKind{domain.KindBidPlaced, domain.KindAuctionClosed, domain.KindCountdownTick},
	}
	AuctionLists = Area{
		Key:   "auction-lists",
		Name:  "auction-engine.auction-lists",
		Kinds: []domain.EventKind{domain.KindAuctionCreated, domain.KindAuctionDeleted},
	}
	Users = Area{
		Key:   "users",
		Name:  "auction-engine.users",
		Kinds: []domain.EventKind{domain.KindAccountEdited, domain.KindAccountBanned, domain.KindAccountDeleted},
	}
	UserLists = Area{
		Key:   "user-lists",
		Name:  "auction-engine.user-lists",
		Kinds: []domain.EventKind{domain.KindNotificationPosted},
	}
)

// Areas returns every area in a stable order.
func Areas() []Area {
	return []Area{Auctions, AuctionLists, Users, UserLists}
}

func AreaByKey(key string) (Area, error) {
	for _, a := range Areas() {
		if a.Key == key {
			return a, nil
		}
	}
	return Area{}, fmt.Errorf("unknown area %q", key)
}

// AreaOf returns the area that carries kind.
func AreaOf(kind domain.EventKind) (Area, bool) {
	for _, a := range Areas() {
		if a.Serves(kind) {
			return a, true
		}
	}
	return Area{}, false
}

func (a Area) Serves(kind domain.EventKind) bool {
	for _, k := range a.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
