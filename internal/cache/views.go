// Package cache keeps a client's auction and notification lists in step with
// the server by applying bridged events instead of re-querying.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// Backend is the read side of the server the views are filled from.
type Backend interface {
	GetAuction(ctx context.Context, auctionID int64) (domain.Auction, error)
	GetOngoing(ctx context.Context) ([]domain.Auction, error)
	GetCreatedBy(ctx context.Context, seller string) ([]domain.Auction, error)
	GetBidsBy(ctx context.Context, bidder string) ([]domain.Auction, error)
	GetAll(ctx context.Context, actor string) ([]domain.Auction, error)
	GetNotifications(ctx context.Context, receiver string) ([]domain.Notification, error)
}

// List names
const (
	ListOngoing       = "ongoing"
	ListCreated       = "created"
	ListBids          = "bids"
	ListAll           = "all"
	ListNotifications = "notifications"
)

var auctionLists = []string{ListOngoing, ListCreated, ListBids, ListAll}

var everyList = []string{ListOngoing, ListCreated, ListBids, ListAll, ListNotifications}

type strategy func(v *Views, ctx context.Context, ev domain.Event) error

// strategies decides per event kind whether lists are patched in place or
// refetched. Narrow, frequent events patch; identity-wide events refetch.
var strategies = map[domain.EventKind]strategy{
	domain.KindAuctionCreated:     (*Views).applyCreated,
	domain.KindBidPlaced:          (*Views).applyBid,
	domain.KindAuctionClosed:      (*Views).applyClosed,
	domain.KindAccountEdited:      (*Views).applyEdited,
	domain.KindAccountBanned:      (*Views).applyAccountGone,
	domain.KindAccountDeleted:     (*Views).applyAccountGone,
	domain.KindAuctionDeleted:     (*Views).applyDeleted,
	domain.KindNotificationPosted: (*Views).applyNotification,
	domain.KindCountdownTick:      (*Views).applyTick,
}

// CountdownFunc receives countdown ticks. Ticks never touch the lists.
type CountdownFunc func(tick domain.CountdownTick)

type Views struct {
	session *Session
	backend Backend
	log     logger.Logger

	ongoing       *List[domain.Auction]
	created       *List[domain.Auction]
	bids          *List[domain.Auction]
	all           *List[domain.Auction]
	notifications *List[domain.Notification]

	hookMutex   sync.RWMutex
	onCountdown CountdownFunc

	// Areas are read on separate streams, so a bid can arrive before the
	// creation of its auction. The latest such bid waits here.
	earlyMutex sync.Mutex
	early      map[int64]domain.Bid
}

func auctionKey(a domain.Auction) int64           { return a.ID }
func notificationKey(n domain.Notification) int64 { return n.ID }

func NewViews(session *Session, backend Backend, log logger.Logger) *Views {
	return &Views{
		session:       session,
		backend:       backend,
		log:           log.With("component", "views"),
		ongoing:       NewList(auctionKey),
		created:       NewList(auctionKey),
		bids:          NewList(auctionKey),
		all:           NewList(auctionKey),
		notifications: NewList(notificationKey),
		early:         make(map[int64]domain.Bid),
	}
}

func (v *Views) Session() *Session {
	return v.session
}

// OnCountdown installs the hook Time events are forwarded to.
func (v *Views) OnCountdown(fn CountdownFunc) {
	v.hookMutex.Lock()
	defer v.hookMutex.Unlock()
	v.onCountdown = fn
}

// Load fills every list with a full fetch. Lists whose fetch fails keep their
// previous content and are marked stale.
func (v *Views) Load(ctx context.Context) error {
	return v.refetch(ctx, everyList...)
}

// Apply brings the lists up to date with one event.
func (v *Views) Apply(ctx context.Context, ev domain.Event) error {
	apply, ok := strategies[ev.Kind()]
	if !ok {
		return fmt.Errorf("no cache strategy for %s", ev.Kind())
	}
	return apply(v, ctx, ev)
}

// OnEvent lets the views subscribe to an eventbus registry directly.
func (v *Views) OnEvent(ev domain.Event) error {
	return v.Apply(context.Background(), ev)
}

// Stale reports whether any list missed its last refetch.
func (v *Views) Stale() bool {
	return len(v.StaleLists()) > 0
}

func (v *Views) StaleLists() []string {
	var names []string
	for _, name := range everyList {
		if v.isStale(name) {
			names = append(names, name)
		}
	}
	return names
}

// RefreshStale retries the refetch of every stale list.
func (v *Views) RefreshStale(ctx context.Context) error {
	names := v.StaleLists()
	if len(names) == 0 {
		return nil
	}
	return v.refetch(ctx, names...)
}

func (v *Views) Ongoing() []domain.Auction             { return v.ongoing.Items() }
func (v *Views) Created() []domain.Auction             { return v.created.Items() }
func (v *Views) Bids() []domain.Auction                { return v.bids.Items() }
func (v *Views) All() []domain.Auction                 { return v.all.Items() }
func (v *Views) Notifications() []domain.Notification { return v.notifications.Items() }

// Auction returns the cached copy of an auction from any list.
func (v *Views) Auction(auctionID int64) (domain.Auction, bool) {
	for _, l := range v.auctionListsByName(auctionLists...) {
		if a, ok := l.Get(auctionID); ok {
			return a, true
		}
	}
	return domain.Auction{}, false
}

func (v *Views) applyCreated(_ context.Context, ev domain.Event) error {
	auction := ev.(domain.AuctionCreated).Auction
	if bid, ok := v.takeEarly(auction.ID); ok && bid.Amount > auction.CurrentBid {
		auction.CurrentBid = bid.Amount
		auction.CurrentBidder = bid.Bidder
	}
	v.ongoing.Append(auction)
	if v.session.IsModerator() {
		v.all.Append(auction)
	}
	if auction.Seller == v.session.Identity() {
		v.created.Append(auction)
	}
	return nil
}

func (v *Views) applyBid(ctx context.Context, ev domain.Event) error {
	bid := ev.(domain.BidPlaced).Bid
	if !v.patchBid(bid) {
		v.keepEarly(bid)
	}

	if bid.Bidder != v.session.Identity() || v.bids.Contains(bid.AuctionID) {
		return nil
	}
	auction, err := v.backend.GetAuction(ctx, bid.AuctionID)
	if err != nil {
		v.bids.MarkStale()
		return fmt.Errorf("fetch auction %d: %w", bid.AuctionID, err)
	}
	// The fetch may predate the bid that triggered it.
	if auction.CurrentBid < bid.Amount {
		auction.CurrentBid = bid.Amount
		auction.CurrentBidder = bid.Bidder
	}
	v.bids.Append(auction)
	return nil
}

func (v *Views) applyClosed(_ context.Context, ev domain.Event) error {
	closed := ev.(domain.AuctionClosed)
	v.takeEarly(closed.AuctionID)
	for _, l := range v.auctionListsByName(auctionLists...) {
		l.Update(closed.AuctionID, func(a *domain.Auction) {
			a.Status = domain.StatusClosed
		})
	}
	v.ongoing.Remove(closed.AuctionID)
	if closed.FinalBid != nil {
		v.patchBid(*closed.FinalBid)
	}
	return nil
}

func (v *Views) applyEdited(ctx context.Context, ev domain.Event) error {
	edited := ev.(domain.AccountEdited)
	if edited.OldEmail == v.session.Identity() {
		v.session.SetIdentity(edited.NewEmail)
		v.log.Info("Session identity changed", "old", edited.OldEmail, "new", edited.NewEmail)
	}
	return v.refetch(ctx, auctionLists...)
}

func (v *Views) applyAccountGone(ctx context.Context, _ domain.Event) error {
	return v.refetch(ctx, everyList...)
}

func (v *Views) applyDeleted(_ context.Context, ev domain.Event) error {
	id := ev.(domain.AuctionDeleted).AuctionID
	v.takeEarly(id)
	for _, l := range v.auctionListsByName(auctionLists...) {
		l.Remove(id)
	}
	return nil
}

func (v *Views) applyNotification(_ context.Context, ev domain.Event) error {
	n := ev.(domain.NotificationPosted).Notification
	if n.Receiver == v.session.Identity() {
		v.notifications.Append(n)
	}
	return nil
}

func (v *Views) applyTick(_ context.Context, ev domain.Event) error {
	v.hookMutex.RLock()
	hook := v.onCountdown
	v.hookMutex.RUnlock()
	if hook != nil {
		hook(ev.(domain.CountdownTick))
	}
	return nil
}

// patchBid reports whether any cached copy was patched.
func (v *Views) patchBid(bid domain.Bid) bool {
	patched := false
	for _, l := range v.auctionListsByName(auctionLists...) {
		if l.Update(bid.AuctionID, func(a *domain.Auction) {
			a.CurrentBid = bid.Amount
			a.CurrentBidder = bid.Bidder
		}) {
			patched = true
		}
	}
	return patched
}

func (v *Views) keepEarly(bid domain.Bid) {
	v.earlyMutex.Lock()
	defer v.earlyMutex.Unlock()
	if prev, ok := v.early[bid.AuctionID]; !ok || bid.Amount > prev.Amount {
		v.early[bid.AuctionID] = bid
	}
}

func (v *Views) takeEarly(auctionID int64) (domain.Bid, bool) {
	v.earlyMutex.Lock()
	defer v.earlyMutex.Unlock()
	bid, ok := v.early[auctionID]
	delete(v.early, auctionID)
	return bid, ok
}

func (v *Views) clearEarly() {
	v.earlyMutex.Lock()
	defer v.earlyMutex.Unlock()
	v.early = make(map[int64]domain.Bid)
}

// refetch reloads the named lists. A failed list keeps its content and is
// marked stale; the other lists are still reloaded.
func (v *Views) refetch(ctx context.Context, names ...string) error {
	identity := v.session.Identity()

	var errs []error
	for _, name := range names {
		if err := v.fetch(ctx, name, identity); err != nil {
			v.markStale(name)
			v.log.Warn("Cache refetch failed", "list", name, "error", err)
			errs = append(errs, fmt.Errorf("refetch %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (v *Views) fetch(ctx context.Context, name, identity string) error {
	var auctions []domain.Auction
	var err error

	switch name {
	case ListOngoing:
		auctions, err = v.backend.GetOngoing(ctx)
		if err == nil {
			// A full fetch already carries every bid.
			v.clearEarly()
		}
	case ListCreated:
		auctions, err = v.backend.GetCreatedBy(ctx, identity)
	case ListBids:
		auctions, err = v.backend.GetBidsBy(ctx, identity)
	case ListAll:
		// Only the moderator may list every auction.
		if identity == domain.ModeratorEmail {
			auctions, err = v.backend.GetAll(ctx, identity)
		}
	case ListNotifications:
		notifications, err := v.backend.GetNotifications(ctx, identity)
		if err != nil {
			return err
		}
		v.notifications.Replace(notifications)
		return nil
	default:
		return fmt.Errorf("unknown list %s", name)
	}

	if err != nil {
		return err
	}
	v.auctionListsByName(name)[0].Replace(auctions)
	return nil
}

func (v *Views) auctionListsByName(names ...string) []*List[domain.Auction] {
	lists := make([]*List[domain.Auction], 0, len(names))
	for _, name := range names {
		switch name {
		case ListOngoing:
			lists = append(lists, v.ongoing)
		case ListCreated:
			lists = append(lists, v.created)
		case ListBids:
			lists = append(lists, v.bids)
		case ListAll:
			lists = append(lists, v.all)
		}
	}
	return lists
}

func (v *Views) markStale(name string) {
	if name == ListNotifications {
		v.notifications.MarkStale()
		return
	}
	for _, l := range v.auctionListsByName(name) {
		l.MarkStale()
	}
}

func (v *Views) isStale(name string) bool {
	if name == ListNotifications {
		return v.notifications.Stale()
	}
	for _, l := range v.auctionListsByName(name) {
		if l.Stale() {
			return true
		}
	}
	return false
}
