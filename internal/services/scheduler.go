package services

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

const secondsPerDay = 24 * 60 * 60

// ExpireFunc performs the terminal transition of an auction.
type ExpireFunc func(ctx context.Context, auctionID int64) error

// TickFunc receives the countdown of a scheduled auction once per tick.
type TickFunc func(auctionID int64, remainingSeconds int64) error

type SchedulerOptions struct {
	TickInterval time.Duration
	RetryDelay   time.Duration
}

func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{
		TickInterval: time.Second,
		RetryDelay:   5 * time.Second,
	}
}

type deadlineEntry struct {
	auctionID int64
	deadline  time.Time
	index     int
}

type deadlineQueue []*deadlineEntry

func (q deadlineQueue) Len() int { return len(q) }

func (q deadlineQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].auctionID < q[j].auctionID
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q deadlineQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *deadlineQueue) Push(x interface{}) {
	e := x.(*deadlineEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *deadlineQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// ExpirationScheduler drives every auction countdown from one loop over a
// min-heap of deadlines.
type ExpirationScheduler struct {
	clock    domain.Clock
	opts     SchedulerOptions
	onExpire ExpireFunc
	onTick   TickFunc
	log      logger.Logger

	mutex   sync.Mutex
	queue   deadlineQueue
	entries map[int64]*deadlineEntry

	startOnce sync.Once
	started   bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewExpirationScheduler(clock domain.Clock, opts SchedulerOptions, onExpire ExpireFunc,
	onTick TickFunc, log logger.Logger) *ExpirationScheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = opts.TickInterval
	}
	return &ExpirationScheduler{
		clock:    clock,
		opts:     opts,
		onExpire: onExpire,
		onTick:   onTick,
		log:      log,
		entries:  make(map[int64]*deadlineEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RemainingSeconds computes the countdown on time-of-day values, wrapping
// across midnight. Both values are read in the location of now.
func RemainingSeconds(endTime, now time.Time) int64 {
	endTime = endTime.In(now.Location())
	diff := (secondOfDay(endTime) - secondOfDay(now)) % secondsPerDay
	if diff < 0 {
		diff += secondsPerDay
	}
	return diff
}

func secondOfDay(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(h*3600 + m*60 + s)
}

// Schedule registers the auction. Scheduling an id again replaces its deadline.
// An end time that has already passed is due immediately.
func (s *ExpirationScheduler) Schedule(auctionID int64, endTime time.Time) {
	now := s.clock.Now()
	deadline := now
	if endTime.After(now) {
		deadline = now.Add(time.Duration(RemainingSeconds(endTime, now)) * time.Second)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e, ok := s.entries[auctionID]; ok {
		if e.index >= 0 {
			heap.Remove(&s.queue, e.index)
		}
		delete(s.entries, auctionID)
	}

	e := &deadlineEntry{auctionID: auctionID, deadline: deadline}
	heap.Push(&s.queue, e)
	s.entries[auctionID] = e

	s.log.Debug("Auction scheduled", "auction_id", auctionID, "deadline", deadline)
}

// Cancel releases the auction's entry. Unknown ids are ignored.
func (s *ExpirationScheduler) Cancel(auctionID int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[auctionID]
	if !ok {
		return
	}
	if e.index >= 0 {
		heap.Remove(&s.queue, e.index)
	}
	delete(s.entries, auctionID)
}

func (s *ExpirationScheduler) Scheduled(auctionID int64) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.entries[auctionID]
	return ok
}

func (s *ExpirationScheduler) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

func (s *ExpirationScheduler) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.log.Info("Starting expiration scheduler", "tick", s.opts.TickInterval)
		s.mutex.Lock()
		s.started = true
		s.mutex.Unlock()
		go s.run(ctx)
	})
	return nil
}

// Stop ends the loop and waits for it to exit.
func (s *ExpirationScheduler) Stop() error {
	s.log.Info("Stopping expiration scheduler")
	s.stopOnce.Do(func() { close(s.stop) })

	s.mutex.Lock()
	started := s.started
	s.mutex.Unlock()
	if started {
		<-s.done
	}
	return nil
}

func (s *ExpirationScheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

type countdown struct {
	auctionID int64
	remaining int64
}

// poll fires every due entry and publishes the countdown of the rest.
func (s *ExpirationScheduler) poll(ctx context.Context) {
	now := s.clock.Now()

	s.mutex.Lock()
	var due []*deadlineEntry
	for s.queue.Len() > 0 && !s.queue[0].deadline.After(now) {
		e := heap.Pop(&s.queue).(*deadlineEntry)
		due = append(due, e)
	}
	ticks := make([]countdown, 0, s.queue.Len())
	for _, e := range s.queue {
		remaining := int64(e.deadline.Sub(now).Round(time.Second) / time.Second)
		ticks = append(ticks, countdown{auctionID: e.auctionID, remaining: remaining})
	}
	s.mutex.Unlock()

	if s.onTick != nil {
		for _, t := range ticks {
			if err := s.onTick(t.auctionID, t.remaining); err != nil {
				s.log.Debug("Countdown tick failed", "auction_id", t.auctionID, "error", err)
			}
		}
	}

	for _, e := range due {
		s.expire(ctx, e, now)
	}
}

func (s *ExpirationScheduler) expire(ctx context.Context, e *deadlineEntry, now time.Time) {
	err := s.onExpire(ctx, e.auctionID)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Cancelled or rescheduled while the close was running.
	if s.entries[e.auctionID] != e {
		return
	}

	if err == nil {
		delete(s.entries, e.auctionID)
		return
	}

	s.log.Error("Failed to close auction, retrying", "auction_id", e.auctionID,
		"retry_in", s.opts.RetryDelay, "error", err)
	e.deadline = now.Add(s.opts.RetryDelay)
	heap.Push(&s.queue, e)
}
