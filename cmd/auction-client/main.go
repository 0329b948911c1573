package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"auction-engine/internal/bridge"
	"auction-engine/internal/cache"
	"auction-engine/internal/client"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/pkg/logger"

	"github.com/dustin/go-humanize"
	redisClient "github.com/go-redis/redis/v8"
)

const usage = `usage: auction-client [-as email] <command> [args]

commands:
  watch                          follow the session's views until interrupted
  tail                           print events from the Redis relay
  list                           print ongoing auctions
  start <title> <description> <reserve> <buyout> <increment> <seconds>
  bid <auction-id> <amount>
  buyout <auction-id>
  delete <auction-id>
  ban <email>
`

func main() {
	as := flag.String("as", "", "identity to act as, overrides client.identity")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level)

	identity := cfg.Client.Identity
	if *as != "" {
		identity = *as
	}
	session := cache.NewSession(identity)
	rpc := client.NewRPCClient(cfg.Client.ServerURL, cfg.Client.RequestTimeout, session, log)
	defer rpc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"watch"}
	}

	if err := run(ctx, cfg, log, session, rpc, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, session *cache.Session,
	rpc *client.RPCClient, args []string) error {
	switch args[0] {
	case "watch":
		return watch(ctx, cfg, log, session, rpc)
	case "tail":
		return tail(ctx, cfg, log)
	case "list":
		auctions, err := rpc.GetOngoing(ctx)
		if err != nil {
			return err
		}
		for _, a := range auctions {
			printAuction(a)
		}
		return nil
	case "start":
		if len(args) != 7 {
			return errUsage
		}
		nums, err := ints(args[3:]...)
		if err != nil {
			return err
		}
		auction, err := rpc.StartAuction(ctx, domain.ListingDraft{
			Title:        args[1],
			Description:  args[2],
			ReservePrice: nums[0],
			BuyoutPrice:  nums[1],
			MinIncrement: nums[2],
		}, time.Duration(nums[3])*time.Second)
		if err != nil {
			return err
		}
		printAuction(auction)
		return nil
	case "bid":
		if len(args) != 3 {
			return errUsage
		}
		nums, err := ints(args[1:]...)
		if err != nil {
			return err
		}
		bid, err := rpc.PlaceBid(ctx, nums[0], nums[1])
		if err != nil {
			return err
		}
		fmt.Printf("bid %s accepted on auction %d\n", humanize.Comma(bid.Amount), bid.AuctionID)
		return nil
	case "buyout":
		if len(args) != 2 {
			return errUsage
		}
		nums, err := ints(args[1])
		if err != nil {
			return err
		}
		bid, err := rpc.Buyout(ctx, nums[0])
		if err != nil {
			return err
		}
		fmt.Printf("bought auction %d for %s\n", bid.AuctionID, humanize.Comma(bid.Amount))
		return nil
	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		nums, err := ints(args[1])
		if err != nil {
			return err
		}
		return rpc.DeleteAuction(ctx, nums[0])
	case "ban":
		if len(args) != 2 {
			return errUsage
		}
		return rpc.Ban(ctx, args[1])
	default:
		return errUsage
	}
}

var errUsage = fmt.Errorf("%s", usage)

// watch keeps the session's views warm and logs what changes.
func watch(ctx context.Context, cfg *config.Config, log logger.Logger, session *cache.Session,
	rpc *client.RPCClient) error {
	var registry domain.ServiceRegistry
	if cfg.Redis.Enabled {
		rdb := newRedis(cfg)
		defer rdb.Close()
		registry = redis.NewServiceRegistry(rdb, cfg.Registry.TTL, log)
	}

	views := cache.NewViews(session, rpc, log)
	views.OnCountdown(func(tick domain.CountdownTick) {
		log.Debug("Countdown", "auction_id", tick.AuctionID, "remaining", tick.RemainingSeconds)
	})

	stream := client.NewEventStream(cfg.Client.EventsURL, registry, log)
	subs, err := stream.Follow(ctx, views)
	if err != nil {
		return err
	}
	log.Info("Watching", "identity", session.Identity(), "ongoing", len(views.Ongoing()),
		"notifications", len(views.Notifications()))

	refresh := time.NewTicker(30 * time.Second)
	defer refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, sub := range subs {
				sub.Close()
			}
			return nil
		case <-refresh.C:
			if err := views.RefreshStale(ctx); err != nil {
				log.Warn("Refresh failed", "stale", views.StaleLists(), "error", err)
			}
			log.Info("Views", "ongoing", len(views.Ongoing()), "bids", len(views.Bids()),
				"created", len(views.Created()), "notifications", len(views.Notifications()))
		}
	}
}

// tail prints every event the server relays through Redis.
func tail(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if !cfg.Redis.Enabled {
		return fmt.Errorf("tail needs redis.enabled")
	}
	rdb := newRedis(cfg)
	defer rdb.Close()

	names := make([]string, 0, len(bridge.Areas()))
	for _, area := range bridge.Areas() {
		names = append(names, area.Name)
	}

	subscriber := redis.NewEventSubscriber(rdb, log)
	err := subscriber.Subscribe(ctx, names, func(ev domain.Event) error {
		data, err := domain.EncodeEvent(ev)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}, nil)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func newRedis(cfg *config.Config) *redisClient.Client {
	return redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func printAuction(a domain.Auction) {
	fmt.Printf("#%d %q by %s: %s (reserve %s, buyout %s), %s, ends %s\n",
		a.ID, a.Title, a.Seller, humanize.Comma(a.CurrentBid), humanize.Comma(a.ReservePrice),
		humanize.Comma(a.BuyoutPrice), a.Status, humanize.Time(a.EndTime))
}

func ints(args ...string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", arg)
		}
		out = append(out, n)
	}
	return out, nil
}
