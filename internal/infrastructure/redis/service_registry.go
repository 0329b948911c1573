package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const registryKeyPrefix = "auction-engine:registry:"

// ServiceRegistry keeps name -> address entries in Redis. Entries expire
// unless the registering process keeps refreshing them.
type ServiceRegistry struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger

	mutex      sync.Mutex
	heartbeats map[string]context.CancelFunc
}

func NewServiceRegistry(client *redis.Client, ttl time.Duration, log logger.Logger) *ServiceRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ServiceRegistry{
		client:     client,
		ttl:        ttl,
		log:        log,
		heartbeats: make(map[string]context.CancelFunc),
	}
}

func registryKey(name string) string {
	return registryKeyPrefix + name
}

func (r *ServiceRegistry) Register(ctx context.Context, name, address string) error {
	if err := r.client.Set(ctx, registryKey(name), address, r.ttl).Err(); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	r.mutex.Lock()
	if previous, ok := r.heartbeats[name]; ok {
		previous()
	}
	r.heartbeats[name] = cancel
	r.mutex.Unlock()

	go r.maintainRegistration(hbCtx, name, address)
	r.log.Info("Service registered", "name", name, "address", address)
	return nil
}

func (r *ServiceRegistry) Lookup(ctx context.Context, name string) (string, error) {
	address, err := r.client.Get(ctx, registryKey(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.NewNotFound("service", name)
		}
		return "", &domain.TransportFault{Op: "lookup " + name, Err: err}
	}
	return address, nil
}

// Deregister stops the heartbeat and removes the entry if this process still
// owns it.
func (r *ServiceRegistry) Deregister(ctx context.Context, name string) error {
	r.mutex.Lock()
	cancel, ok := r.heartbeats[name]
	delete(r.heartbeats, name)
	r.mutex.Unlock()
	if !ok {
		return nil
	}
	cancel()

	luaScript := `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `
	address, err := r.client.Get(ctx, registryKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deregister %s: %w", name, err)
	}
	_, err = r.client.Eval(ctx, luaScript, []string{registryKey(name)}, address).Result()
	return err
}

// Close deregisters everything this process registered.
func (r *ServiceRegistry) Close(ctx context.Context) error {
	r.mutex.Lock()
	names := make([]string, 0, len(r.heartbeats))
	for name := range r.heartbeats {
		names = append(names, name)
	}
	r.mutex.Unlock()

	var errs []error
	for _, name := range names {
		if err := r.Deregister(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *ServiceRegistry) maintainRegistration(ctx context.Context, name, address string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	// Extend TTL while the entry still points at us, re-create it if it lapsed.
	luaScript := `
        local current = redis.call("GET", KEYS[1])
        if current == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        elseif current == false then
            redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
            return 1
        else
            return 0
        end
    `

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := r.client.Eval(callCtx, luaScript, []string{registryKey(name)},
			address, r.ttl.Milliseconds()).Result()
		cancel()

		if err != nil {
			r.log.Warn("Failed to refresh registration", "name", name, "error", err)
			continue
		}
		if n, ok := result.(int64); ok && n == 0 {
			r.log.Warn("Registration taken over by another process", "name", name)
			return
		}
	}
}
