package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another holder owns the key.
var ErrBusy = errors.New("commit already in progress")

// Guard hands out single-flight tokens keyed by name.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (g *Local) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, ErrBusy
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// Redis guards across processes. The lock expires after ttl if the holder
// dies and is refreshed every ttl/2 while held.
type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{locker: redislock.New(client), ttl: ttl}
}

func (g *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := g.locker.Obtain(ctx, "lock:"+key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}

	stop := keepAlive(refreshInterval(g.ttl), func(refreshCtx context.Context) error {
		return lock.Refresh(refreshCtx, g.ttl, nil)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			// The caller's ctx may already be done when the commit returns.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = lock.Release(releaseCtx)
		})
	}, nil
}

func refreshInterval(ttl time.Duration) time.Duration {
	if every := ttl / 2; every > 0 {
		return every
	}
	return ttl
}

// keepAlive calls refresh every interval until stop is called or a refresh
// fails. stop returns once the loop has exited.
func keepAlive(every time.Duration, refresh func(context.Context) error) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(context.Background(), every)
				err := refresh(refreshCtx)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}
