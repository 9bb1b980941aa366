package notify

import (
	"context"

	"github.com/redis/go-redis/v9"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
)

// Listener subscribes to the redis channel the upstream ETL publishes cursor
// advances on. Signals are coalesced: many publishes while a tick is running
// collapse into a single pending wakeup, matching the watcher's
// skip-if-busy tick semantics.
type Listener struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
	ch      chan struct{}
}

// New creates a change-notification listener.
func New(cfg *config.NotifyConfig, log *logger.Logger) *Listener {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Listener{
		client:  client,
		channel: cfg.Channel,
		log:     log.WithComponent(wcommon.ComponentNotify),
		ch:      make(chan struct{}, 1),
	}
}

// C returns the coalesced wakeup channel.
func (l *Listener) C() <-chan struct{} {
	return l.ch
}

// Start subscribes and forwards wakeups until the context is cancelled.
// A dropped redis connection degrades to the watcher's interval fallback;
// go-redis resubscribes internally when the connection returns.
func (l *Listener) Start(ctx context.Context) {
	sub := l.client.Subscribe(ctx, l.channel)

	go func() {
		defer sub.Close()
		l.log.Infow("listening for block notifications", "channel", l.channel)

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				l.log.Debugw("block notification", "payload", msg.Payload)
				select {
				case l.ch <- struct{}{}:
				default:
					// a wakeup is already pending
				}
			}
		}
	}()
}

// Close releases the redis connection.
func (l *Listener) Close() error {
	return l.client.Close()
}
