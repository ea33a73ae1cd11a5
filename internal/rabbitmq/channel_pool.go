package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ChannelPool pools publishing channels on a managed connection
type ChannelPool struct {
	manager     *ConnectionManager
	channels    chan *PooledChannel
	maxSize     int
	minSize     int
	idleTimeout time.Duration
	waitTimeout time.Duration
	logger      *slog.Logger
	mu          sync.Mutex
	closed      bool
	activeCount int
	done        chan struct{}
}

// PooledChannel wraps a channel with pool metadata.
// A pooled channel is used by one goroutine at a time.
type PooledChannel struct {
	Channel
	id       string
	lastUsed time.Time
	confirms chan amqp.Confirmation
	returns  chan amqp.Return
}

// ID returns the pool-assigned channel id
func (pc *PooledChannel) ID() string {
	return pc.id
}

// EnableConfirms puts the channel in confirm mode once and returns its confirmation and return
// listeners
func (pc *PooledChannel) EnableConfirms() (<-chan amqp.Confirmation, <-chan amqp.Return, error) {
	if pc.confirms == nil {
		if err := pc.Channel.Confirm(false); err != nil {
			return nil, nil, fmt.Errorf("failed to enable confirms: %w", err)
		}
		pc.confirms = pc.Channel.NotifyPublish(make(chan amqp.Confirmation, 1))
		pc.returns = pc.Channel.NotifyReturn(make(chan amqp.Return, 1))
	}
	return pc.confirms, pc.returns, nil
}

// ChannelPoolOption configures the channel pool
type ChannelPoolOption func(*ChannelPool)

// WithMaxSize sets the maximum pool size
func WithMaxSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// WithMinSize sets the number of channels opened up front and kept through idle cleanup
func WithMinSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.minSize = size
	}
}

// WithIdleTimeout sets the idle timeout for channels
func WithIdleTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.idleTimeout = timeout
	}
}

// WithWaitTimeout bounds how long Get waits for a channel when the pool is exhausted
func WithWaitTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.waitTimeout = timeout
	}
}

// WithPoolLogger sets the logger
func WithPoolLogger(logger *slog.Logger) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.logger = logger
	}
}

// NewChannelPool creates a new channel pool
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, ErrInvalidConfiguration
	}

	pool := &ChannelPool{
		manager:     manager,
		maxSize:     10,
		minSize:     1,
		idleTimeout: 5 * time.Minute,
		waitTimeout: 5 * time.Second,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}

	for _, opt := range options {
		opt(pool)
	}

	if pool.maxSize < 1 {
		return nil, fmt.Errorf("%w: max size must be at least 1", ErrInvalidConfiguration)
	}
	if pool.minSize < 0 || pool.minSize > pool.maxSize {
		return nil, fmt.Errorf("%w: min size must be between 0 and max size", ErrInvalidConfiguration)
	}

	pool.channels = make(chan *PooledChannel, pool.maxSize)

	for i := 0; i < pool.minSize; i++ {
		ch, err := pool.createChannel()
		if err != nil {
			pool.Close()
			return nil, &ChannelError{
				Op:        "pool initialization",
				ChannelID: fmt.Sprintf("init-%d", i),
				Err:       err,
				Timestamp: time.Now(),
			}
		}
		pool.channels <- ch
	}

	go pool.cleanupIdle()

	return pool, nil
}

// Get retrieves a channel from the pool, opening one while under the size limit
func (cp *ChannelPool) Get(ctx context.Context) (*PooledChannel, error) {
	if cp.isClosed() {
		return nil, ErrChannelPoolClosed
	}

	for {
		select {
		case ch := <-cp.channels:
			if ch, ok := cp.usable(ch); ok {
				return ch, nil
			}
			continue
		default:
		}

		cp.mu.Lock()
		if cp.activeCount < cp.maxSize {
			cp.mu.Unlock()
			return cp.createChecked(ctx)
		}
		cp.mu.Unlock()

		select {
		case ch := <-cp.channels:
			if ch, ok := cp.usable(ch); ok {
				return ch, nil
			}
		case <-ctx.Done():
			return nil, &ChannelError{Op: "get channel", ChannelID: "pool", Err: ctx.Err(), Timestamp: time.Now()}
		case <-time.After(cp.waitTimeout):
			return nil, &ChannelError{Op: "get channel", ChannelID: "pool", Err: ErrChannelPoolExhausted, Timestamp: time.Now()}
		}
	}
}

// Put returns a channel to the pool; closed channels are dropped
func (cp *ChannelPool) Put(ch *PooledChannel) {
	if ch == nil {
		return
	}

	if ch.Channel.IsClosed() {
		cp.release()
		return
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.closed {
		ch.Channel.Close()
		cp.activeCount--
		return
	}

	ch.lastUsed = time.Now()
	select {
	case cp.channels <- ch:
	default:
		ch.Channel.Close()
		cp.activeCount--
	}
}

// Discard closes a channel that must not be reused, such as one left with an unread confirmation
func (cp *ChannelPool) Discard(ch *PooledChannel) {
	if ch == nil {
		return
	}
	ch.Channel.Close()
	cp.release()
}

// Execute runs fn with a channel from the pool
func (cp *ChannelPool) Execute(ctx context.Context, fn func(*PooledChannel) error) (err error) {
	ch, err := cp.Get(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cp.Discard(ch)
			err = fmt.Errorf("panic in channel execution: %v", r)
			return
		}
		cp.Put(ch)
	}()

	return fn(ch)
}

// Size returns the number of open channels, idle or in use
func (cp *ChannelPool) Size() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.activeCount
}

// Close closes all idle channels; channels in use are closed when returned
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil
	}
	cp.closed = true
	close(cp.done)
	cp.mu.Unlock()

	for {
		select {
		case ch := <-cp.channels:
			ch.Channel.Close()
			cp.release()
		default:
			return nil
		}
	}
}

func (cp *ChannelPool) isClosed() bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.closed
}

func (cp *ChannelPool) usable(ch *PooledChannel) (*PooledChannel, bool) {
	if ch.Channel.IsClosed() {
		cp.release()
		return nil, false
	}
	ch.lastUsed = time.Now()
	return ch, true
}

func (cp *ChannelPool) release() {
	cp.mu.Lock()
	cp.activeCount--
	cp.mu.Unlock()
}

func (cp *ChannelPool) createChecked(ctx context.Context) (*PooledChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ChannelError{Op: "create channel", ChannelID: "new", Err: err, Timestamp: time.Now()}
	}
	return cp.createChannel()
}

func (cp *ChannelPool) createChannel() (*PooledChannel, error) {
	ch, err := cp.manager.OpenChannel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "create channel",
			ChannelID: "new",
			Err:       fmt.Errorf("%w: %v", ErrChannelCreationFailed, err),
			Timestamp: time.Now(),
		}
	}

	pooled := &PooledChannel{
		Channel:  ch,
		id:       uuid.New().String(),
		lastUsed: time.Now(),
	}

	cp.mu.Lock()
	cp.activeCount++
	cp.mu.Unlock()

	cp.logger.Debug("opened pooled channel", "channelId", pooled.id)
	return pooled, nil
}

// cleanupIdle closes channels idle for longer than the idle timeout, keeping minSize open
func (cp *ChannelPool) cleanupIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cp.evictIdle(time.Now().Add(-cp.idleTimeout))
		case <-cp.done:
			return
		}
	}
}

func (cp *ChannelPool) evictIdle(cutoff time.Time) {
	var keep []*PooledChannel

drain:
	for {
		select {
		case ch := <-cp.channels:
			if ch.lastUsed.Before(cutoff) && cp.Size() > cp.minSize {
				ch.Channel.Close()
				cp.release()
				cp.logger.Debug("closed idle channel", "channelId", ch.id)
				continue
			}
			keep = append(keep, ch)
		default:
			break drain
		}
	}

	for _, ch := range keep {
		cp.Put(ch)
	}
}
