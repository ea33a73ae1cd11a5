package rabbitmq

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionStateListener receives connection state change notifications
type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected(err error)
	OnReconnecting(attempt int)
}

// ConnectionManager owns the broker connection and reconnects after it drops
type ConnectionManager struct {
	url            string
	dial           Dialer
	conn           Connection
	mu             sync.RWMutex
	connectTimeout time.Duration
	reconnectDelay time.Duration
	maxDelay       time.Duration
	maxRetries     int
	logger         *slog.Logger
	isConnected    bool
	closed         bool
	done           chan struct{}
	listeners      []ConnectionStateListener
	listenersMu    sync.RWMutex
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithDialer replaces the function used to open connections
func WithDialer(dial Dialer) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dial = dial
	}
}

// WithConnectTimeout bounds a single dial attempt
func WithConnectTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.connectTimeout = timeout
	}
}

// WithReconnectDelay sets the base reconnection delay
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.reconnectDelay = delay
	}
}

// WithMaxRetries sets the maximum number of reconnection attempts; negative means unlimited
func WithMaxRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxRetries = retries
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:            url,
		dial:           DialAMQP,
		connectTimeout: 30 * time.Second,
		reconnectDelay: 5 * time.Second,
		maxDelay:       5 * time.Minute,
		maxRetries:     -1,
		logger:         slog.Default(),
		done:           make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect establishes the initial connection
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return ErrConnectionClosed
	}
	if cm.isConnected {
		return nil
	}

	conn, err := cm.dialWithTimeout(ctx)
	if err != nil {
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.attach(conn)
	cm.logger.Info("connected to RabbitMQ", "url", SanitizeURL(cm.url))
	cm.notifyConnected()

	return nil
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}
	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	return cm.conn, nil
}

// OpenChannel opens a channel on the current connection
func (cm *ConnectionManager) OpenChannel() (Channel, error) {
	conn, err := cm.GetConnection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "open channel",
			ChannelID: "new",
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return ch, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected
}

// Close closes the connection and stops reconnecting
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil
	}
	cm.closed = true
	close(cm.done)
	cm.isConnected = false

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}

	return nil
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.listeners = append(cm.listeners, listener)
}

// attach installs conn as the current connection; callers hold cm.mu
func (cm *ConnectionManager) attach(conn Connection) {
	cm.conn = conn
	cm.isConnected = true

	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	go cm.watch(conn, notifyClose)
}

// watch waits for conn to close and reconnects unless the manager was closed
func (cm *ConnectionManager) watch(conn Connection, notifyClose chan *amqp.Error) {
	select {
	case amqpErr, ok := <-notifyClose:
		var err error
		if ok && amqpErr != nil {
			err = amqpErr
			cm.logger.Error("connection closed", "error", amqpErr)
		}

		cm.mu.Lock()
		if cm.closed || cm.conn != conn {
			cm.mu.Unlock()
			return
		}
		cm.isConnected = false
		cm.conn = nil
		cm.mu.Unlock()

		cm.notifyDisconnected(err)
		cm.reconnect()

	case <-cm.done:
	}
}

// reconnect dials until it succeeds, the retry budget runs out or the manager is closed
func (cm *ConnectionManager) reconnect() {
	startTime := time.Now()

	for attempt := 1; ; attempt++ {
		if cm.maxRetries >= 0 && attempt > cm.maxRetries {
			cm.logger.Error("max reconnection attempts reached",
				"attempts", attempt-1,
				"duration", time.Since(startTime))
			cm.notifyDisconnected(&ConnectionError{
				Op:        "reconnect",
				URL:       SanitizeURL(cm.url),
				Err:       ErrMaxRetriesExceeded,
				Timestamp: time.Now(),
				Attempts:  attempt - 1,
			})
			return
		}

		if attempt > 1 {
			select {
			case <-time.After(cm.backoff(attempt - 1)):
			case <-cm.done:
				return
			}
		}

		cm.logger.Info("attempting to reconnect", "attempt", attempt, "maxRetries", cm.maxRetries)
		cm.notifyReconnecting(attempt)

		conn, err := cm.dialWithTimeout(context.Background())
		if err != nil {
			cm.logger.Error("reconnection failed", "error", err, "attempt", attempt)
			continue
		}

		cm.mu.Lock()
		if cm.closed {
			cm.mu.Unlock()
			conn.Close()
			return
		}
		cm.attach(conn)
		cm.mu.Unlock()

		cm.logger.Info("successfully reconnected to RabbitMQ",
			"attempts", attempt,
			"duration", time.Since(startTime))
		cm.notifyConnected()
		return
	}
}

func (cm *ConnectionManager) dialWithTimeout(ctx context.Context) (Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, cm.connectTimeout)
	defer cancel()

	type result struct {
		conn Connection
		err  error
	}
	done := make(chan result, 1)

	go func() {
		conn, err := cm.dial(cm.url)
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ErrConnectionTimeout
	}
}

// backoff returns the exponential delay before retry n, capped and with ±12.5% jitter
func (cm *ConnectionManager) backoff(n int) time.Duration {
	base := cm.reconnectDelay
	if base <= 0 {
		base = 5 * time.Second
	}

	delay := base
	for i := 1; i < n && delay < cm.maxDelay; i++ {
		delay *= 2
	}
	if delay > cm.maxDelay {
		delay = cm.maxDelay
	}

	jitter := int64(delay) / 4
	if jitter > 0 {
		delay += time.Duration(rand.Int63n(jitter) - jitter/2)
	}
	return delay
}

func (cm *ConnectionManager) notifyConnected() {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()
	for _, listener := range cm.listeners {
		go listener.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()
	for _, listener := range cm.listeners {
		go listener.OnDisconnected(err)
	}
}

func (cm *ConnectionManager) notifyReconnecting(attempt int) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()
	for _, listener := range cm.listeners {
		go listener.OnReconnecting(attempt)
	}
}
