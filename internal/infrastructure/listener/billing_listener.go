package listener

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultChannel is the channel the billing_changed triggers notify on.
	DefaultChannel    = "billing_changed"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
	reconcileTimeout  = 30 * time.Second
)

// BillingNotification represents the payload from PostgreSQL NOTIFY
type BillingNotification struct {
	UserID int64  `json:"user_id"`
	Table  string `json:"table"`
}

// ReconcileFunc reconciles the invoices of one user.
type ReconcileFunc func(ctx context.Context, userID int64) error

// Config configures a BillingListener.
type Config struct {
	ConnStr string
	Channel string
	// Debounce coalesces bursts of changes for one user into one reconciliation.
	Debounce time.Duration
}

// BillingListener listens for PostgreSQL notifications about changed charges
// and reconciles the affected user once the burst settles.
type BillingListener struct {
	connStr    string
	channel    string
	debouncer  *debouncer
	shutdownCh chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// NewBillingListener creates a new listener for billing change notifications
func NewBillingListener(cfg Config, reconcile ReconcileFunc) *BillingListener {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &BillingListener{
		connStr:    cfg.ConnStr,
		channel:    channel,
		debouncer:  newDebouncer(cfg.Debounce, reconcile),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *BillingListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Info().Str("channel", l.channel).Msg("Billing notification listener started")
}

// Stop gracefully shuts down the listener. Pending debounced users are dropped;
// the periodic reconciliation picks them up.
func (l *BillingListener) Stop() {
	l.stopOnce.Do(func() {
		close(l.shutdownCh)
		<-l.done
		l.debouncer.stop()
		log.Info().Msg("Billing notification listener stopped")
	})
}

func (l *BillingListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		// Wait before reconnecting
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Info().Msg("Reconnecting to PostgreSQL for notifications")
		}
	}
}

func (l *BillingListener) connectAndListen(ctx context.Context) {
	// Create a dedicated listener connection
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Info().Msg("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Warn().Err(err).Msg("Disconnected from PostgreSQL notification channel")
		case pq.ListenerEventReconnected:
			log.Info().Msg("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warn().Err(err).Msg("Notification connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		log.Error().Err(err).Str("channel", l.channel).Msg("Failed to listen on channel")
		return
	}

	log.Info().Str("channel", l.channel).Msg("Listening for billing changes")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case notification := <-listener.Notify:
			if notification == nil {
				// Connection lost, break to reconnect
				return
			}
			l.handlePayload(notification.Extra)
		case <-ticker.C:
			// Ping to keep connection alive
			go func() {
				if err := listener.Ping(); err != nil {
					log.Warn().Err(err).Msg("Listener ping failed")
				}
			}()
		}
	}
}

func (l *BillingListener) handlePayload(extra string) {
	var payload BillingNotification
	if err := json.Unmarshal([]byte(extra), &payload); err != nil {
		log.Warn().Err(err).Str("payload", extra).Msg("Failed to parse billing notification")
		return
	}
	if payload.UserID <= 0 {
		log.Warn().Str("payload", extra).Msg("Billing notification without user")
		return
	}

	log.Debug().Int64("user_id", payload.UserID).Str("table", payload.Table).Msg("Billing change received")
	l.debouncer.touch(payload.UserID)
}

// debouncer runs fn for a user once no touch for that user arrived for wait.
type debouncer struct {
	wait    time.Duration
	fn      ReconcileFunc
	mu      sync.Mutex
	pending map[int64]*pendingRun
	stopped bool
}

// pendingRun is one armed timer. fire only runs the entry still in pending.
type pendingRun struct {
	timer *time.Timer
}

func newDebouncer(wait time.Duration, fn ReconcileFunc) *debouncer {
	return &debouncer{wait: wait, fn: fn, pending: make(map[int64]*pendingRun)}
}

func (d *debouncer) touch(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if run, ok := d.pending[userID]; ok && run.timer.Stop() {
		run.timer.Reset(d.wait)
		return
	}
	// A timer that already fired is replaced; its fire finds a newer entry
	// and returns.
	run := &pendingRun{}
	run.timer = time.AfterFunc(d.wait, func() { d.fire(userID, run) })
	d.pending[userID] = run
}

func (d *debouncer) fire(userID int64, run *pendingRun) {
	d.mu.Lock()
	if d.stopped || d.pending[userID] != run {
		d.mu.Unlock()
		return
	}
	delete(d.pending, userID)
	d.mu.Unlock()

	// Use background context since the listener ctx may be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	if err := d.fn(ctx, userID); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Reconciliation after billing change failed")
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for id, run := range d.pending {
		run.timer.Stop()
		delete(d.pending, id)
	}
}
