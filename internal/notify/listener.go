package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webclinic017/pgjobq/pkg/log"
)

// Postgres channels the listener subscribes to. Arrival payloads carry the
// queue name; completion payloads carry "<queue> <message id>".
const (
	ChannelArrival    = "pgjobq_arrival"
	ChannelCompletion = "pgjobq_completion"
)

const (
	listenerBaseBackoff = 250 * time.Millisecond
	listenerMaxBackoff  = 5 * time.Second
)

// Listener holds one dedicated connection in LISTEN mode and routes
// server notifications into a Hub. It reconnects with backoff when the
// connection drops; waiters fall back to polling in the meantime.
type Listener struct {
	connConfig *pgx.ConnConfig
	hub        *Hub
	logger     log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewListener creates a listener for the given connection config. The
// config should come from the pool's settings so credentials and TLS
// options match; the listener dials its own connection from it.
func NewListener(connConfig *pgx.ConnConfig, hub *Hub, logger log.Logger) *Listener {
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		connConfig: connConfig,
		hub:        hub,
		logger:     logger.WithComponent("listener"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening in the background.
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop terminates the listener and waits for it to exit.
func (l *Listener) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *Listener) run() {
	defer l.wg.Done()

	l.logger.Info("NotificationListener started",
		log.Field{Key: "channels", Value: ChannelArrival + "," + ChannelCompletion},
	)
	defer l.logger.Info("NotificationListener stopped")

	backoff := listenerBaseBackoff
	for {
		connected, err := l.listen()
		if l.ctx.Err() != nil {
			return
		}
		if connected {
			backoff = listenerBaseBackoff
		}
		l.logger.Warn("NotificationListener: connection lost",
			log.Field{Key: "error", Value: err.Error()},
			log.Field{Key: "retry_in", Value: backoff.String()},
		)
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > listenerMaxBackoff {
			backoff = listenerMaxBackoff
		}
	}
}

// listen dials a connection, subscribes to both channels and dispatches
// notifications until the connection fails or the listener stops. It
// reports whether the subscription was established.
func (l *Listener) listen() (bool, error) {
	conn, err := pgx.ConnectConfig(l.ctx, l.connConfig)
	if err != nil {
		return false, err
	}
	defer conn.Close(context.Background())

	for _, ch := range []string{ChannelArrival, ChannelCompletion} {
		if _, err := conn.Exec(l.ctx, "LISTEN "+ch); err != nil {
			return false, err
		}
	}

	for {
		n, err := conn.WaitForNotification(l.ctx)
		if err != nil {
			return true, err
		}
		l.dispatch(n)
	}
}

func (l *Listener) dispatch(n *pgconn.Notification) {
	switch n.Channel {
	case ChannelArrival:
		l.hub.Notify(ArrivalKey(n.Payload))
	case ChannelCompletion:
		queue, _, _ := strings.Cut(n.Payload, " ")
		l.hub.Notify(CompletionKey(queue))
	}
}
