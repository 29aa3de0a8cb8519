package realtime

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the connection state a Subscriber surfaces to its owner.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateLive         State = "LIVE"
	StateReconnecting State = "RECONNECTING"
	StateDisconnected State = "DISCONNECTED"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxRetries     = 10
)

// Subscriber consumes a change feed over WebSocket. A dropped connection is
// re-dialed with exponential backoff capped at maxBackoff; after maxRetries
// consecutive failures the subscriber gives up and surfaces
// StateDisconnected instead of retrying forever.
type Subscriber struct {
	url     string
	logger  *zap.Logger
	onState func(State)

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRetries     uint64
}

// NewSubscriber creates a subscriber for the given ws:// feed URL. onState
// may be nil.
func NewSubscriber(url string, logger *zap.Logger, onState func(State)) *Subscriber {
	return &Subscriber{
		url:            url,
		logger:         logger,
		onState:        onState,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxRetries:     defaultMaxRetries,
	}
}

// Subscribe starts the feed and returns the event channel. The channel is
// closed when ctx is canceled or the retry budget is exhausted.
func (s *Subscriber) Subscribe(ctx context.Context) <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 64)
	go s.run(ctx, ch)
	return ch
}

func (s *Subscriber) setState(state State) {
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *Subscriber) run(ctx context.Context, ch chan<- ChangeEvent) {
	defer close(ch)

	first := true
	for {
		if first {
			s.setState(StateConnecting)
			first = false
		} else {
			s.setState(StateReconnecting)
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("feed connection lost for good", zap.Error(err))
				s.setState(StateDisconnected)
			}
			return
		}

		s.setState(StateLive)
		s.readLoop(ctx, conn, ch)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
	}
}

// dial attempts to connect with exponential backoff, giving up after
// maxRetries consecutive failures.
func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialBackoff
	policy.MaxInterval = s.maxBackoff
	policy.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Warn("feed dial failed", zap.Error(err), zap.String("url", s.url))
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn, ch chan<- ChangeEvent) {
	// Unblock the reader when the context is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("feed read failed", zap.Error(err))
			}
			return
		}
		evt, err := Decode(env)
		if err != nil {
			s.logger.Warn("unrecognized feed event", zap.Error(err))
			continue
		}
		select {
		case ch <- evt:
		case <-ctx.Done():
			return
		}
	}
}
