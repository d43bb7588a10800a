package markfeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arena/pkg/errors"
	"arena/pkg/logger"
)

const (
	pingInterval     = 3 * time.Minute
	readTimeout      = 10 * time.Second
	writeTimeout     = 5 * time.Second
	handshakeTimeout = 10 * time.Second

	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	reconnectBackoff      = 2.0
)

// PriceSink receives mark price updates from the stream.
// Satisfied by redis.MarkPriceCache.
type PriceSink interface {
	Set(ctx context.Context, symbol string, price decimal.Decimal) error
}

// Stream consumes the exchange mark price WebSocket feed and keeps the
// price sink current. Settlement reads prices from the sink, never from
// the stream directly.
type Stream struct {
	url  string
	sink PriceSink

	conn      *websocket.Conn
	connected bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a mark price stream writing into sink.
func NewStream(url string, sink PriceSink) *Stream {
	return &Stream{
		url:  url,
		sink: sink,
		log:  logger.Get().With("component", "markfeed"),
		done: make(chan struct{}),
	}
}

// Run connects and keeps the stream alive until ctx is cancelled.
// Reconnects with exponential backoff on any failure: mark prices are
// the margin backbone, so the loop never gives up on its own.
func (s *Stream) Run(ctx context.Context) {
	delay := reconnectInitialDelay

	for {
		if err := s.Connect(ctx); err != nil {
			s.log.Errorf("Mark feed connect failed, retrying in %v: %v", delay, err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay = min(time.Duration(float64(delay)*reconnectBackoff), reconnectMaxDelay)
			continue
		}
		delay = reconnectInitialDelay

		// Block until the connection drops or shutdown begins
		select {
		case <-ctx.Done():
			_ = s.Disconnect()
			return
		case <-s.waitDisconnected():
			s.log.Warn("Mark feed disconnected, reconnecting")
		}
	}
}

// Connect establishes the WebSocket connection and starts reader and
// ping goroutines.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	s.log.Infof("Connecting to mark feed: %s", s.url)

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to mark feed")
	}

	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.subscribe(); err != nil {
		conn.Close()
		s.conn = nil
		s.connected = false
		return err
	}

	s.wg.Add(1)
	go s.readMessages()

	s.wg.Add(1)
	go s.pingLoop()

	s.log.Info("Mark feed connected")
	return nil
}

// Disconnect closes the connection gracefully and waits for goroutines.
func (s *Stream) Disconnect() error {
	s.mu.Lock()

	if !s.connected {
		s.mu.Unlock()
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	if s.conn != nil {
		err := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(1*time.Second),
		)
		if err != nil {
			s.log.Warnf("Error sending close message: %v", err)
		}

		s.conn.Close()
		s.conn = nil
	}

	s.connected = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.log.Warn("Mark feed shutdown timed out after 10s")
		return errors.Wrap(errors.ErrTimeout, "mark feed shutdown timeout")
	}

	s.log.Info("Mark feed disconnected")
	return nil
}

// IsConnected returns connection status
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Ping sends ping to keep connection alive
func (s *Stream) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.conn == nil {
		return errors.ErrMarkFeedNotConnected
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return errors.Wrapf(err, "failed to send ping")
	}

	return nil
}

// subscribe requests the all-symbols mark price stream
func (s *Stream) subscribe() error {
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{"!markPrice@arr@1s"},
		"id":     time.Now().Unix(),
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	if err := s.conn.WriteJSON(msg); err != nil {
		return errors.Wrapf(err, "failed to send subscription")
	}

	return nil
}

// waitDisconnected returns a channel closed when the reader exits
func (s *Stream) waitDisconnected() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

func (s *Stream) readMessages() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.connected = false
		select {
		case <-s.done:
		default:
			close(s.done)
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				s.log.Errorf("Failed to set read deadline: %v", err)
				return
			}

			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Info("Mark feed closed normally")
					return
				}

				if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
					// Read deadline fired, loop around to check context
					continue
				}

				s.log.Errorf("Error reading mark feed message: %v", err)
				return
			}

			s.handleMessage(message)
		}
	}
}

type markPriceUpdate struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// handleMessage parses mark price updates. The array stream delivers a
// batch of all symbols; subscription acks and unknown events are skipped.
func (s *Stream) handleMessage(message []byte) {
	var updates []markPriceUpdate
	if err := json.Unmarshal(message, &updates); err != nil {
		var single markPriceUpdate
		if err := json.Unmarshal(message, &single); err != nil {
			return
		}
		updates = []markPriceUpdate{single}
	}

	for _, u := range updates {
		if u.EventType != "markPriceUpdate" || u.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(u.MarkPrice)
		if err != nil {
			s.log.Warnf("Bad mark price for %s: %q", u.Symbol, u.MarkPrice)
			continue
		}

		if err := s.sink.Set(s.ctx, u.Symbol, price); err != nil {
			s.log.Errorf("Failed to store mark price for %s: %v", u.Symbol, err)
		}
	}
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				s.log.Errorf("Mark feed ping failed: %v", err)
			}
		}
	}
}
