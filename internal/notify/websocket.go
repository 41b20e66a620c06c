package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// WebsocketSink streams notifications to an external listener over a
// WebSocket connection with a single write goroutine. Messages are dropped
// rather than buffered when the connection is down; the sink must never
// stall a calculation path.
type WebsocketSink struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL  string
	secret string

	logger *slog.Logger
}

// NewWebsocketSink dials the given URL and starts the write loop. The secret
// is appended as a query parameter for listener-side auth.
func NewWebsocketSink(rawURL, secret string, logger *slog.Logger) (*WebsocketSink, error) {
	s := &WebsocketSink{
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		wsURL:  rawURL,
		secret: secret,
		logger: logger,
	}

	conn, err := s.dialOnce()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.writeLoop()
	go s.readLoop()

	return s, nil
}

// Notify implements Sink. Non-blocking; drops if the channel is full.
func (s *WebsocketSink) Notify(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("Failed to marshal notification", "error", err)
		return
	}
	select {
	case s.sendCh <- data:
	default:
		s.logger.Warn("Notification send channel full, dropping message")
	}
}

func (s *WebsocketSink) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if s.secret != "" {
		q := u.Query()
		q.Set("secret", s.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh and writes messages to the WebSocket.
// Only one writeLoop runs at a time; it returns on error or shutdown.
func (s *WebsocketSink) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.sendCh:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()

			if conn == nil {
				continue
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go s.reconnect()
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.logger.Warn("WebSocket write error", "error", err)
				go s.reconnect()
				return
			}
		}
	}
}

// readLoop drains inbound frames so control messages are processed. The
// listener protocol is one-way; anything received is discarded.
func (s *WebsocketSink) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			return
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("WebSocket read error", "error", err)
			go s.reconnect()
			return
		}
	}
}

// reconnect attempts to re-establish the connection with exponential
// backoff, then restarts the read/write loops.
func (s *WebsocketSink) reconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-s.done:
			return
		default:
		}

		s.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		time.Sleep(backoff)

		conn, err := s.dialOnce()
		if err != nil {
			s.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.logger.Info("WebSocket reconnected", "attempt", attempt)
		go s.writeLoop()
		go s.readLoop()
		return
	}

	s.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// Close sends a close frame and shuts down all goroutines.
func (s *WebsocketSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
