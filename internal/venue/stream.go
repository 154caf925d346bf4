package venue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/copyfx/mirror/internal/domain"
	"github.com/copyfx/mirror/internal/metrics"
	"github.com/copyfx/mirror/pkg/logger"
)

// NotificationHandler receives terminal-state order notifications from the
// gateway stream. Called from the stream goroutine.
type NotificationHandler func(ctx context.Context, note domain.OrderNotification)

// Stream subscribes to the gateway's order notification feed. The feed is a
// latency optimization: losing it degrades detection to poll speed, never to
// missed events, so reconnection retries forever with capped backoff.
type Stream struct {
	url     string
	handler NotificationHandler

	pingInterval time.Duration
	baseDelay    time.Duration
	maxDelay     time.Duration
}

func NewStream(url string, handler NotificationHandler) *Stream {
	return &Stream{
		url:          url,
		handler:      handler,
		pingInterval: 10 * time.Second,
		baseDelay:    time.Second,
		maxDelay:     30 * time.Second,
	}
}

// Run connects and reads until ctx is done, reconnecting on any failure.
func (s *Stream) Run(ctx context.Context) {
	delay := s.baseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		metrics.GatewayReconnects.Add(1)
		logger.Warnf("notification stream dropped: %v, reconnecting in %s", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Infof("notification stream connected: %s", s.url)

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go s.pingLoop(ctx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "PONG" {
			continue
		}
		note, ok := decodeNotification(raw)
		if !ok {
			continue
		}
		s.handler(ctx, note)
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				// Read loop sees the broken connection and reconnects.
				return
			}
		}
	}
}

type notificationDTO struct {
	Kind   string  `json:"kind"`
	Ticket int64   `json:"ticket"`
	Type   string  `json:"type"`
	State  string  `json:"state"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Magic  int     `json:"magic"`
}

// decodeNotification keeps only order terminal-state messages; everything
// else on the feed (heartbeats, account events) is skipped.
func decodeNotification(raw []byte) (domain.OrderNotification, bool) {
	var dto notificationDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		logger.Debugf("undecodable stream message: %v", err)
		return domain.OrderNotification{}, false
	}
	if dto.Kind != "order" || dto.Ticket == 0 {
		return domain.OrderNotification{}, false
	}
	state := domain.TerminalState(strings.ToLower(dto.State))
	switch state {
	case domain.TerminalCanceled, domain.TerminalExpired, domain.TerminalFilled, domain.TerminalRejected:
	default:
		return domain.OrderNotification{}, false
	}
	return domain.OrderNotification{
		Ticket: dto.Ticket,
		Kind:   domain.OrderKind(strings.ToLower(dto.Type)),
		State:  state,
		Symbol: dto.Symbol,
		Price:  dto.Price,
		Volume: dto.Volume,
		Magic:  dto.Magic,
	}, true
}
