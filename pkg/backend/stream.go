package backend

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/minibroker/pkg/models"
)

// QuoteHandler receives each live quote pushed by the gateway.
type QuoteHandler func(symbol string, quote models.Quote)

// QuoteStream subscribes to the gateway's live quote feed for one
// symbol. Quotes on the wire use the same nested-or-flat shape as the
// REST quote endpoint and go through the same resolution tables.
type QuoteStream struct {
	url       string
	symbol    string
	conn      *websocket.Conn
	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	handler   QuoteHandler
	logger    *logrus.Logger
}

func NewQuoteStream(baseURL, symbol string, handler QuoteHandler, logger *logrus.Logger) (*QuoteStream, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse gateway url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/quote"
	u.RawQuery = url.Values{"symbol": {symbol}}.Encode()

	return &QuoteStream{
		url:     u.String(),
		symbol:  symbol,
		handler: handler,
		logger:  logger,
	}, nil
}

func (qs *QuoteStream) Connect(ctx context.Context) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.connected {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, qs.url, nil)
	if err != nil {
		return errors.Wrap(err, "connect quote stream")
	}

	// The dial context only bounds the handshake. The stream runs on its
	// own lifecycle, ended by Close, so a short-lived caller context
	// cannot tear down the feed.
	streamCtx, cancel := context.WithCancel(context.Background())
	qs.conn = conn
	qs.connected = true
	qs.cancel = cancel

	go qs.readLoop(streamCtx)
	go qs.keepAlive(streamCtx)

	return nil
}

func (qs *QuoteStream) Close() {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	qs.connected = false
	if qs.cancel != nil {
		qs.cancel()
		qs.cancel = nil
	}
	if qs.conn != nil {
		qs.conn.Close()
	}
}

func (qs *QuoteStream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, payload, err := qs.conn.ReadMessage()
			if err != nil {
				qs.logger.WithError(err).WithField("symbol", qs.symbol).Debug("Quote stream closed")
				qs.Close()
				return
			}

			quote, err := DecodeQuote(payload)
			if err != nil {
				qs.logger.WithError(err).Debug("Dropping unparsable quote frame")
				continue
			}
			if qs.handler != nil {
				qs.handler(qs.symbol, quote)
			}
		}
	}
}

func (qs *QuoteStream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qs.mu.Lock()
			if qs.connected {
				if err := qs.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					qs.logger.WithError(err).Debug("Quote stream ping failed")
					qs.connected = false
					qs.conn.Close()
				}
			}
			qs.mu.Unlock()
		}
	}
}
