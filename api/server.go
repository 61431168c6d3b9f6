package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/minibroker/pkg/broker"
	"github.com/tradedesk/minibroker/pkg/tradelog"
)

// Server is the JSON/HTTP gateway between the dashboard and the
// upstream broker. It proxies data endpoints, translates order
// submissions into the upstream's bracket-order shape, records every
// trading action and client diagnostic, and streams live quotes over a
// websocket.
type Server struct {
	broker   broker.Client
	log      *tradelog.Store
	logger   *logrus.Logger
	port     string
	upgrader websocket.Upgrader

	// QuoteInterval controls how often /ws/quote pushes a snapshot.
	QuoteInterval time.Duration
}

func NewServer(broker broker.Client, log *tradelog.Store, logger *logrus.Logger, port string) *Server {
	return &Server{
		broker: broker,
		log:    log,
		logger: logger,
		port:   port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		QuoteInterval: 2 * time.Second,
	}
}

func (s *Server) Start() error {
	s.logger.Infof("Starting gateway on port %s", s.port)
	return http.ListenAndServe(":"+s.port, s.Handler())
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ping", s.handlePing)
	mux.HandleFunc("/api/client-log", s.handleClientLog)
	mux.HandleFunc("/api/account", s.proxy("account", s.broker.GetAccount))
	mux.HandleFunc("/api/clock", s.proxy("clock", s.broker.GetClock))
	mux.HandleFunc("/api/assets", s.proxy("assets", s.broker.ListAssets))
	mux.HandleFunc("/api/bars", s.handleBars)
	mux.HandleFunc("/api/quote", s.handleQuote)
	mux.HandleFunc("/api/orders", s.proxy("orders", s.broker.ListOrders))
	mux.HandleFunc("/api/positions", s.proxy("positions", s.broker.ListPositions))
	mux.HandleFunc("/api/order", s.handleOrder)
	mux.HandleFunc("/api/close_position", s.handleClosePosition)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/ws/quote", s.handleQuoteStream)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"pong": true})
}

func (s *Server) handleClientLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.log.Append("CLIENT_LOG", "OK", record, nil, ""); err != nil {
		s.logger.WithError(err).Error("Failed to record client log")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// proxy wraps a parameterless upstream fetch into a GET handler. A
// failed upstream call maps to 502, matching the gateway contract that
// upstream trouble is the gateway's trouble.
func (s *Server) proxy(name string, fetch func(context.Context) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := fetch(r.Context())
		if err != nil {
			s.logger.WithError(err).Errorf("Upstream %s fetch failed", name)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		s.writeRaw(w, http.StatusOK, body)
	}
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1Day"
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	body, err := s.broker.GetBars(r.Context(), symbol, timeframe, limit)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Error("Upstream bars fetch failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeRaw(w, http.StatusOK, body)
}

// handleQuote combines the latest trade and latest quote into one
// response. The two upstream calls fail independently: an error on one
// side becomes an error object in its slot, never a failed response.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}
	s.writeRaw(w, http.StatusOK, s.quoteSnapshot(r.Context(), symbol))
}

func (s *Server) quoteSnapshot(ctx context.Context, symbol string) json.RawMessage {
	slot := func(body json.RawMessage, err error) json.RawMessage {
		if err != nil {
			wrapped, _ := json.Marshal(map[string]string{"error": err.Error()})
			return wrapped
		}
		return body
	}
	trade := slot(s.broker.LatestTrade(ctx, symbol))
	quote := slot(s.broker.LatestQuote(ctx, symbol))

	snapshot, _ := json.Marshal(map[string]json.RawMessage{
		"symbol": json.RawMessage(strconv.Quote(symbol)),
		"trade":  trade,
		"quote":  quote,
	})
	return snapshot
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.log.Append("ORDER_INPUT", "OK", in, nil, ""); err != nil {
		s.logger.WithError(err).Error("Failed to record order input")
	}

	payload, err := translateOrder(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, body, err := s.broker.PlaceOrder(r.Context(), payload)
	if err != nil {
		s.logger.WithError(err).Error("Upstream order placement failed")
		if logErr := s.log.Append("PLACE_ORDER", "ERROR", payload, nil, err.Error()); logErr != nil {
			s.logger.WithError(logErr).Error("Failed to record order")
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	logStatus, logErrText := "OK", ""
	if status < 200 || status >= 300 {
		logStatus, logErrText = "ERROR", string(body)
	}
	if logErr := s.log.Append("PLACE_ORDER", logStatus, payload, body, logErrText); logErr != nil {
		s.logger.WithError(logErr).Error("Failed to record order")
	}

	s.writeRaw(w, status, body)
}

// translateOrder maps the dashboard's order payload onto the upstream
// bracket-order shape: prices become strings, tp/sl legs become a
// bracket order class, and a missing extended_hours means false.
func translateOrder(in map[string]any) (map[string]any, error) {
	symbol, _ := in["symbol"].(string)
	if strings.TrimSpace(symbol) == "" {
		return nil, errors.New("symbol required")
	}
	orderType, _ := in["type"].(string)
	if orderType == "" {
		orderType = "market"
	}
	timeInForce, _ := in["time_in_force"].(string)
	if timeInForce == "" {
		timeInForce = "gtc"
	}
	extendedHours, _ := in["extended_hours"].(bool)

	payload := map[string]any{
		"symbol":         strings.ToUpper(strings.TrimSpace(symbol)),
		"side":           in["side"],
		"type":           orderType,
		"qty":            in["qty"],
		"time_in_force":  timeInForce,
		"extended_hours": extendedHours,
	}

	if orderType == "limit" {
		limitPrice, ok := asFloat(in["limit_price"])
		if !ok {
			return nil, errors.New("limit_price required for limit orders")
		}
		payload["limit_price"] = strconv.FormatFloat(limitPrice, 'f', -1, 64)
	}

	tp, hasTP := asFloat(in["tp_price"])
	sl, hasSL := asFloat(in["sl_price"])
	if hasTP || hasSL {
		payload["order_class"] = "bracket"
		if hasTP {
			payload["take_profit"] = map[string]string{"limit_price": strconv.FormatFloat(tp, 'f', -1, 64)}
		}
		if hasSL {
			payload["stop_loss"] = map[string]string{"stop_price": strconv.FormatFloat(sl, 'f', -1, 64)}
		}
	}

	return payload, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}

	status, body, err := s.broker.ClosePosition(r.Context(), symbol)
	if err != nil {
		s.logger.WithError(err).Error("Upstream close position failed")
		if logErr := s.log.Append("CLOSE_POSITION", "ERROR", in, nil, err.Error()); logErr != nil {
			s.logger.WithError(logErr).Error("Failed to record close")
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	logStatus, logErrText := "OK", ""
	if status < 200 || status >= 300 {
		logStatus, logErrText = "ERROR", string(body)
	}
	if logErr := s.log.Append("CLOSE_POSITION", logStatus, in, body, logErrText); logErr != nil {
		s.logger.WithError(logErr).Error("Failed to record close")
	}

	s.writeRaw(w, status, body)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.log.Recent(200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleQuoteStream pushes a combined trade/quote snapshot for one
// symbol at a fixed cadence until the client disconnects.
func (s *Server) handleQuoteStream(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain control frames so pings and the close handshake are seen.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.QuoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snapshot := s.quoteSnapshot(r.Context(), symbol)
			if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
				s.logger.WithError(err).WithField("symbol", symbol).Debug("Quote stream write failed")
				return
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.WithError(err).Error("Failed to write response body")
	}
}
