// Package api exposes the exchange over REST and streams fills over
// WebSocket. All state changes go through the exchange facade; the server
// only translates.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianx/meridian/pkg/exchange"
	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/engine"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/keys"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

// Server handles REST API and WebSocket connections
type Server struct {
	ex     *exchange.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

// NewServer creates a new API server and hooks the fill stream into the hub.
func NewServer(ex *exchange.Exchange, log *zap.Logger) *Server {
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(log.Named("ws")),
		log:    log,
	}
	ex.SetFillHandler(s.broadcastEvent)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
	api.HandleFunc("/markets/{address}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{address}", s.handleCloseMarket).Methods("DELETE")
	api.HandleFunc("/markets/{address}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{address}/consume", s.handleConsumeEvents).Methods("POST")
	api.HandleFunc("/markets/{address}/sweep-fees", s.handleSweepFees).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts", s.handleInitAccount).Methods("POST")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleCloseAccount).Methods("DELETE")
	api.HandleFunc("/accounts/{address}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{address}/settle", s.handleSettle).Methods("POST")
	api.HandleFunc("/accounts/{address}/prune", s.handlePrune).Methods("POST")

	// Order submission
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Stub oracle administration
	api.HandleFunc("/oracles/stub", s.handleCreateStubOracle).Methods("POST")
	api.HandleFunc("/oracles/stub/{address}", s.handleSetStubOracle).Methods("PUT")
	api.HandleFunc("/oracles/stub/{address}", s.handleCloseStubOracle).Methods("DELETE")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	handler := c.Handler(s.router)

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}

// ==============================
// Market Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.ex.Markets()
	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = marketInfo(m)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	m, err := s.ex.Market(addr)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(m))
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cfg := market.Config{
		Name:          req.Name,
		BaseDecimals:  req.BaseDecimals,
		QuoteDecimals: req.QuoteDecimals,
		BaseLotSize:   req.BaseLotSize,
		QuoteLotSize:  req.QuoteLotSize,
		MakerFee:      req.MakerFee,
		TakerFee:      req.TakerFee,
		TimeExpiry:    req.TimeExpiry,
	}
	if !common.IsHexAddress(req.CollectFeeAdmin) {
		respondError(w, http.StatusBadRequest, "invalid collectFeeAdmin", "")
		return
	}
	cfg.CollectFeeAdmin = common.HexToAddress(req.CollectFeeAdmin)
	var ok bool
	if cfg.OpenOrdersAdmin, ok = optionalAddress(w, req.OpenOrdersAdmin, "openOrdersAdmin"); !ok {
		return
	}
	if cfg.ConsumeEventsAdmin, ok = optionalAddress(w, req.ConsumeEventsAdmin, "consumeEventsAdmin"); !ok {
		return
	}
	if cfg.CloseMarketAdmin, ok = optionalAddress(w, req.CloseMarketAdmin, "closeMarketAdmin"); !ok {
		return
	}
	if cfg.OracleA, ok = optionalAddress(w, req.OracleA, "oracleA"); !ok {
		return
	}
	if cfg.OracleB, ok = optionalAddress(w, req.OracleB, "oracleB"); !ok {
		return
	}
	cfg.OracleConfig.MaxStalenessSlots = req.MaxStalenessSlots
	if req.ConfFilter != "" {
		conf, err := decimal.NewFromString(req.ConfFilter)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid confFilter", err.Error())
			return
		}
		cfg.OracleConfig.ConfFilter = conf
	}

	addr, err := s.ex.CreateMarket(cfg)
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"address": addr.Hex()})
}

func (s *Server) handleCloseMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	signer, ok := queryAddress(w, r, "signer")
	if !ok {
		return
	}
	if err := s.ex.CloseMarket(signer, addr); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "closed"})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	bids, err := s.ex.BookLevels(addr, book.Bid)
	if err != nil {
		respondOpError(w, err)
		return
	}
	asks, err := s.ex.BookLevels(addr, book.Ask)
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, OrderbookSnapshot{
		Market:    addr.Hex(),
		Bids:      priceLevels(bids),
		Asks:      priceLevels(asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleConsumeEvents(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req ConsumeEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	consumed, err := s.ex.ConsumeEvents(common.HexToAddress(req.Signer), addr, req.Limit)
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]int{"consumed": consumed})
}

func (s *Server) handleSweepFees(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req SweepFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Destination) {
		respondError(w, http.StatusBadRequest, "invalid destination", "")
		return
	}
	amount, err := s.ex.SweepFees(common.HexToAddress(req.Signer), addr, common.HexToAddress(req.Destination))
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]uint64{"swept": amount})
}

// ==============================
// Account Handlers
// ==============================

func (s *Server) handleInitAccount(w http.ResponseWriter, r *http.Request) {
	var req InitAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Owner) || !common.IsHexAddress(req.Market) {
		respondError(w, http.StatusBadRequest, "invalid owner or market address", "")
		return
	}
	delegate, ok := optionalAddress(w, req.Delegate, "delegate")
	if !ok {
		return
	}
	addr, err := s.ex.InitOpenOrders(common.HexToAddress(req.Owner), common.HexToAddress(req.Market), req.AccountNum, delegate)
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"address": addr.Hex()})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	acct, err := s.ex.Account(addr)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found", err.Error())
		return
	}
	respondJSON(w, accountInfo(&acct))
}

func (s *Server) handleCloseAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	signer, ok := queryAddress(w, r, "signer")
	if !ok {
		return
	}
	if err := s.ex.CloseOpenOrders(signer, addr); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "closed"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.ex.Deposit(common.HexToAddress(req.Signer), addr, req.BaseNative, req.QuoteNative); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.ex.SettleFunds(common.HexToAddress(req.Signer), addr); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req PruneOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	pruned, err := s.ex.PruneOrders(common.HexToAddress(req.Signer), addr, req.Limit)
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]int{"pruned": pruned})
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Signer) || !common.IsHexAddress(req.Account) || !common.IsHexAddress(req.Market) {
		respondError(w, http.StatusBadRequest, "invalid signer, account or market address", "")
		return
	}
	ord, err := orderFromRequest(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	args := exchange.PlaceOrderArgs{
		Signer:  common.HexToAddress(req.Signer),
		Admin:   common.HexToAddress(req.Admin),
		Account: common.HexToAddress(req.Account),
		Market:  common.HexToAddress(req.Market),
		Order:   ord,
		Limit:   req.Limit,
	}
	res, err := s.ex.PlaceOrder(args)
	if err != nil {
		respondOpError(w, err)
		return
	}
	resp := PlaceOrderResponse{
		TotalBaseTakenLots:  res.TotalBaseTakenLots,
		TotalQuoteTakenLots: res.TotalQuoteTakenLots,
		TakerFeeLots:        res.TakerFeeLots,
		NotFullyExecuted:    res.NotFullyExecuted,
	}
	if res.RestingID != nil {
		resp.RestingOrderID = res.RestingID.String()
	}
	respondJSON(w, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Signer) || !common.IsHexAddress(req.Account) {
		respondError(w, http.StatusBadRequest, "invalid signer or account address", "")
		return
	}
	signer := common.HexToAddress(req.Signer)
	acct := common.HexToAddress(req.Account)

	switch {
	case req.All:
		var side *book.Side
		if req.Side != "" {
			parsed, err := parseSide(req.Side)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid side", err.Error())
				return
			}
			side = &parsed
		}
		cancelled, err := s.ex.CancelAll(signer, acct, side, req.Limit)
		if err != nil {
			respondOpError(w, err)
			return
		}
		respondJSON(w, map[string]int{"cancelled": cancelled})
	case req.OrderID != "":
		id, err := book.ParseOrderID(req.OrderID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
			return
		}
		if err := s.ex.CancelOrder(signer, acct, id); err != nil {
			respondOpError(w, err)
			return
		}
		respondJSON(w, map[string]string{"status": "cancelled", "orderId": req.OrderID})
	case req.ClientOrderID != 0:
		id, err := s.ex.CancelOrderByClientID(signer, acct, req.ClientOrderID)
		if err != nil {
			respondOpError(w, err)
			return
		}
		respondJSON(w, map[string]string{"status": "cancelled", "orderId": id.String()})
	default:
		respondError(w, http.StatusBadRequest, "nothing to cancel", "set orderId, clientOrderId or all")
	}
}

// ==============================
// Oracle Handlers
// ==============================

func (s *Server) handleCreateStubOracle(w http.ResponseWriter, r *http.Request) {
	var req StubOracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Signer) || req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "signer and symbol required", "")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	addr, err := s.ex.CreateStubOracle(common.HexToAddress(req.Signer), req.Symbol, price)
	if err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"address": addr.Hex()})
}

func (s *Server) handleSetStubOracle(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req StubOracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	deviation := decimal.Zero
	if req.Deviation != "" {
		if deviation, err = decimal.NewFromString(req.Deviation); err != nil {
			respondError(w, http.StatusBadRequest, "invalid deviation", err.Error())
			return
		}
	}
	if err := s.ex.SetStubOracle(common.HexToAddress(req.Signer), addr, price, deviation); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCloseStubOracle(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	signer, ok := queryAddress(w, r, "signer")
	if !ok {
		return
	}
	if err := s.ex.CloseStubOracle(signer, addr); err != nil {
		respondOpError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "closed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast
// ==============================

// broadcastEvent streams a queue event to subscribers of the market's fill
// channel. Runs on the placing goroutine; the hub send is non-blocking.
func (s *Server) broadcastEvent(mkt common.Address, ev events.Event) {
	update := FillUpdate{
		Market:    mkt.Hex(),
		Maker:     ev.Owner.Hex(),
		Quantity:  ev.Quantity,
		Timestamp: ev.Timestamp,
		SeqNum:    ev.SeqNum,
	}
	if ev.Type == events.TypeFill {
		update.Type = "fill"
		update.TakerSide = ev.Side.String()
		update.Taker = ev.TakerOwner.Hex()
		update.PriceLots = ev.PriceLots
	} else {
		update.Type = "out"
	}
	s.hub.BroadcastToChannel("fills:"+mkt.Hex(), update)
}

// ==============================
// Helper Functions
// ==============================

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		Address:           m.Address.Hex(),
		Name:              m.Name,
		BaseDecimals:      m.BaseDecimals,
		QuoteDecimals:     m.QuoteDecimals,
		BaseLotSize:       m.BaseLotSize,
		QuoteLotSize:      m.QuoteLotSize,
		MakerFee:          m.MakerFee,
		TakerFee:          m.TakerFee,
		TimeExpiry:        m.TimeExpiry,
		SeqNum:            m.SeqNum,
		BaseVault:         m.BaseVault.Hex(),
		QuoteVault:        m.QuoteVault.Hex(),
		BaseDepositTotal:  m.BaseDepositTotal,
		QuoteDepositTotal: m.QuoteDepositTotal,
		FeesAccrued:       m.FeesAccrued,
		FeesAvailable:     m.FeesAvailable,
		MakerVolume:       m.MakerVolume,
	}
}

func accountInfo(acct *account.OpenOrders) AccountInfo {
	info := AccountInfo{
		Address:             acct.Address.Hex(),
		Owner:               acct.Owner.Hex(),
		Market:              acct.Market.Hex(),
		AccountNum:          acct.AccountNum,
		BaseFreeLots:        acct.Position.BaseFreeLots,
		QuoteFreeLots:       acct.Position.QuoteFreeLots,
		LockedBaseLots:      acct.Position.LockedBaseLots,
		LockedQuoteLots:     acct.Position.LockedQuoteLots,
		LockedMakerFeesLots: acct.Position.LockedMakerFeesLots,
		MakerVolume:         acct.Position.MakerVolume,
		TakerVolume:         acct.Position.TakerVolume,
	}
	for i, slot := range acct.Slots {
		if !slot.Active {
			continue
		}
		info.OpenOrders = append(info.OpenOrders, SlotInfo{
			Index:           i,
			OrderID:         slot.ID.String(),
			Side:            slot.Side.String(),
			Tree:            slot.Tree.String(),
			ClientID:        slot.ClientID,
			LockedPriceLots: slot.LockedPriceLots,
		})
	}
	return info
}

func priceLevels(levels []exchange.BookLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{PriceLots: l.PriceLots, Size: l.Quantity}
	}
	return out
}

func orderFromRequest(req *PlaceOrderRequest) (engine.Order, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return engine.Order{}, err
	}
	typ, err := parseOrderType(req.OrderType)
	if err != nil {
		return engine.Order{}, err
	}
	stb, err := parseSelfTrade(req.SelfTradeBehavior)
	if err != nil {
		return engine.Order{}, err
	}
	return engine.Order{
		Side:                      side,
		PriceLots:                 req.PriceLots,
		Pegged:                    req.Pegged,
		PriceOffsetLots:           req.PriceOffsetLots,
		PegLimit:                  req.PegLimit,
		MaxBaseLots:               req.MaxBaseLots,
		MaxQuoteLotsIncludingFees: req.MaxQuoteLotsIncludingFees,
		ClientOrderID:             req.ClientOrderID,
		Type:                      typ,
		ExpiryTimestamp:           req.ExpiryTimestamp,
		SelfTradeBehavior:         stb,
	}, nil
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "bid", "buy":
		return book.Bid, nil
	case "ask", "sell":
		return book.Ask, nil
	}
	return 0, errors.New("side must be bid or ask")
}

func parseOrderType(s string) (engine.OrderType, error) {
	switch s {
	case "limit", "":
		return engine.Limit, nil
	case "ioc":
		return engine.ImmediateOrCancel, nil
	case "post_only":
		return engine.PostOnly, nil
	case "market":
		return engine.Market, nil
	}
	return 0, errors.New("unknown order type")
}

func parseSelfTrade(s string) (engine.SelfTradeBehavior, error) {
	switch s {
	case "decrement_take", "":
		return engine.DecrementTake, nil
	case "cancel_provide":
		return engine.CancelProvide, nil
	case "abort_transaction":
		return engine.AbortTransaction, nil
	}
	return 0, errors.New("unknown self trade behavior")
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func queryAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	raw := r.URL.Query().Get(param)
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid "+param, raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func optionalAddress(w http.ResponseWriter, raw, field string) (keys.OptionalKey, bool) {
	if raw == "" {
		return keys.None(), true
	}
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid "+field, raw)
		return keys.OptionalKey{}, false
	}
	return keys.Some(common.HexToAddress(raw)), true
}

// respondOpError maps exchange errors onto HTTP status codes.
func respondOpError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, exchange.ErrUnknownMarket), errors.Is(err, exchange.ErrUnknownAccount),
		errors.Is(err, book.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrAdminRequired), errors.Is(err, account.ErrNoOwnerOrDelegate):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, oracle.ErrStale), errors.Is(err, oracle.ErrConfidence),
		errors.Is(err, oracle.ErrInvalidPrice):
		status = http.StatusServiceUnavailable
	case errors.Is(err, events.ErrQueueFull), errors.Is(err, book.ErrBookFull):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrWouldSelfTrade), errors.Is(err, engine.ErrWouldCross),
		errors.Is(err, market.ErrExpired), errors.Is(err, market.ErrNotEmpty),
		errors.Is(err, account.ErrNotEmpty), errors.Is(err, account.ErrSlotsFull):
		status = http.StatusConflict
	}
	respondError(w, status, "operation failed", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
