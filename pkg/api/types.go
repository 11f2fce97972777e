package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST API Types
// ==============================

// MarketInfo is the public view of a market record.
type MarketInfo struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
	BaseLotSize   int64  `json:"baseLotSize"`
	QuoteLotSize  int64  `json:"quoteLotSize"`
	MakerFee      int64  `json:"makerFee"`
	TakerFee      int64  `json:"takerFee"`
	TimeExpiry    int64  `json:"timeExpiry"`
	SeqNum        uint64 `json:"seqNum"`

	BaseVault         string `json:"baseVault"`
	QuoteVault        string `json:"quoteVault"`
	BaseDepositTotal  uint64 `json:"baseDepositTotal"`
	QuoteDepositTotal uint64 `json:"quoteDepositTotal"`

	FeesAccrued   uint64 `json:"feesAccrued"`
	FeesAvailable uint64 `json:"feesAvailable"`
	MakerVolume   uint64 `json:"makerVolume"`
}

// CreateMarketRequest creates a new market.
type CreateMarketRequest struct {
	Name          string `json:"name"`
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
	BaseLotSize   int64  `json:"baseLotSize"`
	QuoteLotSize  int64  `json:"quoteLotSize"`
	MakerFee      int64  `json:"makerFee"`
	TakerFee      int64  `json:"takerFee"`
	TimeExpiry    int64  `json:"timeExpiry"`

	CollectFeeAdmin    string `json:"collectFeeAdmin"`
	OpenOrdersAdmin    string `json:"openOrdersAdmin,omitempty"`
	ConsumeEventsAdmin string `json:"consumeEventsAdmin,omitempty"`
	CloseMarketAdmin   string `json:"closeMarketAdmin,omitempty"`

	OracleA           string `json:"oracleA,omitempty"`
	OracleB           string `json:"oracleB,omitempty"`
	MaxStalenessSlots int64  `json:"maxStalenessSlots,omitempty"`
	ConfFilter        string `json:"confFilter,omitempty"`
}

// PriceLevel is one aggregated level of an orderbook snapshot.
type PriceLevel struct {
	PriceLots int64 `json:"priceLots"`
	Size      int64 `json:"size"`
}

// OrderbookSnapshot is the aggregated two-sided book.
type OrderbookSnapshot struct {
	Market    string       `json:"market"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// InitAccountRequest creates an open-orders account.
type InitAccountRequest struct {
	Owner      string `json:"owner"`
	Market     string `json:"market"`
	AccountNum uint32 `json:"accountNum"`
	Delegate   string `json:"delegate,omitempty"`
}

// SlotInfo is one open order slot.
type SlotInfo struct {
	Index           int    `json:"index"`
	OrderID         string `json:"orderId"`
	Side            string `json:"side"`
	Tree            string `json:"tree"`
	ClientID        uint64 `json:"clientId"`
	LockedPriceLots int64  `json:"lockedPriceLots"`
}

// AccountInfo is the public view of an open-orders account.
type AccountInfo struct {
	Address    string `json:"address"`
	Owner      string `json:"owner"`
	Market     string `json:"market"`
	AccountNum uint32 `json:"accountNum"`

	BaseFreeLots        int64 `json:"baseFreeLots"`
	QuoteFreeLots       int64 `json:"quoteFreeLots"`
	LockedBaseLots      int64 `json:"lockedBaseLots"`
	LockedQuoteLots     int64 `json:"lockedQuoteLots"`
	LockedMakerFeesLots int64 `json:"lockedMakerFeesLots"`

	MakerVolume uint64 `json:"makerVolume"`
	TakerVolume uint64 `json:"takerVolume"`

	OpenOrders []SlotInfo `json:"openOrders"`
}

// PlaceOrderRequest submits an order. Pegged orders use priceOffsetLots and
// pegLimit instead of priceLots.
type PlaceOrderRequest struct {
	Signer  string `json:"signer"`
	Admin   string `json:"admin,omitempty"`
	Account string `json:"account"`
	Market  string `json:"market"`

	Side      string `json:"side"`      // "bid" | "ask"
	OrderType string `json:"orderType"` // "limit" | "ioc" | "post_only" | "market"

	PriceLots       int64 `json:"priceLots,omitempty"`
	Pegged          bool  `json:"pegged,omitempty"`
	PriceOffsetLots int64 `json:"priceOffsetLots,omitempty"`
	PegLimit        int64 `json:"pegLimit,omitempty"`

	MaxBaseLots               int64 `json:"maxBaseLots"`
	MaxQuoteLotsIncludingFees int64 `json:"maxQuoteLotsIncludingFees"`

	ClientOrderID     uint64 `json:"clientOrderId,omitempty"`
	ExpiryTimestamp   int64  `json:"expiryTimestamp,omitempty"`
	SelfTradeBehavior string `json:"selfTradeBehavior,omitempty"`

	Limit int `json:"limit,omitempty"`
}

// PlaceOrderResponse reports the outcome of a placement.
type PlaceOrderResponse struct {
	TotalBaseTakenLots  int64  `json:"totalBaseTakenLots"`
	TotalQuoteTakenLots int64  `json:"totalQuoteTakenLots"`
	TakerFeeLots        int64  `json:"takerFeeLots"`
	RestingOrderID      string `json:"restingOrderId,omitempty"`
	NotFullyExecuted    bool   `json:"notFullyExecuted"`
}

// CancelOrderRequest cancels by order id, by client id, or everything on an
// optional side. Exactly one of orderId / clientOrderId / all applies.
type CancelOrderRequest struct {
	Signer  string `json:"signer"`
	Account string `json:"account"`

	OrderID       string `json:"orderId,omitempty"`
	ClientOrderID uint64 `json:"clientOrderId,omitempty"`
	All           bool   `json:"all,omitempty"`
	Side          string `json:"side,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// ConsumeEventsRequest cranks settlement for a market.
type ConsumeEventsRequest struct {
	Signer string `json:"signer"`
	Limit  int    `json:"limit,omitempty"`
}

// DepositRequest credits native funds into an account.
type DepositRequest struct {
	Signer      string `json:"signer"`
	BaseNative  uint64 `json:"baseNative"`
	QuoteNative uint64 `json:"quoteNative"`
}

// SettleRequest moves free balances out to the owner.
type SettleRequest struct {
	Signer string `json:"signer"`
}

// SweepFeesRequest pays collected fees out to destination.
type SweepFeesRequest struct {
	Signer      string `json:"signer"`
	Destination string `json:"destination"`
}

// PruneOrdersRequest force-cancels an account's orders on an expired market.
type PruneOrdersRequest struct {
	Signer string `json:"signer"`
	Limit  int    `json:"limit,omitempty"`
}

// StubOracleRequest creates or updates an owner-settable feed.
type StubOracleRequest struct {
	Signer    string `json:"signer"`
	Symbol    string `json:"symbol,omitempty"`
	Address   string `json:"address,omitempty"`
	Price     string `json:"price"`
	Deviation string `json:"deviation,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest subscribes or unsubscribes channels, e.g.
// "fills:0xMarketAddress".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// FillUpdate streams one queue event as it is produced by matching.
type FillUpdate struct {
	Type      string `json:"type"` // "fill" | "out"
	Market    string `json:"market"`
	TakerSide string `json:"takerSide,omitempty"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker,omitempty"`
	PriceLots int64  `json:"priceLots,omitempty"`
	Quantity  int64  `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
	SeqNum    uint64 `json:"seqNum"`
}
