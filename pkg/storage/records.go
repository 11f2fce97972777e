package storage

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianx/meridian/pkg/exchange"
	"github.com/meridianx/meridian/pkg/exchange/account"
	"github.com/meridianx/meridian/pkg/exchange/book"
	"github.com/meridianx/meridian/pkg/exchange/events"
	"github.com/meridianx/meridian/pkg/exchange/keys"
	"github.com/meridianx/meridian/pkg/exchange/market"
	"github.com/meridianx/meridian/pkg/exchange/oracle"
)

// Optional keys are stored as their sentinel form: the zero address means
// absent. The sum type exists only in memory; the sentinel convention is
// confined to these records.

// marketRecord is the persisted form of one market snapshot.
type marketRecord struct {
	Address common.Address
	Name    string

	BaseDecimals  uint8
	QuoteDecimals uint8
	TimeExpiry    int64

	CollectFeeAdmin    common.Address
	OpenOrdersAdmin    common.Address
	ConsumeEventsAdmin common.Address
	CloseMarketAdmin   common.Address

	QuoteLotSize int64
	BaseLotSize  int64

	SeqNum           uint64
	RegistrationTime int64

	MakerFee int64
	TakerFee int64

	FeesAccrued            uint64
	FeesAvailable          uint64
	MakerRebatesOwed       uint64
	ReferrerRebatesAccrued uint64

	MakerVolume uint64

	BaseVault         common.Address
	QuoteVault        common.Address
	BaseDepositTotal  uint64
	QuoteDepositTotal uint64

	OracleA      common.Address
	OracleB      common.Address
	OracleConfig oracle.Config

	Bids     []book.Order
	Asks     []book.Order
	Events   []events.Event
	EventSeq uint64
}

func newMarketRecord(snap exchange.MarketSnapshot) marketRecord {
	m := snap.Meta
	rec := marketRecord{
		Address:                m.Address,
		Name:                   m.Name,
		BaseDecimals:           m.BaseDecimals,
		QuoteDecimals:          m.QuoteDecimals,
		TimeExpiry:             m.TimeExpiry,
		CollectFeeAdmin:        m.CollectFeeAdmin,
		OpenOrdersAdmin:        m.OpenOrdersAdmin.Sentinel(),
		ConsumeEventsAdmin:     m.ConsumeEventsAdmin.Sentinel(),
		CloseMarketAdmin:       m.CloseMarketAdmin.Sentinel(),
		QuoteLotSize:           m.QuoteLotSize,
		BaseLotSize:            m.BaseLotSize,
		SeqNum:                 m.SeqNum,
		RegistrationTime:       m.RegistrationTime,
		MakerFee:               m.MakerFee,
		TakerFee:               m.TakerFee,
		FeesAccrued:            m.FeesAccrued,
		FeesAvailable:          m.FeesAvailable,
		MakerRebatesOwed:       m.MakerRebatesOwed,
		ReferrerRebatesAccrued: m.ReferrerRebatesAccrued,
		MakerVolume:            m.MakerVolume,
		BaseVault:              m.BaseVault,
		QuoteVault:             m.QuoteVault,
		BaseDepositTotal:       m.BaseDepositTotal,
		QuoteDepositTotal:      m.QuoteDepositTotal,
		OracleA:                m.OracleA.Sentinel(),
		OracleB:                m.OracleB.Sentinel(),
		OracleConfig:           m.OracleConfig,
		Events:                 snap.Events,
		EventSeq:               snap.EventSeq,
	}
	for _, o := range snap.Bids {
		rec.Bids = append(rec.Bids, *o)
	}
	for _, o := range snap.Asks {
		rec.Asks = append(rec.Asks, *o)
	}
	return rec
}

func (rec marketRecord) snapshot() exchange.MarketSnapshot {
	m := &market.Market{
		Address:                rec.Address,
		Name:                   rec.Name,
		BaseDecimals:           rec.BaseDecimals,
		QuoteDecimals:          rec.QuoteDecimals,
		TimeExpiry:             rec.TimeExpiry,
		CollectFeeAdmin:        rec.CollectFeeAdmin,
		OpenOrdersAdmin:        keys.FromSentinel(rec.OpenOrdersAdmin),
		ConsumeEventsAdmin:     keys.FromSentinel(rec.ConsumeEventsAdmin),
		CloseMarketAdmin:       keys.FromSentinel(rec.CloseMarketAdmin),
		QuoteLotSize:           rec.QuoteLotSize,
		BaseLotSize:            rec.BaseLotSize,
		SeqNum:                 rec.SeqNum,
		RegistrationTime:       rec.RegistrationTime,
		MakerFee:               rec.MakerFee,
		TakerFee:               rec.TakerFee,
		FeesAccrued:            rec.FeesAccrued,
		FeesAvailable:          rec.FeesAvailable,
		MakerRebatesOwed:       rec.MakerRebatesOwed,
		ReferrerRebatesAccrued: rec.ReferrerRebatesAccrued,
		MakerVolume:            rec.MakerVolume,
		BaseVault:              rec.BaseVault,
		QuoteVault:             rec.QuoteVault,
		BaseDepositTotal:       rec.BaseDepositTotal,
		QuoteDepositTotal:      rec.QuoteDepositTotal,
		OracleA:                keys.FromSentinel(rec.OracleA),
		OracleB:                keys.FromSentinel(rec.OracleB),
		OracleConfig:           rec.OracleConfig,
	}
	snap := exchange.MarketSnapshot{Meta: m, Events: rec.Events, EventSeq: rec.EventSeq}
	for i := range rec.Bids {
		o := rec.Bids[i]
		snap.Bids = append(snap.Bids, &o)
	}
	for i := range rec.Asks {
		o := rec.Asks[i]
		snap.Asks = append(snap.Asks, &o)
	}
	return snap
}

// openOrdersRecord is the persisted form of one trading account.
type openOrdersRecord struct {
	Address    common.Address   `json:"address"`
	Owner      common.Address   `json:"owner"`
	Delegate   common.Address   `json:"delegate"`
	Market     common.Address   `json:"market"`
	AccountNum uint32           `json:"account_num"`
	Slots      []account.Slot   `json:"slots"`
	Position   account.Position `json:"position"`
}

func newOpenOrdersRecord(acct *account.OpenOrders) openOrdersRecord {
	return openOrdersRecord{
		Address:    acct.Address,
		Owner:      acct.Owner,
		Delegate:   acct.Delegate.Sentinel(),
		Market:     acct.Market,
		AccountNum: acct.AccountNum,
		Slots:      acct.Slots[:],
		Position:   acct.Position,
	}
}

func (rec openOrdersRecord) account() *account.OpenOrders {
	acct := &account.OpenOrders{
		Address:    rec.Address,
		Owner:      rec.Owner,
		Delegate:   keys.FromSentinel(rec.Delegate),
		Market:     rec.Market,
		AccountNum: rec.AccountNum,
		Position:   rec.Position,
	}
	copy(acct.Slots[:], rec.Slots)
	return acct
}
