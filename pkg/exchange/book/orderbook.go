package book

// Orderbook pairs the two sides of one market.
type Orderbook struct {
	Bids *BookSide
	Asks *BookSide
}

// NewOrderbook creates empty sides with a shared per-side capacity.
func NewOrderbook(capacityPerSide int) *Orderbook {
	return &Orderbook{
		Bids: NewBookSide(Bid, capacityPerSide),
		Asks: NewBookSide(Ask, capacityPerSide),
	}
}

// SideOf returns the book side holding orders of side s.
func (o *Orderbook) SideOf(s Side) *BookSide {
	if s == Bid {
		return o.Bids
	}
	return o.Asks
}

// OpposingSide returns the side an incoming order of side s matches against.
func (o *Orderbook) OpposingSide(s Side) *BookSide {
	return o.SideOf(s.Opposite())
}
