package agent

import (
	"math"
	"sort"

	"github.com/rustyeddy/arena/order"
)

type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

const sizeEpsilon = 1e-9

type Position struct {
	Symbol     string
	Side       PositionSide
	Size       float64
	EntryPrice float64
	MarkPrice  float64
}

// Signed is Size with the sign of the side.
func (p Position) Signed() float64 {
	if p.Side == Short {
		return -p.Size
	}
	return p.Size
}

func (p Position) Notional() float64 {
	return p.Size * p.MarkPrice
}

func (p Position) UnrealizedPnL() float64 {
	return p.Signed() * (p.MarkPrice - p.EntryPrice)
}

// Book holds an account's net positions by symbol.
type Book map[string]*Position

// Apply folds a fill into the book and returns the realized P&L of any
// reduced exposure. A position that reaches zero is removed; a fill larger
// than the open size flips the side.
func (b Book) Apply(symbol string, side order.Side, qty, price float64) float64 {
	if qty <= 0 {
		return 0
	}
	p, ok := b[symbol]
	if !ok {
		b[symbol] = &Position{Symbol: symbol, Side: sideOf(side), Size: qty, EntryPrice: price, MarkPrice: price}
		return 0
	}
	p.MarkPrice = price

	if sideOf(side) == p.Side {
		p.EntryPrice = (p.EntryPrice*p.Size + price*qty) / (p.Size + qty)
		p.Size += qty
		return 0
	}

	closing := math.Min(qty, p.Size)
	realized := closing * (price - p.EntryPrice)
	if p.Side == Short {
		realized = -realized
	}

	rest := qty - closing
	p.Size -= closing
	switch {
	case rest > sizeEpsilon:
		p.Side = sideOf(side)
		p.Size = rest
		p.EntryPrice = price
	case p.Size <= sizeEpsilon:
		delete(b, symbol)
	}
	return realized
}

// Mark revalues symbol at price.
func (b Book) Mark(symbol string, price float64) {
	if p, ok := b[symbol]; ok && price > 0 {
		p.MarkPrice = price
	}
}

func (b Book) Notional() float64 {
	var n float64
	for _, p := range b {
		n += p.Notional()
	}
	return n
}

func (b Book) UnrealizedPnL() float64 {
	var u float64
	for _, p := range b {
		u += p.UnrealizedPnL()
	}
	return u
}

// Signed returns the signed size held in symbol, 0 when flat.
func (b Book) Signed(symbol string) float64 {
	if p, ok := b[symbol]; ok {
		return p.Signed()
	}
	return 0
}

// List returns copies sorted by symbol.
func (b Book) List() []Position {
	out := make([]Position, 0, len(b))
	for _, p := range b {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b Book) Clone() Book {
	cp := make(Book, len(b))
	for k, p := range b {
		v := *p
		cp[k] = &v
	}
	return cp
}

// BookOf builds a Book from a position list.
func BookOf(ps []Position) Book {
	b := make(Book, len(ps))
	for _, p := range ps {
		v := p
		b[p.Symbol] = &v
	}
	return b
}

func sideOf(s order.Side) PositionSide {
	if s == order.Sell {
		return Short
	}
	return Long
}
