package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/arena/fault"
)

// Quote is the latest mark for one symbol. Volatility is the per-period
// stddev of returns, e.g. 0.02 for 2%.
type Quote struct {
	Symbol     string
	MarkPrice  float64
	Volatility float64
	Time       time.Time
}

// Source supplies quotes. Implementations must honor ctx.
type Source interface {
	Latest(ctx context.Context, symbol string) (Quote, error)
}

// Fresh returns a stale-quote fault when q is older than maxAge at now.
// A zero maxAge disables the check.
func Fresh(q Quote, maxAge time.Duration, now time.Time) error {
	if maxAge <= 0 {
		return nil
	}
	if age := now.Sub(q.Time); age > maxAge {
		return fault.New(fault.ErrStaleQuote, "%s quote is %s old, max %s", q.Symbol, age.Truncate(time.Millisecond), maxAge)
	}
	return nil
}

const defaultVolLambda = 0.94

// Store is an in-memory Source. Quotes set without a volatility get one
// from an EWMA of the store's own price history.
type Store struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	vars   map[string]float64
	lambda float64
}

var _ Source = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		quotes: make(map[string]Quote),
		vars:   make(map[string]float64),
		lambda: defaultVolLambda,
	}
}

func (s *Store) Set(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.quotes[q.Symbol]
	if ok && prev.MarkPrice > 0 && q.MarkPrice > 0 {
		r := q.MarkPrice/prev.MarkPrice - 1
		s.vars[q.Symbol] = s.lambda*s.vars[q.Symbol] + (1-s.lambda)*r*r
	}
	if q.Volatility == 0 {
		q.Volatility = math.Sqrt(s.vars[q.Symbol])
	}
	s.quotes[q.Symbol] = q
}

func (s *Store) Get(symbol string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("quote for %q not found", symbol)
	}
	return q, nil
}

func (s *Store) Latest(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	q, err := s.Get(symbol)
	if err != nil {
		return Quote{}, fault.Transient(err)
	}
	return q, nil
}

// Symbols lists every symbol with a quote.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.quotes))
	for k := range s.quotes {
		out = append(out, k)
	}
	return out
}
