package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/watch"
)

var (
	// ErrInvalidHolding is returned for holdings with a missing symbol or
	// non-positive quantity or negative price.
	ErrInvalidHolding = errors.New("invalid holding")

	// ErrHoldingNotFound is returned when no holding has the requested ID.
	ErrHoldingNotFound = errors.New("holding not found")
)

// Repository persists holdings. Implemented by *database.HoldingRepository.
type Repository interface {
	List(ctx context.Context) ([]model.Holding, error)
	Insert(ctx context.Context, h model.Holding) error
	Update(ctx context.Context, h model.Holding) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Watcher subscribes to price changes. Implemented by *watch.Registry.
type Watcher interface {
	Watch(symbol string, fn watch.PriceFunc) error
	Unwatch(symbol string)
}

// ProfileSource looks up company details for new holdings.
type ProfileSource interface {
	GetProfile(ctx context.Context, symbol string) (*model.Profile, error)
}

// Observer receives every price change the service applies.
type Observer interface {
	OnPrice(update model.PriceUpdate)
}

// ObserverFunc is a function adapter for Observer.
type ObserverFunc func(model.PriceUpdate)

func (f ObserverFunc) OnPrice(u model.PriceUpdate) {
	f(u)
}

// NewHolding is the input for Add.
type NewHolding struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	BuyPrice decimal.Decimal `json:"buy_price"`
}

// HoldingUpdate is the input for Update. Nil fields are left unchanged.
type HoldingUpdate struct {
	Name     *string          `json:"name,omitempty"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	BuyPrice *decimal.Decimal `json:"buy_price,omitempty"`
}

// Service manages holdings and their live prices.
type Service struct {
	repo     Repository
	watcher  Watcher
	profiles ProfileSource
	logger   *slog.Logger
	now      func() time.Time

	// opMu serialises Load, Add, Update and Delete. Price callbacks never
	// take it, so it may be held across Watch and Unwatch.
	opMu sync.Mutex

	mu        sync.RWMutex
	holdings  map[uuid.UUID]*model.Holding
	watched   map[string]bool
	latest    map[string]model.PriceUpdate
	observers []Observer
}

// Option configures a Service.
type Option func(*Service)

// WithProfiles sets the source used to fill in names for new holdings.
func WithProfiles(p ProfileSource) Option {
	return func(s *Service) {
		s.profiles = p
	}
}

// WithObserver registers an observer for price changes.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observers = append(s.observers, o)
	}
}

// NewService creates a new Service.
func NewService(repo Repository, watcher Watcher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		watcher:  watcher,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		holdings: make(map[uuid.UUID]*model.Holding),
		watched:  make(map[string]bool),
		latest:   make(map[string]model.PriceUpdate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers an observer for price changes.
func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Load replaces the in-memory holdings with the repository's and watches
// their symbols. A symbol that cannot be watched is logged and its holdings
// are kept at their stored price.
func (s *Service) Load(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	list, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}

	var symbols []string
	held := make(map[string]bool)

	s.mu.Lock()
	s.holdings = make(map[uuid.UUID]*model.Holding, len(list))
	for i := range list {
		h := list[i]
		s.holdings[h.ID] = &h
		if !held[h.Symbol] {
			held[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}
	var stale []string
	for sym := range s.watched {
		if !held[sym] {
			delete(s.watched, sym)
			delete(s.latest, sym)
			stale = append(stale, sym)
		}
	}
	s.mu.Unlock()

	for _, sym := range stale {
		s.watcher.Unwatch(sym)
	}
	for _, sym := range symbols {
		if err := s.retain(sym); err != nil {
			s.logger.Warn("cannot watch held symbol",
				"symbol", sym,
				"err", err,
			)
		}
	}

	s.logger.Info("holdings loaded",
		"holdings", len(list),
		"symbols", len(s.Symbols()),
	)
	return nil
}

// Add validates and stores a new holding and starts watching its symbol.
// The holding's current price starts at its buy price until the first quote.
func (s *Service) Add(ctx context.Context, in NewHolding) (model.Holding, error) {
	symbol := model.NormalizeSymbol(in.Symbol)
	if err := validate(symbol, in.Quantity, in.BuyPrice); err != nil {
		return model.Holding{}, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	name := in.Name
	if name == "" && s.profiles != nil {
		if p, err := s.profiles.GetProfile(ctx, symbol); err != nil {
			s.logger.Debug("profile lookup failed", "symbol", symbol, "err", err)
		} else {
			name = p.Name
		}
	}

	now := s.now()
	h := model.Holding{
		ID:           uuid.New(),
		Symbol:       symbol,
		Name:         name,
		Quantity:     in.Quantity,
		BuyPrice:     in.BuyPrice,
		CurrentPrice: in.BuyPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.RLock()
	if last, ok := s.latest[symbol]; ok {
		h.CurrentPrice = last.Price
	}
	s.mu.RUnlock()

	if err := s.retain(symbol); err != nil {
		return model.Holding{}, err
	}
	if err := s.repo.Insert(ctx, h); err != nil {
		s.releaseIfUnused(symbol)
		return model.Holding{}, err
	}

	s.mu.Lock()
	s.holdings[h.ID] = &h
	s.mu.Unlock()

	s.logger.Info("holding added",
		"id", h.ID,
		"symbol", symbol,
		"quantity", h.Quantity,
	)
	return h, nil
}

// Update changes a holding's name, quantity or buy price.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in HoldingUpdate) (model.Holding, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	cur, ok := s.holdings[id]
	var h model.Holding
	if ok {
		h = *cur
	}
	s.mu.RUnlock()
	if !ok {
		return model.Holding{}, ErrHoldingNotFound
	}

	if in.Name != nil {
		h.Name = *in.Name
	}
	if in.Quantity != nil {
		h.Quantity = *in.Quantity
	}
	if in.BuyPrice != nil {
		h.BuyPrice = *in.BuyPrice
	}
	if err := validate(h.Symbol, h.Quantity, h.BuyPrice); err != nil {
		return model.Holding{}, err
	}
	h.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, h); err != nil {
		return model.Holding{}, err
	}

	s.mu.Lock()
	// CurrentPrice may have moved while the repository call ran.
	if cur, ok := s.holdings[id]; ok {
		h.CurrentPrice = cur.CurrentPrice
	}
	s.holdings[id] = &h
	s.mu.Unlock()

	return h, nil
}

// Delete removes a holding and stops watching its symbol if no other holding
// uses it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	h, ok := s.holdings[id]
	s.mu.RUnlock()
	if !ok {
		return ErrHoldingNotFound
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.holdings, id)
	symbol := h.Symbol
	s.mu.Unlock()

	s.releaseIfUnused(symbol)
	s.logger.Info("holding deleted", "id", id, "symbol", symbol)
	return nil
}

// Get returns one holding.
func (s *Service) Get(id uuid.UUID) (model.Holding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[id]
	if !ok {
		return model.Holding{}, false
	}
	return *h, true
}

// Holdings returns every holding, oldest first.
func (s *Service) Holdings() []model.Holding {
	s.mu.RLock()
	out := make([]model.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, *h)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Metrics computes portfolio metrics over the current holdings.
func (s *Service) Metrics() Metrics {
	return ComputeMetrics(s.Holdings())
}

// IsTracked reports whether symbol is held and being watched.
func (s *Service) IsTracked(symbol string) bool {
	symbol = model.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watched[symbol]
}

// Symbols returns the watched symbols in sorted order.
func (s *Service) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.watched))
	for sym := range s.watched {
		out = append(out, sym)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Latest returns the most recent price change seen for each of symbols.
func (s *Service) Latest(_ context.Context, symbols []string) (map[string]model.PriceUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.PriceUpdate, len(symbols))
	for _, sym := range symbols {
		sym = model.NormalizeSymbol(sym)
		if u, ok := s.latest[sym]; ok {
			out[sym] = u
		}
	}
	return out, nil
}

// onPrice applies a price change to every holding of the symbol and notifies
// observers. It runs on the dispatcher goroutine.
func (s *Service) onPrice(update model.PriceUpdate) {
	s.mu.Lock()
	for _, h := range s.holdings {
		if h.Symbol == update.Symbol {
			h.CurrentPrice = update.Price
		}
	}
	s.latest[update.Symbol] = update
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnPrice(update)
	}
}

// retain watches symbol unless it is already watched. A symbol whose watch
// failed earlier is retried. Callers hold opMu.
func (s *Service) retain(symbol string) error {
	s.mu.RLock()
	watched := s.watched[symbol]
	s.mu.RUnlock()
	if watched {
		return nil
	}

	if err := s.watcher.Watch(symbol, s.onPrice); err != nil {
		return fmt.Errorf("watch %s: %w", symbol, err)
	}

	s.mu.Lock()
	s.watched[symbol] = true
	s.mu.Unlock()
	return nil
}

// releaseIfUnused unwatches symbol once no holding uses it.
// Callers hold opMu and must not hold mu: Unwatch waits for in-flight
// callbacks, which take mu.
func (s *Service) releaseIfUnused(symbol string) {
	s.mu.Lock()
	for _, h := range s.holdings {
		if h.Symbol == symbol {
			s.mu.Unlock()
			return
		}
	}
	unwatch := s.watched[symbol]
	delete(s.watched, symbol)
	delete(s.latest, symbol)
	s.mu.Unlock()

	if unwatch {
		s.watcher.Unwatch(symbol)
	}
}

func validate(symbol string, quantity, buyPrice decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidHolding)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidHolding)
	}
	if buyPrice.IsNegative() {
		return fmt.Errorf("%w: buy price cannot be negative", ErrInvalidHolding)
	}
	return nil
}
