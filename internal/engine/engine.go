// Package engine owns the client-side mirror of the user's cart. Mutations
// are applied optimistically so the UI reflects them with no perceptible
// latency, then reconciled against the remote cart service; on remote
// failure the local change is rolled back and the error surfaced to the
// caller. Each line follows Idle -> OptimisticallyApplied -> Confirmed or
// RolledBack, and only one mutation per line may be in flight at a time.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/planthaus/storefront/internal/domain/cart"
	"github.com/planthaus/storefront/internal/domain/catalog"
)

// CartService is the remote side of the reconciliation protocol. The server
// is authoritative for line ids and unit prices.
type CartService interface {
	FetchCart(ctx context.Context) ([]cart.Item, error)
	// AddLine creates or increments the remote line matching item; amount is
	// the quantity delta. It returns the authoritative line id and unit price.
	AddLine(ctx context.Context, item cart.Item, amount int) (lineID string, unitPrice decimal.Decimal, err error)
	UpdateLineQuantity(ctx context.Context, item cart.Item, amount int) error
	RemoveLine(ctx context.Context, lineID string) error
}

// State describes the engine's knowledge of the remote cart. Unknown is
// distinct from "known empty": views should show a loading affordance, not
// "cart is empty", until the first fetch resolves.
type State int

const (
	StateUnknown State = iota
	StateReady
	StateDegraded
)

// Listener is invoked with a cart snapshot after every observable change,
// optimistic ones included, so every view reads the same cart instance.
type Listener func(items []cart.Item)

type Engine struct {
	remote CartService
	log    *zap.Logger

	loadGroup singleflight.Group

	mu         sync.Mutex
	cart       cart.Cart
	state      State
	loadFailed bool
	inflight   map[string]struct{}
	listeners  []Listener
}

func New(remote CartService, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		remote:   remote,
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// Load fetches the authoritative cart once per session. Concurrent callers
// share one fetch. On failure the engine serves an empty cart, flags the
// degradation and returns ErrCartUnavailable; calling Load again retries.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateReady {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	_, err, _ := e.loadGroup.Do("load", func() (interface{}, error) {
		items, err := e.remote.FetchCart(ctx)
		e.mu.Lock()
		if err != nil {
			e.cart.Clear()
			e.state = StateDegraded
			e.loadFailed = true
		} else {
			e.cart.Items = items
			e.state = StateReady
			e.loadFailed = false
		}
		snap, listeners := e.snapshotLocked()
		e.mu.Unlock()
		e.fire(snap, listeners)
		return nil, err
	})
	if err != nil {
		e.log.Warn("cart fetch failed, serving empty cart", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return nil
}

// AddPlant appends a plant line, or increments an existing line with the
// same plant and pot selection. A different pot opens a distinct line.
func (e *Engine) AddPlant(ctx context.Context, plant catalog.Plant, pot *catalog.Pot, quantity int) error {
	return e.addItem(ctx, cart.Item{
		Kind:      cart.KindPlant,
		UnitPrice: plant.Price,
		Plant:     &plant,
		Pot:       pot,
	}, quantity)
}

// AddSubscription appends a subscription-plan line, or increments an
// existing line for the same plan.
func (e *Engine) AddSubscription(ctx context.Context, plan catalog.SubscriptionPlan, quantity int) error {
	return e.addItem(ctx, cart.Item{
		Kind:      cart.KindSubscription,
		UnitPrice: plan.Price,
		Plan:      &plan,
	}, quantity)
}

func (e *Engine) addItem(ctx context.Context, item cart.Item, amount int) error {
	item.Quantity = amount
	if err := item.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	var (
		lineID  string
		merged  bool
		prevQty int
		line    cart.Item
	)
	if existing := e.cart.FindMerge(item.MergeKey()); existing != nil {
		if e.busyLocked(existing.ID) {
			e.mu.Unlock()
			return &MutationError{Op: OpAdd, LineID: existing.ID, Err: ErrLineBusy}
		}
		merged = true
		prevQty = existing.Quantity
		existing.Quantity += amount
		lineID = existing.ID
		line = *existing
	} else {
		item.ID = uuid.NewString() // provisional until the server confirms
		lineID = item.ID
		e.cart.Append(item)
		line = item
	}
	e.inflight[lineID] = struct{}{}
	snap, listeners := e.snapshotLocked()
	e.mu.Unlock()
	e.fire(snap, listeners)

	serverID, unitPrice, err := e.remote.AddLine(ctx, line, amount)

	e.mu.Lock()
	delete(e.inflight, lineID)
	if err != nil {
		if merged {
			if l := e.cart.Find(lineID); l != nil {
				l.Quantity = prevQty
			}
		} else {
			e.cart.Remove(lineID)
		}
		snap, listeners := e.snapshotLocked()
		e.mu.Unlock()
		e.fire(snap, listeners)
		e.log.Warn("add rolled back", zap.String("line_id", lineID), zap.Error(err))
		return &MutationError{Op: OpAdd, LineID: lineID, Err: err}
	}
	if l := e.cart.Find(lineID); l != nil {
		if serverID != "" {
			l.ID = serverID
		}
		l.UnitPrice = unitPrice
	}
	snap, listeners = e.snapshotLocked()
	e.mu.Unlock()
	e.fire(snap, listeners)
	return nil
}

// UpdateQuantity sets a line's quantity optimistically and reconciles with
// the remote service, restoring the previous quantity on failure. A target
// of zero or less routes to RemoveItem.
func (e *Engine) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity < 1 {
		return e.RemoveItem(ctx, lineID)
	}

	e.mu.Lock()
	l := e.cart.Find(lineID)
	if l == nil {
		e.mu.Unlock()
		return &MutationError{Op: OpUpdate, LineID: lineID, Err: ErrLineNotFound}
	}
	if e.busyLocked(lineID) {
		e.mu.Unlock()
		return &MutationError{Op: OpUpdate, LineID: lineID, Err: ErrLineBusy}
	}
	prevQty := l.Quantity
	l.Quantity = quantity
	line := *l
	e.inflight[lineID] = struct{}{}
	snap, listeners := e.snapshotLocked()
	e.mu.Unlock()
	e.fire(snap, listeners)

	err := e.remote.UpdateLineQuantity(ctx, line, quantity)

	e.mu.Lock()
	delete(e.inflight, lineID)
	if err != nil {
		if l := e.cart.Find(lineID); l != nil {
			l.Quantity = prevQty
		}
		snap, listeners := e.snapshotLocked()
		e.mu.Unlock()
		e.fire(snap, listeners)
		e.log.Warn("quantity update rolled back", zap.String("line_id", lineID), zap.Error(err))
		return &MutationError{Op: OpUpdate, LineID: lineID, Err: err}
	}
	e.mu.Unlock()
	return nil
}

// RemoveItem deletes a line optimistically. On remote failure the line is
// reinserted at its original position, not at the end, so a failed delete
// never scrambles the user's cart ordering.
func (e *Engine) RemoveItem(ctx context.Context, lineID string) error {
	e.mu.Lock()
	if e.busyLocked(lineID) {
		e.mu.Unlock()
		return &MutationError{Op: OpRemove, LineID: lineID, Err: ErrLineBusy}
	}
	removed, pos, ok := e.cart.Remove(lineID)
	if !ok {
		e.mu.Unlock()
		return &MutationError{Op: OpRemove, LineID: lineID, Err: ErrLineNotFound}
	}
	e.inflight[lineID] = struct{}{}
	snap, listeners := e.snapshotLocked()
	e.mu.Unlock()
	e.fire(snap, listeners)

	err := e.remote.RemoveLine(ctx, lineID)

	e.mu.Lock()
	delete(e.inflight, lineID)
	if err != nil {
		e.cart.InsertAt(pos, removed)
		snap, listeners := e.snapshotLocked()
		e.mu.Unlock()
		e.fire(snap, listeners)
		e.log.Warn("remove rolled back", zap.String("line_id", lineID), zap.Error(err))
		return &MutationError{Op: OpRemove, LineID: lineID, Err: err}
	}
	e.mu.Unlock()
	return nil
}

// Items returns a snapshot of the current lines.
func (e *Engine) Items() []cart.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Snapshot()
}

// TotalPrice is recomputed from the current lines on every call.
func (e *Engine) TotalPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.TotalPrice()
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Len()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LoadFailed reports whether the engine is serving a degraded empty cart
// because the initial fetch failed.
func (e *Engine) LoadFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadFailed
}

// Reset drops the local mirror. Called after a successful checkout, where
// the backend consumes the cart as part of order placement, and at logout.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cart.Clear()
	e.state = StateReady
	e.loadFailed = false
	snap, listeners := e.snapshotLocked()
	e.mu.Unlock()
	e.fire(snap, listeners)
}

// OnChange registers a listener for cart snapshots. Navbar badge, cart page
// and checkout page all subscribe here and observe the same instance.
func (e *Engine) OnChange(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) busyLocked(lineID string) bool {
	_, busy := e.inflight[lineID]
	return busy
}

func (e *Engine) snapshotLocked() ([]cart.Item, []Listener) {
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	return e.cart.Snapshot(), listeners
}

func (e *Engine) fire(items []cart.Item, listeners []Listener) {
	for _, fn := range listeners {
		fn(items)
	}
}
