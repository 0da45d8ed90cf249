package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/planthaus/storefront/internal/domain/catalog"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrMissingReference  = errors.New("cart line must reference a plant or a subscription plan")
	ErrAmbiguousLine     = errors.New("cart line cannot reference both a plant and a subscription plan")
	ErrPotOnSubscription = errors.New("subscription line cannot carry a pot")
)

// Kind discriminates the two payload shapes a cart line can carry.
type Kind string

const (
	KindPlant        Kind = "plant"
	KindSubscription Kind = "subscription"
)

// Item is one priced, quantified line in the cart. Exactly one of Plant or
// Plan is populated, matching Kind; Pot is only ever set alongside Plant.
//
// ID is assigned by the remote service. While an optimistic add is in flight
// the engine keys the line by a locally minted provisional id, replaced by
// the server's id on confirmation.
type Item struct {
	ID        string                    `json:"id"`
	Kind      Kind                      `json:"kind"`
	Quantity  int                       `json:"quantity"`
	UnitPrice decimal.Decimal           `json:"unit_price"`
	Plant     *catalog.Plant            `json:"plant,omitempty"`
	Pot       *catalog.Pot              `json:"pot,omitempty"`
	Plan      *catalog.SubscriptionPlan `json:"plan,omitempty"`
}

// Validate checks the line invariants before any state is touched.
func (i Item) Validate() error {
	if i.Quantity < 1 {
		return ErrInvalidQuantity
	}
	switch i.Kind {
	case KindPlant:
		if i.Plant == nil {
			return ErrMissingReference
		}
		if i.Plan != nil {
			return ErrAmbiguousLine
		}
	case KindSubscription:
		if i.Plan == nil {
			return ErrMissingReference
		}
		if i.Plant != nil {
			return ErrAmbiguousLine
		}
		if i.Pot != nil {
			return ErrPotOnSubscription
		}
	default:
		return ErrMissingReference
	}
	return nil
}

// RefID is the catalog id the line resolves against: the plant id for plant
// lines, the plan id for subscription lines.
func (i Item) RefID() int64 {
	if i.Kind == KindSubscription {
		if i.Plan == nil {
			return 0
		}
		return i.Plan.ID
	}
	if i.Plant == nil {
		return 0
	}
	return i.Plant.ID
}

// MergeKey identifies lines that increment each other's quantity instead of
// splitting. Same plant with a different pot selection (or none) is a
// distinct line.
func (i Item) MergeKey() string {
	if i.Kind == KindSubscription {
		return fmt.Sprintf("plan:%d", i.RefID())
	}
	var potID int64
	if i.Pot != nil {
		potID = i.Pot.ID
	}
	return fmt.Sprintf("plant:%d:pot:%d", i.RefID(), potID)
}

// LineTotal is unit price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the ordered line collection for one user session. Order matters:
// a failed remove must restore the line at its original position.
type Cart struct {
	Items []Item
}

// TotalPrice is derived from the current lines on every call; it is never
// stored separately, so readers cannot observe a stale total.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) Len() int {
	return len(c.Items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// IndexOf returns the position of the line with the given id, or -1.
func (c *Cart) IndexOf(id string) int {
	for i, item := range c.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Find returns a pointer into the live line slice, or nil.
func (c *Cart) Find(id string) *Item {
	if i := c.IndexOf(id); i >= 0 {
		return &c.Items[i]
	}
	return nil
}

// FindMerge returns the line a new item with the given merge key would fold
// into, or nil if it would open a new line.
func (c *Cart) FindMerge(key string) *Item {
	for i := range c.Items {
		if c.Items[i].MergeKey() == key {
			return &c.Items[i]
		}
	}
	return nil
}

// Append adds a line at the end.
func (c *Cart) Append(item Item) {
	c.Items = append(c.Items, item)
}

// InsertAt restores a line at a given position, clamping to the current
// bounds so a rollback after concurrent removals cannot panic.
func (c *Cart) InsertAt(pos int, item Item) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(c.Items) {
		pos = len(c.Items)
	}
	c.Items = append(c.Items, Item{})
	copy(c.Items[pos+1:], c.Items[pos:])
	c.Items[pos] = item
}

// Remove deletes the line with the given id, returning the removed line and
// its position so it can be reinserted on rollback.
func (c *Cart) Remove(id string) (Item, int, bool) {
	pos := c.IndexOf(id)
	if pos < 0 {
		return Item{}, -1, false
	}
	item := c.Items[pos]
	c.Items = append(c.Items[:pos], c.Items[pos+1:]...)
	return item, pos, true
}

// Clear drops all lines.
func (c *Cart) Clear() {
	c.Items = nil
}

// Snapshot returns a copy of the line slice safe to hand to listeners.
func (c *Cart) Snapshot() []Item {
	out := make([]Item, len(c.Items))
	copy(out, c.Items)
	return out
}
