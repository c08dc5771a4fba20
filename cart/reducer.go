package cart

import (
	"math"
	"time"
)

// Action is a cart state transition. The set of actions is closed; Apply
// fails loudly on anything else.
type Action interface {
	name() string
}

// Hydrate replaces the state wholesale. Used for loading from storage and
// for applying a local/server merge result.
type Hydrate struct {
	State State
}

// Add appends a new line item, or increments the quantity of the existing
// item with the same identity key.
type Add struct {
	Item LineItem
	Qty  float64
}

// Remove drops the item with the given identity key.
type Remove struct {
	ProductID string
	VariantID string
}

// SetQty replaces the quantity of the matching item. A clamped quantity of
// zero behaves like Remove.
type SetQty struct {
	ProductID string
	VariantID string
	Qty       float64
}

// Clear resets the cart to empty items and no promo code.
type Clear struct{}

// SetPromoCode replaces the promo code; an empty code clears it.
type SetPromoCode struct {
	Code string
}

// UpdateHold attaches or refreshes hold metadata on the matching item
// without touching quantity or price.
type UpdateHold struct {
	ProductID string
	VariantID string
	HoldID    string
	ExpiresAt time.Time
}

func (Hydrate) name() string      { return "hydrate" }
func (Add) name() string          { return "add" }
func (Remove) name() string       { return "remove" }
func (SetQty) name() string       { return "set_qty" }
func (Clear) name() string        { return "clear" }
func (SetPromoCode) name() string { return "set_promo_code" }
func (UpdateHold) name() string   { return "update_hold" }

// ClampQty coerces a requested quantity to a positive integer: non-finite
// and non-positive values become 1, fractional values round down.
func ClampQty(qty float64) int {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 1
	}
	n := int(math.Floor(qty))
	if n < 1 {
		return 1
	}
	return n
}

// Apply is the pure cart reducer: it returns a fresh state for the given
// action and never mutates its input. Unknown actions return ErrUnknownAction.
func Apply(state State, action Action) (State, error) {
	switch act := action.(type) {
	case Hydrate:
		return normalize(act.State), nil

	case Add:
		next := state.Clone()
		item := act.Item.clone()
		qty := ClampQty(act.Qty)
		if idx := next.Find(item.ProductID, item.VariantID); idx >= 0 {
			next.Items[idx].Qty += qty
			return next, nil
		}
		item.Qty = qty
		next.Items = append(next.Items, item)
		return next, nil

	case Remove:
		next := state.Clone()
		next.Items = removeKey(next.Items, ItemKey{ProductID: act.ProductID, VariantID: act.VariantID})
		return next, nil

	case SetQty:
		if !math.IsNaN(act.Qty) && !math.IsInf(act.Qty, 0) && math.Floor(act.Qty) <= 0 {
			return Apply(state, Remove{ProductID: act.ProductID, VariantID: act.VariantID})
		}
		next := state.Clone()
		if idx := next.Find(act.ProductID, act.VariantID); idx >= 0 {
			next.Items[idx].Qty = ClampQty(act.Qty)
		}
		return next, nil

	case Clear:
		return State{}, nil

	case SetPromoCode:
		next := state.Clone()
		next.PromoCode = act.Code
		return next, nil

	case UpdateHold:
		next := state.Clone()
		if idx := next.Find(act.ProductID, act.VariantID); idx >= 0 {
			expiresAt := act.ExpiresAt
			next.Items[idx].HoldID = act.HoldID
			next.Items[idx].HoldExpiresAt = &expiresAt
		}
		return next, nil

	default:
		return state, ErrUnknownAction
	}
}

// normalize deep-copies a hydrated state and restores the line-item
// invariants: items with non-positive quantities are dropped, and duplicate
// keys are collapsed by summing quantities, keeping the first occurrence's
// snapshot fields.
func normalize(s State) State {
	out := State{PromoCode: s.PromoCode}
	index := make(map[ItemKey]int, len(s.Items))
	for _, li := range s.Items {
		if li.Qty < 1 {
			continue
		}
		item := li.clone()
		if idx, ok := index[item.Key()]; ok {
			out.Items[idx].Qty += item.Qty
			continue
		}
		index[item.Key()] = len(out.Items)
		out.Items = append(out.Items, item)
	}
	return out
}

func removeKey(items []LineItem, key ItemKey) []LineItem {
	out := items[:0]
	for _, li := range items {
		if li.Key() != key {
			out = append(out, li)
		}
	}
	return out
}
