package inventory

import (
	"context"
	"time"

	"cartflow/cart"
	"cartflow/event"
)

// TickHolds computes the hold-expiry countdowns for every cart line item
// carrying both a hold ID and an expiry timestamp.
//
// The expiry callback fires exactly once per tracked item until its key
// drops out of the tracked set or its hold is renewed into the future;
// either resets eligibility, so a renewed hold that expires again notifies
// again.
func (m *Monitor) TickHolds(now time.Time) HoldState {
	state := m.source()

	type trackedHold struct {
		key       cart.ItemKey
		remaining time.Duration
	}
	tracked := make([]trackedHold, 0, len(state.Items))
	trackedKeys := make(map[cart.ItemKey]struct{}, len(state.Items))
	for _, li := range state.Items {
		if li.HoldID == "" || li.HoldExpiresAt == nil {
			continue
		}
		key := li.Key()
		trackedKeys[key] = struct{}{}
		tracked = append(tracked, trackedHold{key: key, remaining: li.HoldExpiresAt.Sub(now)})
	}

	m.mu.Lock()
	// Prune the fired set: forget anything no longer tracked, and anything
	// whose hold was renewed into the future.
	for key := range m.fired {
		if _, ok := trackedKeys[key]; !ok {
			delete(m.fired, key)
		}
	}
	for _, h := range tracked {
		if h.remaining > 0 {
			delete(m.fired, h.key)
		}
	}

	holds := HoldState{}
	var toNotifyExpired []cart.ItemKey
	var toNotifyExpiring []cart.ItemKey

	expiringSoon := make(map[cart.ItemKey]struct{})
	expired := make(map[cart.ItemKey]struct{})
	for _, h := range tracked {
		switch {
		case h.remaining <= 0:
			expired[h.key] = struct{}{}
			holds.Expired = append(holds.Expired, h.key)
			if _, done := m.fired[h.key]; !done {
				m.fired[h.key] = struct{}{}
				toNotifyExpired = append(toNotifyExpired, h.key)
			}
		case h.remaining <= m.expiryLead:
			expiringSoon[h.key] = struct{}{}
			holds.ExpiringSoon = append(holds.ExpiringSoon, h.key)
			if _, already := m.expiringSoon[h.key]; !already {
				toNotifyExpiring = append(toNotifyExpiring, h.key)
			}
		}
	}
	m.expiringSoon = expiringSoon
	m.expired = expired
	m.mu.Unlock()

	ctx := context.Background()
	for _, key := range toNotifyExpiring {
		m.metrics.HoldExpiring()
		m.bus.Publish(ctx, event.New(event.TypeHoldExpiring).WithItem(key.ProductID, key.VariantID))
		if m.onExpiring != nil {
			m.onExpiring(key)
		}
	}
	for _, key := range toNotifyExpired {
		m.metrics.HoldExpired()
		m.bus.Publish(ctx, event.New(event.TypeHoldExpired).WithItem(key.ProductID, key.VariantID))
		if m.onExpired != nil {
			m.onExpired(key)
		}
	}

	return holds
}

// Holds returns the current expiring-soon and expired key sets as of the
// last tick.
func (m *Monitor) Holds() HoldState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := HoldState{}
	for key := range m.expiringSoon {
		out.ExpiringSoon = append(out.ExpiringSoon, key)
	}
	for key := range m.expired {
		out.Expired = append(out.Expired, key)
	}
	return out
}
