package inventory

import (
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"cartflow/cart"
)

// ============================================================================
// Test Helpers
// ============================================================================

type holdRecorder struct {
	mu       sync.Mutex
	expired  []cart.ItemKey
	expiring []cart.ItemKey
}

func (r *holdRecorder) onExpired(key cart.ItemKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, key)
}

func (r *holdRecorder) onExpiring(key cart.ItemKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiring = append(r.expiring, key)
}

func (r *holdRecorder) expiredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expired)
}

func (r *holdRecorder) expiringCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expiring)
}

func heldItem(productID string, holdID string, expiresAt time.Time) cart.LineItem {
	li := lineItem(productID, "", 1)
	li.HoldID = holdID
	li.HoldExpiresAt = &expiresAt
	return li
}

// ============================================================================
// Hold Expiry Tests
// ============================================================================

func TestTickHolds_ExpiringSoonThenExpired(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &holdRecorder{}
	items := []cart.LineItem{heldItem("sku_a", "hold_1", base.Add(90*time.Second))}
	m := NewMonitor(newFakeReader(), cartWith(items...),
		WithExpiryLead(2*time.Minute),
		WithOnHoldExpired(rec.onExpired),
		WithOnHoldExpiring(rec.onExpiring),
	)

	holds := m.TickHolds(base)
	if len(holds.ExpiringSoon) != 1 || len(holds.Expired) != 0 {
		t.Fatalf("expected expiring-soon only, got %+v", holds)
	}
	if rec.expiringCount() != 1 {
		t.Errorf("expected 1 expiring notification, got %d", rec.expiringCount())
	}

	holds = m.TickHolds(base.Add(2 * time.Minute))
	if len(holds.Expired) != 1 || len(holds.ExpiringSoon) != 0 {
		t.Fatalf("expected expired only, got %+v", holds)
	}
	if rec.expiredCount() != 1 {
		t.Errorf("expected 1 expired notification, got %d", rec.expiredCount())
	}
}

func TestTickHolds_ExpiredFiresExactlyOnce(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &holdRecorder{}
	items := []cart.LineItem{heldItem("sku_a", "hold_1", base.Add(-time.Second))}
	m := NewMonitor(newFakeReader(), cartWith(items...), WithOnHoldExpired(rec.onExpired))

	for i := 0; i < 5; i++ {
		holds := m.TickHolds(base.Add(time.Duration(i) * 10 * time.Second))
		// The key stays reported as expired on every tick.
		if len(holds.Expired) != 1 {
			t.Fatalf("tick %d: expected key in expired set, got %+v", i, holds)
		}
	}
	if rec.expiredCount() != 1 {
		t.Errorf("expected callback exactly once across ticks, got %d", rec.expiredCount())
	}
}

func TestTickHolds_RenewalReArmsNotification(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &holdRecorder{}

	var mu sync.Mutex
	expiresAt := base.Add(-time.Second)
	source := func() cart.State {
		mu.Lock()
		defer mu.Unlock()
		return cart.State{Items: []cart.LineItem{heldItem("sku_a", "hold_1", expiresAt)}}
	}
	m := NewMonitor(newFakeReader(), source, WithOnHoldExpired(rec.onExpired))

	m.TickHolds(base)
	m.TickHolds(base.Add(10 * time.Second))
	if rec.expiredCount() != 1 {
		t.Fatalf("expected 1 notification before renewal, got %d", rec.expiredCount())
	}

	// Renew the hold into the future, let it expire again.
	mu.Lock()
	expiresAt = base.Add(5 * time.Minute)
	mu.Unlock()
	holds := m.TickHolds(base.Add(20 * time.Second))
	if len(holds.Expired) != 0 {
		t.Fatalf("renewed hold must not report expired, got %+v", holds)
	}

	m.TickHolds(base.Add(10 * time.Minute))
	if rec.expiredCount() != 2 {
		t.Errorf("expected renewal to re-arm the notification, got %d", rec.expiredCount())
	}
}

func TestTickHolds_RemovalResetsEligibility(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &holdRecorder{}

	var mu sync.Mutex
	items := []cart.LineItem{heldItem("sku_a", "hold_1", base.Add(-time.Second))}
	source := func() cart.State {
		mu.Lock()
		defer mu.Unlock()
		return cart.State{Items: append([]cart.LineItem(nil), items...)}
	}
	m := NewMonitor(newFakeReader(), source, WithOnHoldExpired(rec.onExpired))

	m.TickHolds(base)

	// Remove the item, then add it back with an already-expired hold.
	mu.Lock()
	items = nil
	mu.Unlock()
	m.TickHolds(base.Add(10 * time.Second))

	mu.Lock()
	items = []cart.LineItem{heldItem("sku_a", "hold_2", base.Add(-time.Second))}
	mu.Unlock()
	m.TickHolds(base.Add(20 * time.Second))

	if rec.expiredCount() != 2 {
		t.Errorf("expected re-added item to notify again, got %d", rec.expiredCount())
	}
}

func TestTickHolds_IgnoresItemsWithoutHolds(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(newFakeReader(), cartWith(lineItem("sku_plain", "", 1)))

	holds := m.TickHolds(base)
	if len(holds.ExpiringSoon) != 0 || len(holds.Expired) != 0 {
		t.Errorf("expected empty hold state, got %+v", holds)
	}
}

func TestTickHolds_ExpiringNotifiesOnEntryOnly(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &holdRecorder{}
	items := []cart.LineItem{heldItem("sku_a", "hold_1", base.Add(90*time.Second))}
	m := NewMonitor(newFakeReader(), cartWith(items...),
		WithExpiryLead(2*time.Minute),
		WithOnHoldExpiring(rec.onExpiring),
	)

	m.TickHolds(base)
	m.TickHolds(base.Add(10 * time.Second))
	m.TickHolds(base.Add(20 * time.Second))
	if rec.expiringCount() != 1 {
		t.Errorf("expected a single expiring notification while in window, got %d", rec.expiringCount())
	}
}

// ============================================================================
// Property Tests
// ============================================================================

// Across any tick sequence, a hold that never changes notifies expiry at
// most once.
func TestProperty_HoldExpiryAtMostOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		expiresAfter := time.Duration(rapid.IntRange(1, 300).Draw(t, "expiresAfter")) * time.Second

		rec := &holdRecorder{}
		items := []cart.LineItem{heldItem("sku_a", "hold_1", base.Add(expiresAfter))}
		m := NewMonitor(newFakeReader(), cartWith(items...), WithOnHoldExpired(rec.onExpired))

		ticks := rapid.IntRange(1, 20).Draw(t, "ticks")
		at := base
		for i := 0; i < ticks; i++ {
			at = at.Add(time.Duration(rapid.IntRange(0, 60).Draw(t, "step")) * time.Second)
			m.TickHolds(at)
		}

		if rec.expiredCount() > 1 {
			t.Fatalf("hold notified %d times", rec.expiredCount())
		}
	})
}
