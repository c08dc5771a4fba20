package cartflow

import "cartflow/cart"

// Level is a field-collection requirement level.
type Level string

const (
	LevelNone     Level = "none"
	LevelOptional Level = "optional"
	LevelRequired Level = "required"
)

var levelRank = map[Level]int{
	LevelNone:     0,
	LevelOptional: 1,
	LevelRequired: 2,
}

// Max returns the higher of the two levels. Unknown levels rank as none.
func (l Level) Max(other Level) Level {
	if levelRank[other] > levelRank[l] {
		return other
	}
	return l
}

// Line-item metadata keys read by requirements derivation. Values are
// requirement levels; delivery is "digital" or "physical" (missing means
// physical).
const (
	MetaCollectEmail    = "collect_email"
	MetaCollectName     = "collect_name"
	MetaCollectPhone    = "collect_phone"
	MetaCollectShipping = "collect_shipping"
	MetaCollectBilling  = "collect_billing"
	MetaDelivery        = "delivery"

	DeliveryDigital  = "digital"
	DeliveryPhysical = "physical"
)

// Requirements is the effective set of checkout collection levels for the
// whole cart.
type Requirements struct {
	Email           Level
	Name            Level
	Phone           Level
	ShippingAddress Level
	BillingAddress  Level
}

// DeriveRequirements computes the effective checkout requirements from the
// cart's contents. Each item's metadata raises the per-field level to the
// maximum demanded by any item. Email is always at least required. A cart
// of exclusively digital-delivery items never collects a shipping address,
// regardless of per-item flags.
func DeriveRequirements(s cart.State) Requirements {
	req := Requirements{
		Email:           LevelRequired,
		Name:            LevelNone,
		Phone:           LevelNone,
		ShippingAddress: LevelNone,
		BillingAddress:  LevelNone,
	}

	digitalOnly := len(s.Items) > 0
	for _, li := range s.Items {
		if li.Metadata[MetaDelivery] != DeliveryDigital {
			digitalOnly = false
		}
		req.Email = req.Email.Max(metaLevel(li.Metadata, MetaCollectEmail))
		req.Name = req.Name.Max(metaLevel(li.Metadata, MetaCollectName))
		req.Phone = req.Phone.Max(metaLevel(li.Metadata, MetaCollectPhone))
		req.ShippingAddress = req.ShippingAddress.Max(metaLevel(li.Metadata, MetaCollectShipping))
		req.BillingAddress = req.BillingAddress.Max(metaLevel(li.Metadata, MetaCollectBilling))
	}

	if digitalOnly {
		req.ShippingAddress = LevelNone
	}

	return req
}

func metaLevel(metadata map[string]string, key string) Level {
	switch Level(metadata[key]) {
	case LevelOptional:
		return LevelOptional
	case LevelRequired:
		return LevelRequired
	default:
		return LevelNone
	}
}
