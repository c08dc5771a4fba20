package cartflow

import (
	"net/url"
	"strings"
)

// ReturnKind classifies what a redirect return URL says about the attempt.
type ReturnKind string

const (
	ReturnIdle    ReturnKind = "idle"
	ReturnSuccess ReturnKind = "success"
	ReturnCancel  ReturnKind = "cancel"
	ReturnError   ReturnKind = "error"
)

// Return is the resolved outcome of coming back from a hosted payment page.
type Return struct {
	Kind      ReturnKind
	OrderID   string
	SessionID string
	Message   string
}

// ResolveReturn parses the query parameters of a redirect return URL into a
// checkout outcome. Payment providers disagree on parameter names, so a
// small tolerant alias set is accepted for each signal; unknown or absent
// parameters resolve to idle.
func ResolveReturn(query url.Values) Return {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := query.Get(k); v != "" {
				return v
			}
		}
		return ""
	}

	ret := Return{
		Kind:      ReturnIdle,
		OrderID:   first("orderId", "order_id", "demoOrderId"),
		SessionID: first("session_id", "checkout_session_id"),
	}

	if msg := first("error", "error_message"); msg != "" {
		ret.Kind = ReturnError
		ret.Message = msg
		return ret
	}

	if flag := strings.ToLower(first("canceled", "cancelled", "cancel")); flag != "" && flag != "0" && flag != "false" {
		ret.Kind = ReturnCancel
		return ret
	}

	switch strings.ToLower(first("status", "checkout")) {
	case "success", "succeeded", "complete", "completed", "paid":
		ret.Kind = ReturnSuccess
		return ret
	case "cancel", "canceled", "cancelled":
		ret.Kind = ReturnCancel
		return ret
	case "error", "failed", "failure":
		ret.Kind = ReturnError
		ret.Message = first("message")
		return ret
	}

	if ret.OrderID != "" {
		ret.Kind = ReturnSuccess
		return ret
	}

	if msg := first("message"); msg != "" {
		ret.Kind = ReturnError
		ret.Message = msg
	}
	return ret
}
