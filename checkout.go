// Package cartflow orchestrates client-side checkout: it validates form
// values against requirements derived from the cart, optionally re-verifies
// inventory, creates a payment session through a pluggable backend adapter,
// and tracks the attempt through an explicit state machine.
package cartflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cartflow/backend"
	"cartflow/cart"
	"cartflow/dedup"
	"cartflow/event"
	"cartflow/inventory"
	"cartflow/metrics"
	"cartflow/tracing"
)

// DefaultSessionWindow is the completion window for the internal
// session-call deduplicator.
const DefaultSessionWindow = 2 * time.Second

// Redirector performs the browser handoff for redirect-kind sessions.
type Redirector interface {
	Redirect(url string)
}

// ResultCode classifies the outcome of one Submit call.
type ResultCode string

const (
	// ResultInProgress means another attempt is already running; nothing
	// was validated and the backend was not called.
	ResultInProgress ResultCode = "in_progress"
	// ResultInvalid means field validation failed.
	ResultInvalid ResultCode = "invalid"
	// ResultInventoryConflict means a line item became unavailable or
	// insufficient; remediation is offered instead of a hard failure.
	ResultInventoryConflict ResultCode = "inventory_conflict"
	// ResultRedirect means a redirect-kind session was created and the
	// buyer is being handed off.
	ResultRedirect ResultCode = "redirect"
	// ResultSuccess means a custom-kind session completed in-page.
	ResultSuccess ResultCode = "success"
	// ResultError means the backend call failed.
	ResultError ResultCode = "error"
)

// Result is the outcome of one Submit call.
type Result struct {
	Code    ResultCode
	Status  Status
	Message string

	// FieldErrors is set when Code is ResultInvalid.
	FieldErrors map[string]string

	// Conflicts and RemoveUnavailable are set when Code is
	// ResultInventoryConflict. Calling RemoveUnavailable drops the
	// offending items from the cart so the buyer can retry.
	Conflicts         []inventory.Snapshot
	RemoveUnavailable func(ctx context.Context) error

	// Session is set when Code is ResultRedirect or ResultSuccess.
	Session *backend.Session
}

// Orchestrator drives the checkout state machine. Safe for concurrent use.
type Orchestrator struct {
	adapter backend.Adapter
	store   *cart.Store
	monitor *inventory.Monitor
	dedup   *dedup.Deduplicator

	redirector       Redirector
	successURL       string
	cancelURL        string
	throwOnDuplicate bool

	logger  *zap.Logger
	bus     event.Bus
	metrics metrics.Metrics
	tracer  tracing.Tracer
	now     func() time.Time

	mu          sync.Mutex
	status      Status
	submitting  bool
	fields      Fields
	fieldErrors map[string]string
	errMsg      string
	session     *backend.Session
}

// New creates an Orchestrator over the given backend adapter.
func New(adapter backend.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapter: adapter,
		status:  StatusIdle,
		logger:  zap.NewNop(),
		bus:     event.NewMemoryBus(),
		metrics: &metrics.NoopMetrics{},
		tracer:  &tracing.NoopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.dedup == nil {
		o.dedup = dedup.New(
			dedup.WithWindow(DefaultSessionWindow),
			dedup.WithLogger(o.logger),
			dedup.WithMetrics(o.metrics),
		)
	}
	return o
}

// ============================================================================
// Submit
// ============================================================================

// Submit runs one checkout attempt: requirements derivation, field
// validation, optional inventory re-verification, then session creation.
//
// The submission guard is checked before validation even begins: a second
// call while one is outstanding returns ResultInProgress immediately, with
// no validation and no backend call. Backend failures are converted to a
// ResultError carrying a human-readable message; errors escape only with
// WithThrowOnDuplicate, which surfaces a blocked re-entry as
// ErrCheckoutInProgress (or ErrInvalidTransition) and a window-suppressed
// duplicate as dedup.ErrDuplicateRequest.
func (o *Orchestrator) Submit(ctx context.Context, fields Fields) (*Result, error) {
	o.mu.Lock()
	if o.submitting || !ValidateTransition(o.status, StatusValidating) {
		status := o.status
		blocked := o.submitting
		o.mu.Unlock()
		o.metrics.CheckoutFailed(metrics.FailDuplicate)
		if o.throwOnDuplicate {
			if blocked {
				return nil, fmt.Errorf("%w: status %s", ErrCheckoutInProgress, status)
			}
			return nil, fmt.Errorf("%w: cannot submit from status %s", ErrInvalidTransition, status)
		}
		return &Result{Code: ResultInProgress, Status: status, Message: "Payment already in progress"}, nil
	}
	prev := o.status
	o.submitting = true
	o.status = StatusValidating
	o.fields = fields.Clone()
	o.fieldErrors = nil
	o.errMsg = ""
	o.session = nil
	o.mu.Unlock()

	started := o.now()
	state := o.cartState()
	attemptID := uuid.NewString()

	ctx, span := o.tracer.StartCheckout(ctx, attemptID, len(state.Items))
	defer span.End()

	o.metrics.CheckoutSubmitted(fields["payment_method"])
	o.bus.Publish(ctx, event.New(event.TypeCheckoutSubmitted).WithData("attempt_id", attemptID))

	if state.IsEmpty() {
		span.SetError(ErrEmptyCart)
		return o.fail(ctx, metrics.FailValidation, "Your cart is empty"), nil
	}

	req := DeriveRequirements(state)
	if fieldErrs := Validate(fields, req); len(fieldErrs) > 0 {
		o.mu.Lock()
		o.status = StatusError
		o.fieldErrors = fieldErrs
		o.submitting = false
		o.mu.Unlock()
		o.metrics.CheckoutFailed(metrics.FailValidation)
		o.bus.Publish(ctx, event.New(event.TypeCheckoutFailed).WithData("reason", metrics.FailValidation))
		return &Result{Code: ResultInvalid, Status: StatusError, FieldErrors: fieldErrs}, nil
	}

	if result := o.verifyInventory(ctx); result != nil {
		return result, nil
	}

	o.mu.Lock()
	o.status = StatusCreatingSession
	o.mu.Unlock()

	session, err := o.createSession(ctx, state, fields)
	if err != nil {
		if errors.Is(err, dedup.ErrDuplicateRequest) {
			o.restore(prev)
			return nil, err
		}
		o.logger.Error("checkout session creation failed", zap.Error(err))
		span.SetError(err)
		return o.fail(ctx, metrics.FailBackend, "Checkout failed. Please try again."), nil
	}
	if session == nil {
		// Window-suppressed duplicate without opt-in: invisible to the
		// buyer, the first attempt's outcome stands.
		o.restore(prev)
		return &Result{Code: ResultInProgress, Status: o.Status(), Message: "Payment already in progress"}, nil
	}

	o.bus.Publish(ctx, event.New(event.TypeCheckoutSessionCreated).WithData("session_id", session.ID))

	switch session.Kind {
	case backend.KindRedirect:
		o.mu.Lock()
		o.status = StatusRedirecting
		o.session = session
		o.mu.Unlock()
		o.metrics.CheckoutCompleted(string(session.Kind), o.now().Sub(started))
		o.bus.Publish(ctx, event.New(event.TypeCheckoutRedirect).WithData("url", session.URL))
		if o.redirector != nil {
			o.redirector.Redirect(session.URL)
		}
		// The guard stays armed while redirecting; the return handler or
		// an explicit Reset re-enables submission.
		return &Result{Code: ResultRedirect, Status: StatusRedirecting, Session: session}, nil

	default:
		o.mu.Lock()
		o.status = StatusSuccess
		o.session = session
		o.submitting = false
		o.mu.Unlock()
		o.metrics.CheckoutCompleted(string(session.Kind), o.now().Sub(started))
		return &Result{Code: ResultSuccess, Status: StatusSuccess, Session: session}, nil
	}
}

// verifyInventory runs a fresh poll when a monitor is wired and converts
// blocking issues into an inventory-conflict result with remediation. Poll
// failures are logged and do not block the attempt.
func (o *Orchestrator) verifyInventory(ctx context.Context) *Result {
	if o.monitor == nil {
		return nil
	}

	report, err := o.monitor.PollNow(ctx)
	if err != nil {
		o.logger.Warn("inventory re-verification failed, proceeding", zap.Error(err))
		return nil
	}
	if !report.HasIssues {
		return nil
	}

	var conflicts []inventory.Snapshot
	for _, snap := range report.Snapshots {
		if snap.Blocking() {
			conflicts = append(conflicts, snap)
		}
	}

	o.mu.Lock()
	o.status = StatusError
	o.errMsg = "Some items in your cart are no longer available"
	o.submitting = false
	o.mu.Unlock()
	o.metrics.CheckoutFailed(metrics.FailInventory)
	o.bus.Publish(ctx, event.New(event.TypeCheckoutFailed).WithData("reason", metrics.FailInventory))

	return &Result{
		Code:              ResultInventoryConflict,
		Status:            StatusError,
		Message:           "Some items in your cart are no longer available",
		Conflicts:         conflicts,
		RemoveUnavailable: o.removeUnavailable(conflicts),
	}
}

// removeUnavailable builds the remediation closure that drops the
// conflicting items from the cart. Nil when no cart store is wired.
func (o *Orchestrator) removeUnavailable(conflicts []inventory.Snapshot) func(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	return func(ctx context.Context) error {
		for _, snap := range conflicts {
			action := cart.Remove{ProductID: snap.ProductID, VariantID: snap.VariantID}
			if err := o.store.Dispatch(ctx, action); err != nil {
				return err
			}
		}
		return nil
	}
}

// createSession calls the backend through the session deduplicator, keyed
// by the cart contents and payment method so rapid identical submissions
// share one backend call.
func (o *Orchestrator) createSession(ctx context.Context, state cart.State, fields Fields) (*backend.Session, error) {
	req := backend.SessionRequest{
		Cart:          state,
		Customer:      customerFromFields(fields),
		PaymentMethod: fields["payment_method"],
		SuccessURL:    o.successURL,
		CancelURL:     o.cancelURL,
		Metadata:      map[string]string{"attempt_id": uuid.NewString()},
	}

	var doOpts []dedup.DoOption
	if o.throwOnDuplicate {
		doOpts = append(doOpts, dedup.WithThrowOnDuplicate())
	}

	val, err := o.dedup.Do(ctx, o.sessionKey(state, fields), func(ctx context.Context) (any, error) {
		return o.adapter.CreateCheckoutSession(ctx, req)
	}, doOpts...)
	if err != nil {
		return nil, err
	}
	session, _ := val.(*backend.Session)
	return session, nil
}

// sessionKey derives the deduplication key from the cart contents and the
// selected payment method.
func (o *Orchestrator) sessionKey(state cart.State, fields Fields) string {
	h := fnv.New64a()
	if blob, err := json.Marshal(state); err == nil {
		h.Write(blob)
	}
	h.Write([]byte(fields["payment_method"]))
	return fmt.Sprintf("checkout:%x", h.Sum64())
}

func customerFromFields(fields Fields) backend.Customer {
	c := backend.Customer{
		Email: fields["email"],
		Name:  fields["name"],
		Phone: fields["phone"],
	}
	if addr := addressFromFields(fields, "shipping_address"); addr != nil {
		c.ShippingAddress = addr
	}
	if addr := addressFromFields(fields, "billing_address"); addr != nil {
		c.BillingAddress = addr
	}
	return c
}

func addressFromFields(fields Fields, prefix string) *backend.Address {
	addr := &backend.Address{
		Line1:      fields[prefix+".line1"],
		Line2:      fields[prefix+".line2"],
		City:       fields[prefix+".city"],
		State:      fields[prefix+".state"],
		PostalCode: fields[prefix+".postal_code"],
		Country:    fields[prefix+".country"],
	}
	if addr.Line1 == "" && addr.City == "" && addr.PostalCode == "" && addr.Country == "" {
		return nil
	}
	return addr
}

// fail moves the attempt to the error state with a human-readable message
// and clears the submission guard.
func (o *Orchestrator) fail(ctx context.Context, reason, message string) *Result {
	o.mu.Lock()
	o.status = StatusError
	o.errMsg = message
	o.submitting = false
	o.mu.Unlock()
	o.metrics.CheckoutFailed(reason)
	o.bus.Publish(ctx, event.New(event.TypeCheckoutFailed).WithData("reason", reason))
	return &Result{Code: ResultError, Status: StatusError, Message: message}
}

// restore puts the status back to its pre-attempt value and clears the
// guard. Used when a duplicate suppression ends the attempt without an
// outcome of its own.
func (o *Orchestrator) restore(prev Status) {
	o.mu.Lock()
	o.status = prev
	o.submitting = false
	o.mu.Unlock()
}

func (o *Orchestrator) cartState() cart.State {
	if o.store == nil {
		return cart.State{}
	}
	return o.store.State()
}

// ============================================================================
// Redirect Return
// ============================================================================

// HandleReturn resolves a redirect return URL's query parameters and
// applies the outcome to the state machine: success completes the attempt,
// cancel and idle reset it, error records the message.
func (o *Orchestrator) HandleReturn(ctx context.Context, query url.Values) Return {
	ret := ResolveReturn(query)

	o.mu.Lock()
	switch ret.Kind {
	case ReturnSuccess:
		o.status = StatusSuccess
	case ReturnError:
		o.status = StatusError
		o.errMsg = ret.Message
		if o.errMsg == "" {
			o.errMsg = "Checkout failed. Please try again."
		}
	default:
		o.status = StatusIdle
		o.errMsg = ""
		o.fieldErrors = nil
	}
	o.submitting = false
	o.mu.Unlock()

	if ret.Kind == ReturnError {
		o.bus.Publish(ctx, event.New(event.TypeCheckoutFailed).WithData("reason", metrics.FailBackend))
	}
	return ret
}

// ============================================================================
// State Access
// ============================================================================

// Reset returns the attempt to idle, clearing errors and the submission
// guard unconditionally. A dangling guard can never permanently lock out
// retries.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.status = StatusIdle
	o.submitting = false
	o.fieldErrors = nil
	o.errMsg = ""
	o.session = nil
	o.mu.Unlock()
}

// Status returns the current attempt status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Submitting reports whether a submission is outstanding.
func (o *Orchestrator) Submitting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submitting
}

// FieldErrors returns the validation errors from the last attempt.
func (o *Orchestrator) FieldErrors() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.fieldErrors))
	for k, v := range o.fieldErrors {
		out[k] = v
	}
	return out
}

// ErrorMessage returns the human-readable error from the last attempt.
func (o *Orchestrator) ErrorMessage() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errMsg
}

// LastFields returns the field values from the last attempt for redisplay.
func (o *Orchestrator) LastFields() Fields {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields.Clone()
}

// Session returns the session created by the last attempt, if any.
func (o *Orchestrator) Session() *backend.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}
