package checkout

import (
	"context"
	"sync"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Checkout steps
const (
	StepShipping     = 1
	StepPayment      = 2
	StepReview       = 3
	StepConfirmation = 4
)

// OrderPlacer submits orders to the order service
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req client.CreateOrderRequest, idempotencyKey string) (*client.OrderResponse, error)
}

// ErrorLogger records handled failures. It must never fail.
type ErrorLogger interface {
	LogError(ctx context.Context, err error, fields map[string]string)
}

// EventPublisher announces placed orders
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, sessionID, userID string, order models.OrderRecord) error
}

// State is the checkout state exposed to the storefront
type State struct {
	CurrentStep     int                     `json:"currentStep"`
	ShippingAddress *models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   *models.PaymentMethod   `json:"paymentMethod"`
	OrderNotes      string                  `json:"orderNotes"`
	AgreedToTerms   bool                    `json:"agreedToTerms"`
	OrderSummary    models.OrderSummary     `json:"orderSummary"`
	IsProcessing    bool                    `json:"isProcessing"`
}

func initialState() State {
	return State{CurrentStep: StepShipping}
}

// Deps are the collaborators of a checkout Session. Orders and Storage are
// required; the rest fall back to no-ops.
type Deps struct {
	SessionID   string
	// Pricing defaults to DefaultPricing when nil
	Pricing     *Pricing
	Orders      OrderPlacer
	Storage     storage.Store
	Notifier    notify.Notifier
	ErrorLogger ErrorLogger
	Publisher   EventPublisher
	// CurrentUser returns the signed-in customer, or nil
	CurrentUser func() *models.User
	Logger      *zap.Logger
}

// Session is the checkout of one visitor. It lives in memory only.
type Session struct {
	mu      sync.Mutex
	state   State
	pricing Pricing
	deps    Deps
}

// NewSession creates a checkout at step 1
func NewSession(deps Deps) *Session {
	pricing := DefaultPricing()
	if deps.Pricing != nil {
		pricing = *deps.Pricing
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.ErrorLogger == nil {
		deps.ErrorLogger = util.NewErrorReporter(deps.Logger)
	}
	if deps.CurrentUser == nil {
		deps.CurrentUser = func() *models.User { return nil }
	}
	if deps.Logger == nil {
		deps.Logger = util.GetLogger()
	}
	return &Session{state: initialState(), pricing: pricing, deps: deps}
}

// State returns a copy of the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if st.ShippingAddress != nil {
		addr := *st.ShippingAddress
		st.ShippingAddress = &addr
	}
	if st.PaymentMethod != nil {
		pm := *st.PaymentMethod
		st.PaymentMethod = &pm
	}
	return st
}

// SetCurrentStep jumps to step. Values outside 1..4 are ignored.
func (s *Session) SetCurrentStep(step int) {
	if step < StepShipping || step > StepConfirmation {
		return
	}
	s.mu.Lock()
	s.state.CurrentStep = step
	s.mu.Unlock()
}

// NextStep advances when the current step is valid and not the last
func (s *Session) NextStep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStepValid(s.state.CurrentStep) && s.state.CurrentStep < StepConfirmation {
		s.state.CurrentStep++
	}
}

// PreviousStep goes back one step, stopping at the first
func (s *Session) PreviousStep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentStep > StepShipping {
		s.state.CurrentStep--
	}
}

func (s *Session) SetShippingAddress(addr models.ShippingAddress) {
	s.mu.Lock()
	s.state.ShippingAddress = &addr
	s.mu.Unlock()
}

func (s *Session) SetPaymentMethod(pm models.PaymentMethod) {
	s.mu.Lock()
	s.state.PaymentMethod = &pm
	s.mu.Unlock()
}

func (s *Session) SetOrderNotes(notes string) {
	s.mu.Lock()
	s.state.OrderNotes = notes
	s.mu.Unlock()
}

func (s *Session) SetAgreedToTerms(agreed bool) {
	s.mu.Lock()
	s.state.AgreedToTerms = agreed
	s.mu.Unlock()
}

// IsStepValid reports whether step has what it needs
func (s *Session) IsStepValid(step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStepValid(step)
}

func (s *Session) CanProceedToNextStep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStepValid(s.state.CurrentStep)
}

func (s *Session) isStepValid(step int) bool {
	switch step {
	case StepShipping:
		return s.state.ShippingAddress != nil
	case StepPayment:
		return s.state.PaymentMethod != nil
	case StepReview:
		return s.state.ShippingAddress != nil && s.state.PaymentMethod != nil
	case StepConfirmation:
		return s.state.AgreedToTerms
	default:
		return false
	}
}

// CalculateOrderSummary prices cart and keeps the result in the state. The
// caller triggers it whenever the cart changes during checkout.
func (s *Session) CalculateOrderSummary(cart models.Cart) models.OrderSummary {
	summary := CalculateSummary(cart, s.pricing)

	s.mu.Lock()
	s.state.OrderSummary = summary
	s.mu.Unlock()
	return summary
}

// Reset returns the checkout to its initial state. An order in flight
// keeps its processing flag until it settles.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	processing := s.state.IsProcessing
	s.state = initialState()
	s.state.IsProcessing = processing
}
