package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlacer struct {
	mu      sync.Mutex
	calls   []client.CreateOrderRequest
	resp    *client.OrderResponse
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakePlacer) PlaceOrder(_ context.Context, req client.CreateOrderRequest, key string) (*client.OrderResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &client.OrderResponse{Success: true, OrderID: "ORD-42"}, nil
}

func (f *fakePlacer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *recordingLogger) LogError(_ context.Context, err error, _ map[string]string) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

type recorder struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return ""
}

func (r *recorder) last() notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}

type publishedOrder struct {
	userID string
	order  models.OrderRecord
}

type fakePublisher struct{ orders []publishedOrder }

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, _, userID string, order models.OrderRecord) error {
	p.orders = append(p.orders, publishedOrder{userID, order})
	return nil
}

type failingAppend struct{ storage.Store }

func (failingAppend) AppendRecord(context.Context, string, int, []byte) error {
	return errors.New("disk full")
}

type fixture struct {
	session *Session
	placer  *fakePlacer
	logger  *recordingLogger
	notes   *recorder
	store   storage.Store
	pub     *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		placer: &fakePlacer{},
		logger: &recordingLogger{},
		notes:  &recorder{},
		store:  storage.NewMemory(),
		pub:    &fakePublisher{},
	}
	f.session = NewSession(Deps{
		SessionID:   "sess-1",
		Orders:      f.placer,
		Storage:     f.store,
		Notifier:    f.notes,
		ErrorLogger: f.logger,
		Publisher:   f.pub,
		CurrentUser: func() *models.User { return &models.User{ID: "u1"} },
		Logger:      zap.NewNop(),
	})
	return f
}

func address() models.ShippingAddress {
	return models.ShippingAddress{
		FirstName: "Ana", LastName: "Pérez", Street: "Av. Arequipa 123", City: "Lima",
		State: "Lima", PostalCode: "15001", Country: "PE", Phone: "999888777",
	}
}

func cartOf(total int64) models.Cart {
	c := models.Cart{Items: []models.CartItem{{
		Product:  models.Product{ID: "p1", Name: "Aceite de coco", Price: decimal.NewFromInt(total), Stock: 5, Images: []models.ProductImage{{Full: "https://cdn/p1.jpg"}}},
		Quantity: 1,
	}}}
	c.Recalculate()
	return c
}

func (f *fixture) ready() {
	f.session.SetShippingAddress(address())
	f.session.SetPaymentMethod(models.PaymentMethod{Type: models.PaymentCreditCard, CardNumber: "4111111111111111"})
	f.session.SetAgreedToTerms(true)
}

func TestCalculateSummary(t *testing.T) {
	tests := []struct {
		total    int64
		shipping int64
		tax      int64
		grand    int64
	}{
		{2500, 150, 450, 3100},
		{3500, 0, 630, 4130},
		{3000, 150, 540, 3690},
	}

	for _, tt := range tests {
		s := CalculateSummary(cartOf(tt.total), DefaultPricing())
		assert.True(t, s.Subtotal.Equal(decimal.NewFromInt(tt.total)))
		assert.True(t, s.Shipping.Equal(decimal.NewFromInt(tt.shipping)), "shipping %s", s.Shipping)
		assert.True(t, s.Tax.Equal(decimal.NewFromInt(tt.tax)), "tax %s", s.Tax)
		assert.True(t, s.Discount.IsZero())
		assert.True(t, s.Total.Equal(decimal.NewFromInt(tt.grand)), "total %s", s.Total)
	}
}

func TestParsePricing(t *testing.T) {
	p, err := ParsePricing("200", "", "0.16")
	require.NoError(t, err)
	assert.True(t, p.ShippingRate.Equal(decimal.NewFromInt(200)))
	assert.True(t, p.FreeShippingThreshold.Equal(decimal.NewFromInt(3000)))
	assert.True(t, p.TaxRate.Equal(decimal.RequireFromString("0.16")))

	_, err = ParsePricing("abc", "", "")
	assert.Error(t, err)
	_, err = ParsePricing("", "", "-0.1")
	assert.Error(t, err)
}

func TestSessionKeepsConfiguredZeroPricing(t *testing.T) {
	zero, err := ParsePricing("0", "0", "0")
	require.NoError(t, err)

	s := NewSession(Deps{SessionID: "sess-1", Storage: storage.NewMemory(), Pricing: &zero, Logger: zap.NewNop()})
	summary := s.CalculateOrderSummary(cartOf(100))
	assert.True(t, summary.Shipping.IsZero(), "shipping %s", summary.Shipping)
	assert.True(t, summary.Tax.IsZero(), "tax %s", summary.Tax)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(100)), "total %s", summary.Total)

	defaults := NewSession(Deps{SessionID: "sess-2", Storage: storage.NewMemory(), Logger: zap.NewNop()})
	summary = defaults.CalculateOrderSummary(cartOf(100))
	assert.True(t, summary.Shipping.Equal(decimal.NewFromInt(150)))
	assert.True(t, summary.Tax.Equal(decimal.NewFromInt(18)))
}

func TestNextStepGating(t *testing.T) {
	f := newFixture(t)
	s := f.session

	s.NextStep()
	assert.Equal(t, StepShipping, s.State().CurrentStep)
	assert.False(t, s.CanProceedToNextStep())

	s.SetShippingAddress(address())
	s.NextStep()
	assert.Equal(t, StepPayment, s.State().CurrentStep)

	s.NextStep()
	assert.Equal(t, StepPayment, s.State().CurrentStep)

	s.SetPaymentMethod(models.PaymentMethod{Type: models.PaymentBankTransfer})
	s.NextStep()
	assert.Equal(t, StepReview, s.State().CurrentStep)

	s.NextStep()
	assert.Equal(t, StepConfirmation, s.State().CurrentStep)

	s.NextStep()
	assert.Equal(t, StepConfirmation, s.State().CurrentStep)

	// Confirmation is the last step even once it is valid.
	s.SetAgreedToTerms(true)
	assert.True(t, s.CanProceedToNextStep())
	s.NextStep()
	assert.Equal(t, StepConfirmation, s.State().CurrentStep)

	s.PreviousStep()
	s.PreviousStep()
	s.PreviousStep()
	assert.Equal(t, StepShipping, s.State().CurrentStep)
	s.PreviousStep()
	assert.Equal(t, StepShipping, s.State().CurrentStep)

	s.SetCurrentStep(9)
	assert.Equal(t, StepShipping, s.State().CurrentStep)
	s.SetCurrentStep(0)
	assert.Equal(t, StepShipping, s.State().CurrentStep)
	s.SetCurrentStep(StepConfirmation + 1)
	assert.Equal(t, StepShipping, s.State().CurrentStep)
	s.SetCurrentStep(StepReview)
	assert.Equal(t, StepReview, s.State().CurrentStep)
}

func TestIsStepValid(t *testing.T) {
	f := newFixture(t)
	s := f.session

	assert.False(t, s.IsStepValid(StepReview))
	s.SetShippingAddress(address())
	assert.False(t, s.IsStepValid(StepReview))
	s.SetPaymentMethod(models.PaymentMethod{Type: models.PaymentDebitCard})
	assert.True(t, s.IsStepValid(StepReview))
	assert.False(t, s.IsStepValid(StepConfirmation))
	s.SetAgreedToTerms(true)
	assert.True(t, s.IsStepValid(StepConfirmation))
	assert.False(t, s.IsStepValid(0))
}

func TestProcessOrderValidationOrder(t *testing.T) {
	f := newFixture(t)
	s := f.session

	assert.Equal(t, Result{Error: MsgShippingRequired}, s.ProcessOrder(context.Background(), cartOf(10)))
	s.SetShippingAddress(address())
	assert.Equal(t, Result{Error: MsgPaymentRequired}, s.ProcessOrder(context.Background(), cartOf(10)))
	s.SetPaymentMethod(models.PaymentMethod{Type: models.PaymentCashOnDelivery})
	assert.Equal(t, Result{Error: MsgTermsRequired}, s.ProcessOrder(context.Background(), cartOf(10)))

	assert.Equal(t, 0, f.placer.callCount())
	assert.Len(t, f.logger.errs, 3)
	assert.Equal(t, notify.KindError, f.notes.last().Type)
	assert.False(t, s.State().IsProcessing)
}

func TestProcessOrderEmptyCartSkipsRemoteCall(t *testing.T) {
	f := newFixture(t)
	f.ready()

	res := f.session.ProcessOrder(context.Background(), models.Cart{})
	assert.Equal(t, Result{Success: false, Error: "El carrito está vacío"}, res)
	assert.Equal(t, 0, f.placer.callCount())
}

func TestProcessOrderSuccess(t *testing.T) {
	f := newFixture(t)
	f.ready()
	f.session.SetOrderNotes("  dejar en portería  ")
	cart := cartOf(2500)

	res := f.session.ProcessOrder(context.Background(), cart)
	assert.Equal(t, Result{Success: true, OrderID: "ORD-42"}, res)
	assert.False(t, f.session.State().IsProcessing)

	require.Equal(t, 1, f.placer.callCount())
	req := f.placer.calls[0]
	assert.Equal(t, "dejar en portería", req.OrderNotes)
	assert.Equal(t, models.PaymentCreditCard, req.PaymentMethod.Type)
	assert.Equal(t, "https://cdn/p1.jpg", req.Items[0].ProductImage)
	assert.True(t, req.Summary.Total.Equal(decimal.NewFromInt(3100)))

	assert.Equal(t, notify.KindSuccess, f.notes.last().Type)
	assert.Equal(t, "¡Pedido #ORD-42 realizado con éxito!", f.notes.last().Message)

	records := OrderRecords(context.Background(), f.store, "sess-1")
	require.Len(t, records, 1)
	assert.Equal(t, "ORD-42", records[0].ID)
	assert.Equal(t, models.OrderStatusConfirmed, records[0].Status)
	assert.Equal(t, "Aceite de coco", records[0].Items[0].Name)
	_, err := time.Parse(time.RFC3339, records[0].Date)
	assert.NoError(t, err)

	require.Len(t, f.pub.orders, 1)
	assert.Equal(t, "u1", f.pub.orders[0].userID)
}

func TestProcessOrderKeepsBackendStatus(t *testing.T) {
	f := newFixture(t)
	f.ready()
	f.placer.resp = &client.OrderResponse{Success: true, OrderID: "ORD-7", Order: &client.Order{ID: "ORD-7", Status: models.OrderStatusPending}}

	require.True(t, f.session.ProcessOrder(context.Background(), cartOf(10)).Success)
	records := OrderRecords(context.Background(), f.store, "sess-1")
	require.Len(t, records, 1)
	assert.Equal(t, models.OrderStatusPending, records[0].Status)
}

func TestProcessOrderRemoteFailure(t *testing.T) {
	f := newFixture(t)
	f.ready()
	f.placer.err = &client.StatusError{StatusCode: 400, Message: "Stock insuficiente"}

	res := f.session.ProcessOrder(context.Background(), cartOf(10))
	assert.Equal(t, Result{Error: "Stock insuficiente"}, res)
	assert.Equal(t, "Stock insuficiente", f.notes.last().Message)
	assert.Len(t, f.logger.errs, 1)
	assert.Empty(t, OrderRecords(context.Background(), f.store, "sess-1"))
	assert.Empty(t, f.pub.orders)
}

func TestProcessOrderRecordFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.session.deps.Storage = failingAppend{storage.NewMemory()}
	f.ready()

	res := f.session.ProcessOrder(context.Background(), cartOf(10))
	assert.True(t, res.Success)
	assert.Empty(t, f.logger.errs)
}

func TestProcessOrderRejectsConcurrentCall(t *testing.T) {
	f := newFixture(t)
	f.ready()
	f.placer.block = make(chan struct{})
	f.placer.started = make(chan struct{})

	done := make(chan Result)
	go func() { done <- f.session.ProcessOrder(context.Background(), cartOf(10)) }()

	<-f.placer.started
	assert.True(t, f.session.State().IsProcessing)
	second := f.session.ProcessOrder(context.Background(), cartOf(10))
	assert.Equal(t, Result{Error: MsgAlreadyRunning}, second)

	close(f.placer.block)
	assert.True(t, (<-done).Success)
	assert.False(t, f.session.State().IsProcessing)
	assert.Equal(t, 1, f.placer.callCount())
}

func TestResetReturnsInitialState(t *testing.T) {
	f := newFixture(t)
	f.ready()
	f.session.SetOrderNotes("nota")
	f.session.NextStep()
	f.session.CalculateOrderSummary(cartOf(100))

	f.session.Reset()
	st := f.session.State()
	assert.Equal(t, StepShipping, st.CurrentStep)
	assert.Nil(t, st.ShippingAddress)
	assert.Nil(t, st.PaymentMethod)
	assert.Empty(t, st.OrderNotes)
	assert.False(t, st.AgreedToTerms)
	assert.True(t, st.OrderSummary.Total.IsZero())
}

func TestStateReturnsCopies(t *testing.T) {
	f := newFixture(t)
	f.session.SetShippingAddress(address())

	st := f.session.State()
	st.ShippingAddress.City = "Cusco"
	assert.Equal(t, "Lima", f.session.State().ShippingAddress.City)
}
