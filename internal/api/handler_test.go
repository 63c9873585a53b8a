package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/session"
	"storefront/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeCatalog struct {
	products map[string]models.Product
}

func (f fakeCatalog) GetProduct(_ context.Context, id string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, &client.StatusError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return &p, nil
}

type fakeOrders struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeOrders) PlaceOrder(_ context.Context, req client.CreateOrderRequest, key string) (*client.OrderResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if key == "" {
		return nil, errors.New("missing idempotency key")
	}
	return &client.OrderResponse{Success: true, OrderID: "ORD-100"}, nil
}

type fakeAuth struct {
	loginErr error
}

func (f *fakeAuth) Me(_ context.Context, c client.Credentials) (*models.User, client.Credentials, error) {
	if c.IsZero() {
		return nil, c, nil
	}
	return &models.User{ID: "u1", FirstName: "Ana", LastName: "Ruiz"}, c, nil
}

func (f *fakeAuth) Login(context.Context, string, string) (*models.User, client.Credentials, error) {
	if f.loginErr != nil {
		return nil, client.Credentials{}, f.loginErr
	}
	return &models.User{ID: "u1", FirstName: "Ana", LastName: "Ruiz"}, client.Credentials{AccessToken: "opaque"}, nil
}

func (f *fakeAuth) Register(_ context.Context, req client.RegisterRequest) (*models.User, client.Credentials, error) {
	return nil, client.Credentials{}, &client.StatusError{StatusCode: http.StatusConflict}
}

func (f *fakeAuth) Logout(context.Context, client.Credentials) error { return nil }

func (f *fakeAuth) Refresh(_ context.Context, c client.Credentials) (client.Credentials, error) {
	return c, nil
}

type testServer struct {
	router   *gin.Engine
	sessions *session.Manager
	orders   *fakeOrders
	auth     *fakeAuth
	cookie   *http.Cookie
}

func newTestServer(t *testing.T, mutate func(*session.Config, *Options)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{orders: &fakeOrders{}, auth: &fakeAuth{}}
	cfg := session.Config{
		Storage:    storage.NewMemory(),
		Orders:     ts.orders,
		AuthClient: ts.auth,
		TTL:        time.Minute,
		Logger:     zap.NewNop(),
	}
	opts := Options{
		Catalog: fakeCatalog{products: map[string]models.Product{
			"p1": {ID: "p1", Name: "Jabón de avena", Price: decimal.NewFromInt(1000), Stock: 3},
			"p2": {ID: "p2", Name: "Aceite de coco", Price: decimal.NewFromInt(500), Stock: 0},
		}},
		Logger: zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg, &opts)
	}

	ts.sessions = session.NewManager(cfg)
	t.Cleanup(ts.sessions.Close)
	opts.Sessions = ts.sessions

	ts.router = gin.New()
	NewHandler(opts).SetupRoutes(ts.router)
	return ts
}

// do sends a request, carrying the session cookie between calls
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			ts.cookie = c
		}
	}
	return rec
}

type cartResponse struct {
	Cart          models.Cart           `json:"cart"`
	IsOpen        bool                  `json:"isOpen"`
	Error         string                `json:"error"`
	Notifications []notify.Notification `json:"notifications"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReadinessCheck(t *testing.T) {
	ts := newTestServer(t, func(_ *session.Config, o *Options) {
		o.ReadyChecks = map[string]ReadyCheck{
			"storage": func(context.Context) error { return errors.New("connection refused") },
		}
	})

	rec := ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	ok := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, ok.do(t, http.MethodGet, "/ready", nil).Code)
}

func TestSessionCookieIsIssuedAndReused(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.NotNil(t, ts.cookie)
	first := ts.cookie.Value
	assert.True(t, ts.cookie.HttpOnly)

	ts.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, first, ts.cookie.Value)
	assert.Equal(t, 1, ts.sessions.Len())
}

func TestMalformedSessionCookieIsReplaced(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cookie = &http.Cookie{Name: SessionCookie, Value: "../../etc"}

	ts.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.NotNil(t, ts.cookie)
	assert.NotEqual(t, "../../etc", ts.cookie.Value)
}

func TestCartFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp cartResponse
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Cart.Count)
	assert.True(t, resp.Cart.Total.Equal(decimal.NewFromInt(2000)))
	require.NotEmpty(t, resp.Notifications)
	assert.Contains(t, resp.Notifications[0].Message, "Jabón de avena")

	// Two more would exceed the stock of three.
	rec = ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp = cartResponse{}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Cart.Count)
	assert.NotEmpty(t, resp.Error)

	qty := 3
	rec = ts.do(t, http.MethodPatch, "/api/v1/cart/items/p1", UpdateQuantityRequest{Quantity: &qty})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = cartResponse{}
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Cart.Count)

	rec = ts.do(t, http.MethodPatch, "/api/v1/cart/items/missing", UpdateQuantityRequest{Quantity: &qty})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/cart/items/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = cartResponse{}
	decode(t, rec, &resp)
	assert.Empty(t, resp.Cart.Items)
	assert.True(t, resp.Cart.Total.IsZero())
}

func TestCartRejectsUnknownAndOutOfStockProducts(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/cart/items", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartToggleAndClear(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp cartResponse
	decode(t, ts.do(t, http.MethodPost, "/api/v1/cart/toggle", nil), &resp)
	assert.True(t, resp.IsOpen)

	ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 1})
	resp = cartResponse{}
	decode(t, ts.do(t, http.MethodDelete, "/api/v1/cart", nil), &resp)
	assert.Equal(t, 0, resp.Cart.Count)
}

func TestWishlistToggle(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp struct {
		Items []models.Product `json:"items"`
		Count int              `json:"count"`
		Added bool             `json:"added"`
	}
	rec := ts.do(t, http.MethodPost, "/api/v1/wishlist/toggle", WishlistRequest{ProductID: "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.True(t, resp.Added)
	assert.Equal(t, 1, resp.Count)

	rec = ts.do(t, http.MethodPost, "/api/v1/wishlist/items", WishlistRequest{ProductID: "p1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/wishlist/toggle", WishlistRequest{ProductID: "p1"})
	resp.Added = true
	decode(t, rec, &resp)
	assert.False(t, resp.Added)
	assert.Equal(t, 0, resp.Count)
}

func TestCheckoutRequiresLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/checkout", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgLoginRequired)
}

func TestCheckoutStepIgnoresOutOfRange(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ana@example.com", Password: "secret"})

	var resp struct {
		Checkout struct {
			CurrentStep int `json:"currentStep"`
		} `json:"checkout"`
	}
	for _, step := range []int{0, 5} {
		rec := ts.do(t, http.MethodPut, "/api/v1/checkout/step", map[string]int{"step": step})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &resp)
		assert.Equal(t, 1, resp.Checkout.CurrentStep, "step %d", step)
	}

	rec := ts.do(t, http.MethodPut, "/api/v1/checkout/step", map[string]int{"step": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Checkout.CurrentStep)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/api/v1/checkout/step", map[string]string{}).Code)
}

func TestCheckoutPlacesOrderAndServesReceipt(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ana@example.com", Password: "secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 2})

	// Nothing chosen yet.
	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/orders", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, ts.orders.calls)

	rec = ts.do(t, http.MethodPut, "/api/v1/checkout/shipping", models.ShippingAddress{FirstName: "Ana"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/checkout/shipping", models.ShippingAddress{
		FirstName: "Ana", LastName: "Ruiz", Street: "Calle 1", City: "Santo Domingo",
		State: "DN", PostalCode: "10101", Country: "DO", Phone: "809-555-0100",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/checkout/payment", models.PaymentMethod{Type: "crypto"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPut, "/api/v1/checkout/payment", models.PaymentMethod{Type: models.PaymentCashOnDelivery})
	require.Equal(t, http.StatusOK, rec.Code)

	ts.do(t, http.MethodPut, "/api/v1/checkout/terms", TermsRequest{Agreed: true})

	var summary struct {
		Checkout struct {
			OrderSummary models.OrderSummary `json:"orderSummary"`
		} `json:"checkout"`
	}
	decode(t, ts.do(t, http.MethodPost, "/api/v1/checkout/summary", nil), &summary)
	// 2000 + 150 shipping + 18% tax
	assert.True(t, summary.Checkout.OrderSummary.Total.Equal(decimal.NewFromInt(2510)), summary.Checkout.OrderSummary.Total.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout/orders", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "ORD-100")
	assert.Equal(t, 1, ts.orders.calls)

	var history struct {
		Orders []models.OrderRecord `json:"orders"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/v1/orders", nil), &history)
	require.Len(t, history.Orders, 1)
	assert.Equal(t, "ORD-100", history.Orders[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/orders/ORD-100/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = ts.do(t, http.MethodGet, "/api/v1/orders/ORD-404/receipt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginFailureStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.auth.loginErr = &client.StatusError{StatusCode: http.StatusUnauthorized}

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ana@example.com", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Credenciales inválidas")

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email: "ana@example.com", Password: "secret1", FirstName: "Ana", LastName: "Ruiz",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *session.Config, _ *Options) {
		c.AuthRate = rate.Every(time.Hour)
		c.AuthBurst = 1
	})
	ts.auth.loginErr = &client.StatusError{StatusCode: http.StatusUnauthorized}

	body := LoginRequest{Email: "ana@example.com", Password: "bad"}
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/v1/auth/login", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodPost, "/api/v1/auth/login", body).Code)
}

func TestMeAndLogout(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp struct {
		Auth struct {
			User            *models.User `json:"user"`
			IsAuthenticated bool         `json:"isAuthenticated"`
		} `json:"auth"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/v1/auth/me", nil), &resp)
	assert.False(t, resp.Auth.IsAuthenticated)

	ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ana@example.com", Password: "secret"})
	decode(t, ts.do(t, http.MethodGet, "/api/v1/auth/me", nil), &resp)
	assert.True(t, resp.Auth.IsAuthenticated)
	require.NotNil(t, resp.Auth.User)
	assert.Equal(t, "u1", resp.Auth.User.ID)

	decode(t, ts.do(t, http.MethodPost, "/api/v1/auth/logout", nil), &resp)
	assert.False(t, resp.Auth.IsAuthenticated)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/checkout", nil).Code)
}

func TestNotificationsListAndDismiss(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 1})

	var resp struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/v1/notifications", nil), &resp)
	require.Len(t, resp.Notifications, 1)
	id := resp.Notifications[0].ID

	resp.Notifications = nil
	decode(t, ts.do(t, http.MethodDelete, "/api/v1/notifications/"+id, nil), &resp)
	assert.Empty(t, resp.Notifications)
}

func TestNotificationStream(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	// Issue the cookie first so the socket joins an existing session.
	ts.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.NotNil(t, ts.cookie)
	sess, ok := ts.sessions.Get(ts.cookie.Value)
	require.True(t, ok)

	header := http.Header{}
	header.Set("Cookie", SessionCookie+"="+ts.cookie.Value)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade completes, so keep
	// notifying until the first message arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sess.Notifications.Notify(notify.Info("hola"))
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var n notify.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "hola", n.Message)
	assert.Equal(t, notify.KindInfo, n.Type)
}
