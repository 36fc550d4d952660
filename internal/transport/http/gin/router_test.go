package httpgin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/repository"
	"github.com/kirinyoku/tix-nights/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tix-nights/internal/repository/redis"
	"github.com/kirinyoku/tix-nights/internal/service"
)

const (
	whsec         = "whsec_router_test"
	adminPassword = "s3cret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	calls int
	err   error
}

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	p.calls++
	if p.err != nil {
		return payment.CheckoutSession{}, p.err
	}
	return payment.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/" + req.Metadata[payment.MetaCorrelationID]}, nil
}

type fakeLedger struct {
	checkouts []payment.Checkout
}

func (l *fakeLedger) CompletedCheckouts(context.Context) ([]payment.Checkout, error) {
	return l.checkouts, nil
}

type env struct {
	router *gin.Engine
	store  *memory.Store
	clk    *clock.Manual
	proc   *fakeProcessor
	ledger *fakeLedger
	feed   *memory.Broadcaster
	svcs   *service.Services
}

type envOpts struct {
	withRedis bool
	rateLimit int
	storeWrap func(*memory.Store) repository.InventoryStore
}

func newEnv(t *testing.T, opts envOpts) *env {
	t.Helper()

	clk := clock.NewManual(time.Date(2025, 11, 5, 18, 0, 0, 0, time.UTC))
	mem := memory.New(clk)

	var store repository.InventoryStore = mem
	if opts.storeWrap != nil {
		store = opts.storeWrap(mem)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := memory.NewBroadcaster()
	proc := &fakeProcessor{}
	ledger := &fakeLedger{}

	svcs := service.NewServices(service.Deps{
		Catalog:   catalog.Season(),
		Store:     store,
		Notifier:  feed,
		Processor: proc,
		Ledger:    ledger,
		Deduper:   memory.NewDeliveries(),
		Clock:     clk,
		Logger:    logger,
	}, service.Config{})

	verifier, err := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test_router", WebhookSecret: whsec})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	deps := Deps{
		Services:          svcs,
		Verifier:          verifier,
		Changes:           feed,
		AdminPasswordHash: hash,
	}

	if opts.withRedis {
		mr := miniredis.RunT(t)
		rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		deps.Idempotency = redisrepo.NewLockStore(rdb)
		if opts.rateLimit > 0 {
			deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "checkout", opts.rateLimit, time.Minute)
		}
	}

	return &env{
		router: NewRouter(deps, logger),
		store:  mem,
		clk:    clk,
		proc:   proc,
		ledger: ledger,
		feed:   feed,
		svcs:   svcs,
	}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func checkoutReq(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func validBooking(night string) map[string]any {
	return map[string]any{
		"name":    "Sam",
		"email":   "sam@example.com",
		"night":   night,
		"tickets": map[string]int{"kid": 2, "adult_drink": 1},
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, envOpts{})
	w := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListNights(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/nights", nil))
	require.Equal(t, http.StatusOK, w.Code)

	nights := decode[[]NightResponse](t, w)
	require.Len(t, nights, catalog.Season().Len())
	assert.Equal(t, "11-nov", nights[0].Key)
	assert.Len(t, nights[0].Tiers, 3)

	for _, n := range nights {
		if n.Key == "26-nov" {
			assert.Equal(t, catalog.PoolAdults, n.RestrictedPool)
			assert.Len(t, n.Tiers, 2)
		}
	}
}

func TestGetAvailability_All(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/availability", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	all := decode[[]domain.Availability](t, w)
	require.Len(t, all, catalog.Season().Len())
	assert.Equal(t, 20, all[0].Remaining(domain.TierKid))

	// Unchanged state revalidates.
	req := httptest.NewRequest(http.MethodGet, "/api/availability", nil)
	req.Header.Set("If-None-Match", w.Header().Get("ETag"))
	assert.Equal(t, http.StatusNotModified, e.do(req).Code)
}

func TestGetAvailability_OneNight(t *testing.T) {
	e := newEnv(t, envOpts{})

	night, _ := catalog.Season().ByKey("18-nov")
	req := httptest.NewRequest(http.MethodGet, "/api/availability?night="+url.QueryEscape(night.Value), nil)
	w := e.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	a := decode[domain.Availability](t, w)
	assert.Equal(t, "18-nov", a.NightKey)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/availability?night=18-nov", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/availability?night=never", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAvailability_SweepsExpiredHolds(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(checkoutReq(t, validBooking("3-dec")))
	require.Equal(t, http.StatusOK, w.Code)

	e.clk.Advance(11 * time.Minute)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/availability?night=3-dec", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, decode[domain.Availability](t, w).Remaining(domain.TierKid))

	holds, err := e.store.ListHolds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holds)
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) GetInventory(context.Context, string) (domain.InventoryRecord, error) {
	return domain.InventoryRecord{}, repository.ErrUnavailable
}

func TestGetAvailability_StorageDown(t *testing.T) {
	e := newEnv(t, envOpts{storeWrap: func(m *memory.Store) repository.InventoryStore { return brokenStore{m} }})

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/availability", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.do(checkoutReq(t, validBooking("3-dec")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateCheckout(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(checkoutReq(t, validBooking("4-dec")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[CheckoutResponse](t, w)
	assert.True(t, strings.HasPrefix(resp.URL, "https://pay.example/"))

	holds, err := e.store.ListHoldsForNight(context.Background(), "4-dec")
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, strings.TrimPrefix(resp.URL, "https://pay.example/"), holds[0].SessionID)
}

func TestCreateCheckout_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "missing email",
			body:   map[string]any{"name": "Sam", "night": "4-dec", "tickets": map[string]int{"kid": 1}},
			status: http.StatusBadRequest,
		},
		{
			name:   "bad email",
			body:   map[string]any{"name": "Sam", "email": "nope", "night": "4-dec", "tickets": map[string]int{"kid": 1}},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown night",
			body:   map[string]any{"name": "Sam", "email": "s@example.com", "night": "1-jan", "tickets": map[string]int{"kid": 1}},
			status: http.StatusBadRequest,
			code:   "night_not_found",
		},
		{
			name:   "adults without kid",
			body:   map[string]any{"name": "Sam", "email": "s@example.com", "night": "4-dec", "tickets": map[string]int{"adult_full": 2}},
			status: http.StatusBadRequest,
			code:   "base_tier_required",
		},
		{
			name:   "kid on adults-only night",
			body:   map[string]any{"name": "Sam", "email": "s@example.com", "night": "27-nov", "tickets": map[string]int{"kid": 1}},
			status: http.StatusBadRequest,
			code:   "restricted_tier",
		},
		{
			name:   "over ceiling",
			body:   map[string]any{"name": "Sam", "email": "s@example.com", "night": "4-dec", "tickets": map[string]int{"kid": 9}},
			status: http.StatusBadRequest,
			code:   "quantity_ceiling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, envOpts{})

			w := e.do(checkoutReq(t, tt.body))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
			}
			assert.Zero(t, e.proc.calls)
		})
	}
}

func TestCreateCheckout_InsufficientCapacity(t *testing.T) {
	e := newEnv(t, envOpts{})

	require.NoError(t, e.store.SetInventory(context.Background(), "10-dec", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierKid: 19},
	}))

	w := e.do(checkoutReq(t, validBooking("10-dec")))
	require.Equal(t, http.StatusConflict, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "insufficient_capacity", resp.Code)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 1, *resp.Remaining)
	assert.Equal(t, "Only 1 kid ticket(s) remaining for this night", resp.Error)
}

func TestCreateCheckout_ProcessorDown(t *testing.T) {
	e := newEnv(t, envOpts{})
	e.proc.err = payment.ErrProcessor

	w := e.do(checkoutReq(t, validBooking("4-dec")))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	holds, err := e.store.ListHolds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestCreateCheckout_IdempotencyKeyReplays(t *testing.T) {
	e := newEnv(t, envOpts{withRedis: true})

	first := checkoutReq(t, validBooking("16-dec"))
	first.Header.Set("Idempotency-Key", "k-1")
	w1 := e.do(first)
	require.Equal(t, http.StatusOK, w1.Code)

	again := checkoutReq(t, validBooking("16-dec"))
	again.Header.Set("Idempotency-Key", "k-1")
	w2 := e.do(again)
	require.Equal(t, http.StatusOK, w2.Code)

	assert.JSONEq(t, w1.Body.String(), w2.Body.String())
	assert.Equal(t, "k-1", w2.Header().Get("Idempotency-Key"))
	assert.Equal(t, 1, e.proc.calls)

	holds, err := e.store.ListHoldsForNight(context.Background(), "16-dec")
	require.NoError(t, err)
	assert.Len(t, holds, 1)
}

func TestCreateCheckout_RateLimited(t *testing.T) {
	e := newEnv(t, envOpts{withRedis: true, rateLimit: 2})

	for range 2 {
		assert.Equal(t, http.StatusOK, e.do(checkoutReq(t, validBooking("18-dec"))).Code)
	}

	w := e.do(checkoutReq(t, validBooking("18-dec")))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func webhookReq(t *testing.T, payload string, sign bool) *http.Request {
	t.Helper()

	body := []byte(payload)
	header := ""
	if sign {
		sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: whsec})
		body, header = sp.Payload, sp.Header
	}

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	return req
}

func eventPayload(id, typ, sessionID, night string, kids int) string {
	evt := map[string]any{
		"id":     id,
		"object": "event",
		"type":   typ,
		"data": map[string]any{"object": map[string]any{
			"id":     "cs_" + id,
			"object": "checkout.session",
			"metadata": map[string]string{
				"night_key":       night,
				"temp_session_id": sessionID,
				"kid_tickets":     strconv.Itoa(kids),
			},
		}},
	}
	b, _ := json.Marshal(evt)
	return string(b)
}

func TestStripeWebhook_CompletedConfirmsOnce(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()

	w := e.do(checkoutReq(t, map[string]any{
		"name": "Sam", "email": "sam@example.com", "night": "22-dec",
		"tickets": map[string]int{"kid": 3},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	session := strings.TrimPrefix(decode[CheckoutResponse](t, w).URL, "https://pay.example/")

	payload := eventPayload("evt_1", "checkout.session.completed", session, "22-dec", 3)

	for range 2 {
		w = e.do(webhookReq(t, payload, true))
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[WebhookResponse](t, w).Received)
	}

	rec, err := e.store.GetInventory(ctx, "22-dec")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Get(domain.TierKid))

	holds, err := e.store.ListHolds(ctx)
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestStripeWebhook_ExpiredReleases(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()

	w := e.do(checkoutReq(t, validBooking("23-dec")))
	require.Equal(t, http.StatusOK, w.Code)
	session := strings.TrimPrefix(decode[CheckoutResponse](t, w).URL, "https://pay.example/")

	w = e.do(webhookReq(t, eventPayload("evt_2", "checkout.session.expired", session, "23-dec", 2), true))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "released", decode[WebhookResponse](t, w).Outcome)

	holds, err := e.store.ListHolds(ctx)
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestStripeWebhook_SettlementFailureStill200(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(webhookReq(t, eventPayload("evt_3", "checkout.session.completed", "s", "1-jan", 1), true))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStripeWebhook_RejectsUnsigned(t *testing.T) {
	e := newEnv(t, envOpts{})

	payload := eventPayload("evt_4", "checkout.session.completed", "s", "29-dec", 1)

	w := e.do(webhookReq(t, payload, false))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := webhookReq(t, payload, false)
	req.Header.Set("Stripe-Signature", "t=1,v1=00")
	w = e.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rec, err := e.store.GetInventory(context.Background(), "29-dec")
	require.NoError(t, err)
	assert.Zero(t, rec.Get(domain.TierKid))
}

func adminReq(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.SetBasicAuth(AdminUser, adminPassword)
	return req
}

func TestAdmin_RequiresAuth(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/admin/sync-inventory", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sync-inventory", nil)
	req.SetBasicAuth(AdminUser, "wrong")
	assert.Equal(t, http.StatusUnauthorized, e.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/sync-inventory", nil)
	req.SetBasicAuth("root", adminPassword)
	assert.Equal(t, http.StatusUnauthorized, e.do(req).Code)
}

func TestAdmin_SyncInventory(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()

	b := payment.Booking{NightKey: "11-nov", CustomerName: "Sam", Quantities: domain.Quantities{domain.TierKid: 2}}
	e.ledger.checkouts = []payment.Checkout{{ID: "cs_1", Metadata: b.Metadata()}}

	require.NoError(t, e.store.SetInventory(ctx, "11-nov", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierKid: 7},
	}))

	w := e.do(adminReq(http.MethodGet, "/api/admin/sync-inventory"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_discrepancy":true`)

	w = e.do(adminReq(http.MethodPost, "/api/admin/sync-inventory"))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SyncResponse](t, w)
	require.NotEmpty(t, resp.Updated)
	assert.Equal(t, 7, resp.Updated[0].Previous[domain.TierKid])
	assert.Equal(t, 2, resp.Updated[0].Current[domain.TierKid])

	rec, err := e.store.GetInventory(ctx, "11-nov")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Get(domain.TierKid))
}

func TestAdmin_InitInventory(t *testing.T) {
	e := newEnv(t, envOpts{})

	w := e.do(adminReq(http.MethodPost, "/api/admin/init-inventory?overwrite=true"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, catalog.Season().Len(), decode[InitInventoryResponse](t, w).Initialized)
}

func TestAdmin_OrdersCSV(t *testing.T) {
	e := newEnv(t, envOpts{})

	b := payment.Booking{NightKey: "26-nov", CustomerName: "Alex", Quantities: domain.Quantities{domain.TierAdultFull: 2}}
	e.ledger.checkouts = []payment.Checkout{{
		ID:            "cs_9",
		CustomerEmail: "alex@example.com",
		AmountTotal:   2000,
		Currency:      "gbp",
		Metadata:      b.Metadata(),
	}}

	w := e.do(adminReq(http.MethodGet, "/api/admin/orders"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[OrdersResponse](t, w).Count)

	w = e.do(adminReq(http.MethodGet, "/api/admin/orders.csv"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header := rows[0]
	assert.Equal(t, []string{"checkout_id", "night", "night_name", "customer_name", "customer_email",
		"kid_tickets", "adult_drink_tickets", "adult_full_tickets", "amount_total", "currency", "created_at"}, header)
	assert.Equal(t, "cs_9", rows[1][0])
	assert.Equal(t, "Alex", rows[1][3])
	assert.Equal(t, "2", rows[1][7])
}

func TestAvailabilityStream(t *testing.T) {
	e := newEnv(t, envOpts{})

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/availability/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
				events <- strings.TrimSpace(name)
			}
		}
		close(events)
	}()

	assert.Equal(t, "availability", <-events)

	// The subscription starts asynchronously; publish until it is seen.
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case name := <-events:
			if name == "night" {
				return
			}
		case <-tick.C:
			require.NoError(t, e.feed.PublishNightChanged(ctx, "11-nov"))
		case <-deadline:
			t.Fatal("no night event received")
		}
	}
}

func TestAvailabilityStream_WithoutFeed(t *testing.T) {
	e := newEnv(t, envOpts{})
	e.router = NewRouter(Deps{Services: e.svcs}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/availability/stream", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
