package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/escalation/domain"
	"github.com/smallbiznis/orderdesk/internal/escalation/repository"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	orderrepository "github.com/smallbiznis/orderdesk/internal/order/repository"
	"github.com/smallbiznis/orderdesk/internal/providers/webhook"
	"github.com/smallbiznis/orderdesk/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeWebhook struct {
	mu    sync.Mutex
	fail  bool
	cards []webhook.Card
	urls  []string
}

func (f *fakeWebhook) Post(_ context.Context, url string, card webhook.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.cards = append(f.cards, card)
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeWebhook) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards)
}

// gatedWebhook blocks every post until release is closed.
type gatedWebhook struct {
	entered chan struct{}
	release chan struct{}
	fail    bool
	calls   atomic.Int32
}

func newGatedWebhook(fail bool) *gatedWebhook {
	return &gatedWebhook{entered: make(chan struct{}, 1), release: make(chan struct{}), fail: fail}
}

func (g *gatedWebhook) Post(ctx context.Context, _ string, _ webhook.Card) error {
	g.calls.Add(1)
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	if g.fail {
		return errors.New("gateway timeout")
	}
	return nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingBroadcaster) BroadcastSystemAlert(_ context.Context, title, _ string, _ string, _ map[string]any) {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
}

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	repo  domain.Repository
	hook  *fakeWebhook
	svc   *Service
}

func setup(t *testing.T, defaultURL string, provider webhook.Provider, broadcaster domain.AlertBroadcaster) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Escalation{}, &orderdomain.Order{}, &orderdomain.OrderItem{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	hook, _ := provider.(*fakeWebhook)
	fc := clock.NewFakeClock(baseTime)
	repo := repository.Provide()
	cfg := config.Config{Webhook: config.WebhookConfig{DefaultURL: defaultURL}}

	svc := New(Params{
		DB:          conn,
		Log:         zaptest.NewLogger(t),
		GenID:       node,
		Clock:       fc,
		Cfg:         cfg,
		Repo:        repo,
		OrderRepo:   orderrepository.Provide(),
		Webhook:     provider,
		Broadcaster: broadcaster,
	}).(*Service)

	return &testEnv{db: conn, node: node, clock: fc, repo: repo, hook: hook, svc: svc}
}

func (e *testEnv) reload(t *testing.T, id snowflake.ID) *domain.Escalation {
	t.Helper()
	item, err := e.repo.FindByID(context.Background(), e.db, id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}

func breachRequest(orderID string) domain.CreateEscalationRequest {
	return domain.CreateEscalationRequest{
		OrderID:   orderID,
		AlertType: "SLA_BREACH",
		Severity:  "HIGH",
		Message:   "Order ORD-1 breached its SLA",
	}
}

func TestCreateDeliversToDefaultURL(t *testing.T) {
	hook := &fakeWebhook{}
	env := setup(t, "https://hooks.example.com/teams", hook, nil)

	created, err := env.svc.Create(context.Background(), breachRequest("42"))
	require.NoError(t, err)
	env.svc.Wait()

	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, "https://hooks.example.com/teams", created.WebhookURL)
	require.Equal(t, 1, hook.calls())
	assert.Equal(t, "https://hooks.example.com/teams", hook.urls[0])

	stored := env.reload(t, created.ID)
	assert.Equal(t, domain.StatusSent, stored.Status)
	require.NotNil(t, stored.NotificationSentAt)
	assert.True(t, stored.NotificationSentAt.Equal(baseTime))
}

func TestCreateIsIdempotentWhileOpen(t *testing.T) {
	hook := &fakeWebhook{}
	env := setup(t, "https://hooks.example.com/teams", hook, nil)
	ctx := context.Background()

	first, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)
	env.svc.Wait()

	second, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)
	env.svc.Wait()

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, hook.calls())

	_, err = env.svc.Resolve(ctx, first.ID.String())
	require.NoError(t, err)

	third, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)
	env.svc.Wait()
	assert.NotEqual(t, first.ID, third.ID)
}

func TestCreateValidation(t *testing.T) {
	env := setup(t, "", &fakeWebhook{}, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateEscalationRequest
		want error
	}{
		{"missing order", domain.CreateEscalationRequest{AlertType: "SLA_BREACH", Message: "m"}, domain.ErrInvalidOrderID},
		{"bad alert type", domain.CreateEscalationRequest{OrderID: "1", AlertType: "NOPE", Message: "m"}, domain.ErrInvalidAlertType},
		{"bad severity", domain.CreateEscalationRequest{OrderID: "1", AlertType: "SLA_BREACH", Severity: "EXTREME", Message: "m"}, domain.ErrInvalidSeverity},
		{"empty message", domain.CreateEscalationRequest{OrderID: "1", AlertType: "SLA_BREACH", Message: "  "}, domain.ErrInvalidMessage},
		{"bad url", domain.CreateEscalationRequest{OrderID: "1", AlertType: "SLA_BREACH", Message: "m", WebhookURL: "ftp://x"}, domain.ErrInvalidURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateDefaultsSeverityToMedium(t *testing.T) {
	env := setup(t, "", &fakeWebhook{}, nil)

	created, err := env.svc.Create(context.Background(), domain.CreateEscalationRequest{
		OrderID:   "7",
		AlertType: "system_alert",
		Message:   "disk almost full",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityMedium, created.Severity)
	assert.Equal(t, domain.AlertTypeSystemAlert, created.AlertType)
}

func TestCreateCriticalBroadcastsSystemAlert(t *testing.T) {
	b := &recordingBroadcaster{}
	env := setup(t, "", &fakeWebhook{}, b)

	req := breachRequest("42")
	req.Severity = "CRITICAL"
	_, err := env.svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = env.svc.Create(context.Background(), domain.CreateEscalationRequest{
		OrderID: "43", AlertType: "SLA_BREACH", Severity: "LOW", Message: "minor",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"🚨 SLA Breach Alert"}, b.titles)
}

func TestProcessPendingWithoutURLMarksFailed(t *testing.T) {
	hook := &fakeWebhook{}
	env := setup(t, "", hook, nil)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)

	res, err := env.svc.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryResult{Attempted: 1, Failed: 1}, res)
	assert.Equal(t, 0, hook.calls())

	stored := env.reload(t, created.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, domain.MaxRetryCount, stored.RetryCount)

	env.clock.Advance(time.Minute)
	res, err = env.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
}

func TestResolveDuringDeliveryIsKept(t *testing.T) {
	for _, tc := range []struct {
		name string
		fail bool
	}{
		{"delivered", false},
		{"failed", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hook := newGatedWebhook(tc.fail)
			env := setup(t, "https://hooks.example.com/teams", hook, nil)
			ctx := context.Background()

			created, err := env.svc.Create(ctx, breachRequest("42"))
			require.NoError(t, err)

			select {
			case <-hook.entered:
			case <-time.After(5 * time.Second):
				t.Fatal("delivery never started")
			}
			_, err = env.svc.Resolve(ctx, created.ID.String())
			require.NoError(t, err)

			close(hook.release)
			env.svc.Wait()

			stored := env.reload(t, created.ID)
			assert.Equal(t, domain.StatusResolved, stored.Status)
			assert.Equal(t, 0, stored.RetryCount)
			assert.Nil(t, stored.NotificationSentAt)

			res, err := env.svc.ProcessPending(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, res.Attempted)
			assert.Equal(t, int32(1), hook.calls.Load())
		})
	}
}

func TestProcessPendingSkipsDeliveryAlreadyInFlight(t *testing.T) {
	hook := newGatedWebhook(true)
	env := setup(t, "https://hooks.example.com/teams", hook, nil)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)
	<-hook.entered

	res, err := env.svc.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryResult{Attempted: 1, Failed: 1}, res)
	assert.Equal(t, int32(1), hook.calls.Load())

	close(hook.release)
	env.svc.Wait()

	stored := env.reload(t, created.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestUpdateDeliveryRequiresUnchangedRow(t *testing.T) {
	env := setup(t, "", &fakeWebhook{}, nil)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)

	applied, err := env.repo.UpdateDelivery(ctx, env.db, domain.DeliveryUpdate{
		ID:             created.ID,
		FromStatus:     domain.StatusPending,
		FromRetryCount: 0,
		Status:         domain.StatusPending,
		RetryCount:     1,
		UpdatedAt:      baseTime,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = env.repo.UpdateDelivery(ctx, env.db, domain.DeliveryUpdate{
		ID:             created.ID,
		FromStatus:     domain.StatusPending,
		FromRetryCount: 0,
		Status:         domain.StatusSent,
		RetryCount:     0,
		UpdatedAt:      baseTime,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, env.reload(t, created.ID).RetryCount)
}

func TestDeliveryRetriesStopAtCap(t *testing.T) {
	hook := &fakeWebhook{fail: true}
	env := setup(t, "https://hooks.example.com/teams", hook, nil)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)
	env.svc.Wait()

	stored := env.reload(t, created.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	_, err = env.svc.ProcessPending(ctx)
	require.NoError(t, err)
	stored = env.reload(t, created.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)

	_, err = env.svc.ProcessPending(ctx)
	require.NoError(t, err)
	stored = env.reload(t, created.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)

	env.clock.Advance(time.Minute)
	res, err := env.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)

	res, err = env.svc.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
	assert.Equal(t, 3, hook.calls())
}

func TestRetryFailedHonoursCooldown(t *testing.T) {
	hook := &fakeWebhook{}
	env := setup(t, "", hook, nil)
	ctx := context.Background()

	id := env.node.Generate()
	require.NoError(t, env.repo.Insert(ctx, env.db, &domain.Escalation{
		ID:         id,
		OrderID:    "42",
		AlertType:  domain.AlertTypeSLABreach,
		Severity:   domain.SeverityHigh,
		Status:     domain.StatusFailed,
		Message:    "breach",
		WebhookURL: "https://hooks.example.com/teams",
		RetryCount: 1,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}))

	res, err := env.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)

	env.clock.Advance(6 * time.Second)
	res, err = env.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryResult{Attempted: 1, Sent: 1}, res)

	stored := env.reload(t, id)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestResolve(t *testing.T) {
	env := setup(t, "", &fakeWebhook{}, nil)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, breachRequest("42"))
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	resolved, err := env.svc.Resolve(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(baseTime.Add(time.Minute)))

	_, err = env.svc.Resolve(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.Resolve(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListAndOpenCounts(t *testing.T) {
	env := setup(t, "", &fakeWebhook{}, nil)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, breachRequest("1"))
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	critical := breachRequest("2")
	critical.Severity = "CRITICAL"
	second, err := env.svc.Create(ctx, critical)
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	third, err := env.svc.Create(ctx, domain.CreateEscalationRequest{
		OrderID: "2", AlertType: "APPROACHING_SLA", Severity: "HIGH", Message: "close",
	})
	require.NoError(t, err)
	_, err = env.svc.Resolve(ctx, third.ID.String())
	require.NoError(t, err)

	all, err := env.svc.List(ctx, domain.ListEscalationRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)

	forOrder, err := env.svc.List(ctx, domain.ListEscalationRequest{OrderID: "2"})
	require.NoError(t, err)
	require.Len(t, forOrder, 2)
	assert.Equal(t, second.ID, forOrder[1].ID)

	counts, err := env.svc.OpenCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.SeverityHigh])
	assert.Equal(t, int64(1), counts[domain.SeverityCritical])
}

func TestDeliveryCardCarriesOrderFacts(t *testing.T) {
	var received atomic.Pointer[webhook.Card]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var card webhook.Card
		if err := json.NewDecoder(r.Body).Decode(&card); err == nil {
			received.Store(&card)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setup(t, srv.URL, webhook.NewHTTP(time.Second), nil)
	ctx := context.Background()

	orderID := env.node.Generate()
	require.NoError(t, env.db.Create(&orderdomain.Order{
		ID:                orderID,
		OrderNo:           "ORD-001",
		CustomerID:        "cust-1",
		CustomerName:      "Somchai Jaidee",
		CustomerEmail:     "somchai@example.com",
		OrderDate:         baseTime.Add(-2 * time.Hour),
		Status:            orderdomain.StatusProcessing,
		Channel:           "GRAB",
		BusinessUnit:      "TOPS",
		PaymentMethod:     "CARD",
		SLATargetSeconds:  300,
		SLAElapsedSeconds: 7500,
		SLAStatus:         "BREACH",
		CreatedAt:         baseTime,
		UpdatedAt:         baseTime,
	}).Error)

	req := breachRequest(orderID.String())
	req.Severity = "CRITICAL"
	_, err := env.svc.Create(ctx, req)
	require.NoError(t, err)
	env.svc.Wait()

	card := received.Load()
	require.NotNil(t, card)
	assert.Equal(t, "🚨 SLA Breach Alert", card.Title)
	assert.Equal(t, "FF0000", card.Color)
	require.Len(t, card.Sections, 1)

	facts := map[string]string{}
	for _, f := range card.Sections[0].Facts {
		facts[f.Name] = f.Value
	}
	assert.Equal(t, "SLA BREACH", facts["Alert Type"])
	assert.Equal(t, "ORD-001", facts["Order Number"])
	assert.Equal(t, "Somchai Jaidee", facts["Customer"])
	assert.Equal(t, "2h 5m", facts["Elapsed Time"])
}

func TestCardStyling(t *testing.T) {
	assert.Equal(t, "FF8C00", severityColor(domain.SeverityHigh))
	assert.Equal(t, "FFD700", severityColor(domain.SeverityMedium))
	assert.Equal(t, "32CD32", severityColor(domain.SeverityLow))
	assert.Equal(t, "808080", severityColor("UNKNOWN"))
	assert.Equal(t, "⚠️ Approaching SLA Deadline", cardTitle(domain.AlertTypeApproachingSLA))
	assert.Equal(t, "0h 0m", formatElapsed(-5))
}
