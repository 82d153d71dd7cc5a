package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/cache"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/escalation/domain"
	obsmetrics "github.com/smallbiznis/orderdesk/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/providers/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	orderSnapshotTTL    = 30 * time.Second
	maxAsyncDeliveries  = 8
	asyncDeliveryBudget = 30 * time.Second
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        domain.Repository
	OrderRepo   orderdomain.Repository
	Webhook     webhook.Provider
	Metrics     *obsmetrics.Metrics     `optional:"true"`
	Broadcaster domain.AlertBroadcaster `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	orderRepo   orderdomain.Repository
	webhook     webhook.Provider
	metrics     *obsmetrics.Metrics
	broadcaster domain.AlertBroadcaster
	defaultURL  string

	orders   cache.Cache[snowflake.ID, orderdomain.Order]
	inflight sync.WaitGroup
	active   sync.Map
	sem      *semaphore.Weighted
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("escalation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		orderRepo:   p.OrderRepo,
		webhook:     p.Webhook,
		metrics:     p.Metrics,
		broadcaster: p.Broadcaster,
		defaultURL:  strings.TrimSpace(p.Cfg.Webhook.DefaultURL),
		orders:      cache.NewTTLCacheWithClock[snowflake.ID, orderdomain.Order](p.Clock),
		sem:         semaphore.NewWeighted(maxAsyncDeliveries),
	}
}

// Create returns the open escalation for the same order and alert type when
// one exists. Otherwise it persists a new one and, if a webhook URL is known,
// starts delivery in the background.
func (s *Service) Create(ctx context.Context, req domain.CreateEscalationRequest) (domain.Escalation, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Escalation{}, domain.ErrInvalidOrderID
	}
	alertType := domain.AlertType(strings.ToUpper(strings.TrimSpace(req.AlertType)))
	if !alertType.Valid() {
		return domain.Escalation{}, domain.ErrInvalidAlertType
	}
	severity := domain.SeverityMedium
	if v := strings.TrimSpace(req.Severity); v != "" {
		severity = domain.Severity(strings.ToUpper(v))
		if !severity.Valid() {
			return domain.Escalation{}, domain.ErrInvalidSeverity
		}
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.Escalation{}, domain.ErrInvalidMessage
	}
	webhookURL := strings.TrimSpace(req.WebhookURL)
	if webhookURL != "" && !isValidURL(webhookURL) {
		return domain.Escalation{}, domain.ErrInvalidURL
	}
	if webhookURL == "" {
		webhookURL = s.defaultURL
	}

	existing, err := s.repo.FindOpen(ctx, s.db, orderID, alertType)
	if err != nil {
		return domain.Escalation{}, err
	}
	if existing != nil {
		s.log.Warn("escalation already open",
			zap.String("order_id", orderID),
			zap.String("alert_type", string(alertType)),
			zap.String("escalation_id", existing.ID.String()),
		)
		return *existing, nil
	}

	now := s.clock.Now()
	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	escalation := domain.Escalation{
		ID:         s.genID.Generate(),
		OrderID:    orderID,
		AlertType:  alertType,
		Severity:   severity,
		Status:     domain.StatusPending,
		Message:    message,
		WebhookURL: webhookURL,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, &escalation); err != nil {
		return domain.Escalation{}, err
	}

	s.log.Info("escalation created",
		zap.String("escalation_id", escalation.ID.String()),
		zap.String("order_id", orderID),
		zap.String("alert_type", string(alertType)),
		zap.String("severity", string(severity)),
	)

	if severity == domain.SeverityCritical && s.broadcaster != nil {
		s.broadcaster.BroadcastSystemAlert(ctx, cardTitle(alertType), message, string(severity), map[string]any{
			"escalation_id": escalation.ID.String(),
			"order_id":      orderID,
			"alert_type":    string(alertType),
		})
	}

	if webhookURL != "" {
		s.deliverAsync(escalation.ID)
	}

	return escalation, nil
}

func (s *Service) deliverAsync(id snowflake.ID) {
	if !s.sem.TryAcquire(1) {
		s.log.Warn("delivery deferred to pending sweep", zap.String("escalation_id", id.String()))
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.sem.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), asyncDeliveryBudget)
		defer cancel()
		if _, err := s.deliver(ctx, id); err != nil {
			s.log.Error("immediate delivery failed", zap.String("escalation_id", id.String()), zap.Error(err))
		}
	}()
}

// Wait blocks until background deliveries started by Create have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) List(ctx context.Context, req domain.ListEscalationRequest) ([]domain.Escalation, error) {
	items, err := s.repo.List(ctx, s.db, strings.TrimSpace(req.OrderID), domain.ListLimit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Escalation, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) Resolve(ctx context.Context, id string) (domain.Escalation, error) {
	escalationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || escalationID == 0 {
		return domain.Escalation{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, escalationID)
	if err != nil {
		return domain.Escalation{}, err
	}
	if item == nil {
		return domain.Escalation{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	if err := s.repo.MarkResolved(ctx, s.db, escalationID, now); err != nil {
		return domain.Escalation{}, err
	}
	item.Status = domain.StatusResolved
	item.ResolvedAt = &now
	item.UpdatedAt = now
	return *item, nil
}

func (s *Service) OpenCounts(ctx context.Context) (map[domain.Severity]int64, error) {
	return s.repo.CountOpenBySeverity(ctx, s.db)
}

// ProcessPending delivers up to PendingBatchSize pending escalations concurrently.
func (s *Service) ProcessPending(ctx context.Context) (domain.DeliveryResult, error) {
	items, err := s.repo.ListDeliverable(ctx, s.db, domain.DeliverableFilter{
		Status:        domain.StatusPending,
		MaxRetryCount: domain.MaxRetryCount,
		Limit:         domain.PendingBatchSize,
	})
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	if len(items) == 0 {
		return domain.DeliveryResult{}, nil
	}
	s.log.Info("processing pending escalations", zap.Int("count", len(items)))

	outcomes := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxAsyncDeliveries)
	for i, item := range items {
		i, id := i, item.ID
		g.Go(func() error {
			sent, err := s.deliver(gctx, id)
			if err != nil {
				s.log.Warn("pending delivery failed", zap.String("escalation_id", id.String()), zap.Error(err))
			}
			outcomes[i] = sent
			return nil
		})
	}
	_ = g.Wait()

	return summarize(outcomes), ctx.Err()
}

// RetryFailed retries failed escalations that are under the retry cap and
// have cooled down. Deliveries run one after another.
func (s *Service) RetryFailed(ctx context.Context) (domain.DeliveryResult, error) {
	cutoff := s.clock.Now().Add(-domain.RetryCooldown)
	items, err := s.repo.ListDeliverable(ctx, s.db, domain.DeliverableFilter{
		Status:        domain.StatusFailed,
		MaxRetryCount: domain.MaxRetryCount,
		UpdatedBefore: &cutoff,
		Limit:         domain.RetryBatchSize,
	})
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	if len(items) == 0 {
		return domain.DeliveryResult{}, nil
	}
	s.log.Info("retrying failed escalations", zap.Int("count", len(items)))

	outcomes := make([]bool, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summarize(outcomes), err
		}
		sent, err := s.deliver(ctx, item.ID)
		if err != nil {
			s.log.Warn("retry delivery failed", zap.String("escalation_id", item.ID.String()), zap.Error(err))
		}
		outcomes = append(outcomes, sent)
	}
	return summarize(outcomes), nil
}

// deliver posts one escalation and records the outcome. The returned error
// describes the delivery failure; persistence errors are returned as well.
// Only PENDING and FAILED rows are posted, and the outcome is dropped when the
// row changed while the post was in flight.
func (s *Service) deliver(ctx context.Context, id snowflake.ID) (bool, error) {
	if _, busy := s.active.LoadOrStore(id, struct{}{}); busy {
		s.log.Debug("escalation delivery already in flight", zap.String("escalation_id", id.String()))
		return false, nil
	}
	defer s.active.Delete(id)

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		s.log.Error("escalation vanished before delivery", zap.String("escalation_id", id.String()))
		return false, nil
	}
	if item.Status != domain.StatusPending && item.Status != domain.StatusFailed {
		return false, nil
	}

	update := domain.DeliveryUpdate{
		ID:             item.ID,
		FromStatus:     item.Status,
		FromRetryCount: item.RetryCount,
	}

	if item.WebhookURL == "" {
		s.log.Error("no webhook url configured", zap.String("escalation_id", id.String()))
		s.metrics.RecordWebhookDelivery(ctx, string(item.AlertType), "no_url")
		update.Status = domain.StatusFailed
		update.RetryCount = max(item.RetryCount, domain.MaxRetryCount)
		update.UpdatedAt = s.clock.Now()
		return false, s.recordDelivery(ctx, update)
	}

	card := buildCard(*item, s.lookupOrder(ctx, item.OrderID))
	postErr := s.webhook.Post(ctx, item.WebhookURL, card)
	now := s.clock.Now()
	update.UpdatedAt = now

	if postErr == nil {
		s.metrics.RecordWebhookDelivery(ctx, string(item.AlertType), "sent")
		s.log.Info("escalation delivered", zap.String("escalation_id", id.String()))
		update.Status = domain.StatusSent
		update.RetryCount = item.RetryCount
		update.NotificationSentAt = &now
		return true, s.recordDelivery(ctx, update)
	}

	retries := item.RetryCount + 1
	update.Status = domain.StatusPending
	update.RetryCount = retries
	if retries >= domain.MaxRetryCount {
		update.Status = domain.StatusFailed
		s.log.Error("escalation abandoned after max retries",
			zap.String("escalation_id", id.String()),
			zap.Int("retry_count", retries),
		)
	}
	s.metrics.RecordWebhookDelivery(ctx, string(item.AlertType), "failed")
	if err := s.recordDelivery(ctx, update); err != nil {
		return false, err
	}
	return false, postErr
}

func (s *Service) recordDelivery(ctx context.Context, update domain.DeliveryUpdate) error {
	applied, err := s.repo.UpdateDelivery(ctx, s.db, update)
	if err != nil {
		return err
	}
	if !applied {
		s.log.Warn("escalation changed during delivery, outcome discarded",
			zap.String("escalation_id", update.ID.String()),
			zap.String("outcome", string(update.Status)),
		)
	}
	return nil
}

func (s *Service) lookupOrder(ctx context.Context, rawID string) *orderdomain.Order {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id == 0 {
		return nil
	}
	if order, ok := s.orders.Get(id); ok {
		return &order
	}
	order, err := s.orderRepo.FindByID(ctx, s.db, id)
	if err != nil {
		s.log.Warn("order lookup failed", zap.String("order_id", rawID), zap.Error(err))
		return nil
	}
	if order == nil {
		return nil
	}
	s.orders.Set(id, *order, orderSnapshotTTL)
	return order
}

func summarize(outcomes []bool) domain.DeliveryResult {
	res := domain.DeliveryResult{Attempted: len(outcomes)}
	for _, sent := range outcomes {
		if sent {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	return res
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
