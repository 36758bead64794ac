package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/fulfillment/internal/cache"
	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/events"
	"kasirinaja/fulfillment/internal/lock"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

const producerName = "fulfillment"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Deps are the collaborators around the repository. Nil fields fall back to
// in-process implementations.
type Deps struct {
	Locker    lock.Locker
	Cache     cache.OrderCache
	Publisher events.Publisher
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

type Policy struct {
	DefaultStoreID string
	// PointsEarnRate is the spend, net of tax, that earns one point.
	PointsEarnRate decimal.Decimal
	// PointRedemptionValue is the most one redeemed point may take off a total.
	PointRedemptionValue decimal.Decimal
	// RecheckTimeout bounds the re-read after a write timed out.
	RecheckTimeout time.Duration
}

type Service struct {
	repo           store.Repository
	ledger         StockLedger
	locker         lock.Locker
	cache          cache.OrderCache
	publisher      events.Publisher
	log            logrus.FieldLogger
	now            func() time.Time
	defaultStoreID string
	pointsRate     decimal.Decimal
	pointValue     decimal.Decimal
	recheckTimeout time.Duration
}

func New(repo store.Repository, deps Deps, policy Policy) *Service {
	if policy.DefaultStoreID == "" {
		policy.DefaultStoreID = "main-store"
	}
	if !policy.PointsEarnRate.IsPositive() {
		policy.PointsEarnRate = decimal.NewFromInt(10000)
	}
	if !policy.PointRedemptionValue.IsPositive() {
		policy.PointRedemptionValue = decimal.NewFromInt(100)
	}
	if policy.RecheckTimeout <= 0 {
		policy.RecheckTimeout = 5 * time.Second
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryOrderCache()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:           repo,
		ledger:         StockLedger{now: deps.Now},
		locker:         deps.Locker,
		cache:          deps.Cache,
		publisher:      deps.Publisher,
		log:            deps.Logger.WithField("module", "service"),
		now:            deps.Now,
		defaultStoreID: policy.DefaultStoreID,
		pointsRate:     policy.PointsEarnRate,
		pointValue:     policy.PointRedemptionValue,
		recheckTimeout: policy.RecheckTimeout,
	}
}

func (s *Service) DefaultStoreID() string {
	return s.defaultStoreID
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

// obtainOrderLock serializes commands on one order. A busy lock surfaces as
// a concurrent modification.
func (s *Service) obtainOrderLock(ctx context.Context, orderID string) (func(), error) {
	release, err := s.locker.Obtain(ctx, orderID)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, &ConcurrentModificationError{OrderID: orderID}
	}
	return nil, s.persistenceFailure("obtain_order_lock", orderID, err)
}

// persistenceFailure logs the cause and returns the generic error.
func (s *Service) persistenceFailure(op string, entityID string, err error) error {
	s.log.WithFields(logrus.Fields{
		"op":        op,
		"entity_id": entityID,
	}).WithError(err).Error("persistence failure")
	return &PersistenceError{Op: op, Err: err}
}

// fail classifies err and logs store failures once.
func (s *Service) fail(op string, entityID string, err error) error {
	var persist *PersistenceError
	if errors.As(err, &persist) {
		return err
	}
	classified := classify(op, err)
	fields := logrus.Fields{"op": op, "entity_id": entityID}
	if errors.As(classified, &persist) {
		s.log.WithFields(fields).WithError(err).Error("persistence failure")
		return classified
	}
	s.log.WithFields(fields).WithError(err).Debug("command rejected")
	return classified
}

// detached returns a context for follow-up work that must outlive a
// cancelled or expired request.
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.recheckTimeout)
}

func (s *Service) publish(ctx context.Context, eventType string, correlationID string, payload any) {
	env, err := events.New(producerName, eventType, correlationID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"event_type":     eventType,
			"correlation_id": correlationID,
		}).WithError(err).Warn("publish event failed")
	}
}

// cacheOrder writes the confirmed order through to the local cache.
func (s *Service) cacheOrder(ctx context.Context, order domain.Order) {
	if err := s.cache.Upsert(ctx, order); err != nil {
		s.log.WithField("order_id", order.ID).WithError(err).Warn("order cache write-through failed")
	}
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).WithError(err).Warn("failed to write audit log")
	}
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: actor required", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not perform this action", ErrForbidden, actor.Role)
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
