package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/audit"
	"github.com/Dan9191/bank-cards/internal/lock"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

const (
	defaultLockTimeout = 5 * time.Second
	defaultCardBIN     = "400000"
)

// Notifier delivers owner-facing messages. Failures are logged by the service.
type Notifier interface {
	SendTransferNotification(to, username string, t *models.Transfer) error
	SendCardBlockedNotification(to, username string, card *models.Card) error
	SendBlockRequestNotification(to, username string, card *models.Card) error
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Policy      models.TransferPolicy
	LockTimeout time.Duration
	CardBIN     string
	Audit       audit.Sink
	Notifier    Notifier
	Now         func() time.Time
}

// Service handles business logic
type Service struct {
	repo        *repository.Repository
	locks       *lock.Locker
	cipher      *utils.CardCipher
	log         *logrus.Logger
	audit       audit.Sink
	notifier    Notifier
	policy      models.TransferPolicy
	lockTimeout time.Duration
	cardBIN     string
	now         func() time.Time
}

// NewService initializes a new service
func NewService(repo *repository.Repository, locks *lock.Locker, cipher *utils.CardCipher, log *logrus.Logger, opts Options) *Service {
	s := &Service{
		repo:        repo,
		locks:       locks,
		cipher:      cipher,
		log:         log,
		audit:       opts.Audit,
		notifier:    opts.Notifier,
		policy:      opts.Policy,
		lockTimeout: opts.LockTimeout,
		cardBIN:     opts.CardBIN,
		now:         opts.Now,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if !s.policy.Valid() {
		s.policy = models.PolicyOwnToOwnOnly
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = defaultLockTimeout
	}
	if s.cardBIN == "" {
		s.cardBIN = defaultCardBIN
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Policy returns the transfer policy in force
func (s *Service) Policy() models.TransferPolicy {
	return s.policy
}

func (s *Service) clock() (now, today time.Time) {
	now = s.now().UTC()
	return now, models.DateOf(now)
}

// lockCards takes the per-card locks for ids, giving up after the configured timeout
func (s *Service) lockCards(ctx context.Context, ids ...int64) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var (
		unlock func()
		err    error
	)
	if len(ids) == 2 {
		unlock, err = s.locks.LockPair(lockCtx, ids[0], ids[1])
	} else {
		unlock, err = s.locks.Lock(lockCtx, ids[0])
	}
	if err != nil {
		return nil, storeError("lock card", err)
	}
	return unlock, nil
}

func (s *Service) record(ctx context.Context, event models.AuditEvent) {
	now, _ := s.clock()
	s.audit.Record(ctx, audit.Stamp(event, now))
}

// owner looks up a card owner for notifications; lookup failures are logged
func (s *Service) owner(ctx context.Context, userID int64) (*models.User, bool) {
	if s.notifier == nil {
		return nil, false
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.log.Warnf("Failed to load user %d for notification: %v", userID, err)
		return nil, false
	}
	return user, true
}
