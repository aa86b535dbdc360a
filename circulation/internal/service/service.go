package service

import (
	"context"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/allocator"
	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/events"
	"github.com/Astemirdum/library-circulation/circulation/internal/metrics"
	"github.com/Astemirdum/library-circulation/circulation/internal/policy"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/clock"
)

const (
	DefaultAllocRetries     = 3
	DefaultAdmissionRetries = 10
)

type Service struct {
	log       *zap.Logger
	repo      repository.Repository
	policy    policy.Policy
	clock     clock.Clock
	publisher events.Publisher
	metrics   *metrics.Metrics
	validate  *validator.Validate

	codeLocks *allocator.KeyedMutex
	intn      func(n int) int

	allocRetries     int
	admissionRetries int
}

type Option func(s *Service)

func WithPolicy(p policy.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetries bounds how often a colliding book code or admission number is
// reallocated. Non-positive values keep the defaults.
func WithRetries(alloc, admission int) Option {
	return func(s *Service) {
		if alloc > 0 {
			s.allocRetries = alloc
		}
		if admission > 0 {
			s.admissionRetries = admission
		}
	}
}

// WithRandom replaces the digit source for generated admission numbers.
func WithRandom(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

func NewService(repo repository.Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:              log.Named("service"),
		repo:             repo,
		policy:           policy.Default(),
		clock:            clock.Real{},
		publisher:        events.Noop{},
		validate:         validator.New(),
		codeLocks:        allocator.NewKeyedMutex(),
		intn:             lockedRand(),
		allocRetries:     DefaultAllocRetries,
		admissionRetries: DefaultAdmissionRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	e.Timestamp = s.clock.Now()
	s.publisher.Publish(ctx, e)
}

func lockedRand() func(n int) int {
	var mu sync.Mutex
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		return r.Intn(n)
	}
}

// maxLen rejects values wider than their column.
func maxLen(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return errs.Validation("%s must be at most %d characters", field, limit)
	}
	return nil
}
