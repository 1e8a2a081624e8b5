// Package service computes lane layouts. It resolves which kinds a request
// covers, fetches their candidates from the subject store and packs each
// kind with the lane engine.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// SubjectStore is the read side of the subject store.
type SubjectStore interface {
	Kinds(ctx context.Context) ([]string, error)
	Categories(ctx context.Context) ([]string, error)
	Candidates(ctx context.Context, kind string, from, to float64) ([]lanes.Subject, error)
}

// Options tunes store access.
type Options struct {
	FetchConcurrency int
	FetchTimeout     time.Duration
	FetchAttempts    int
	RetryDelay       time.Duration
	Breaker          resilience.CircuitBreakerConfig
}

// OptionsFromConfig maps the timeline config section onto Options.
func OptionsFromConfig(cfg config.TimelineConfig) Options {
	return Options{
		FetchConcurrency: cfg.FetchConcurrency,
		FetchTimeout:     cfg.FetchTimeout,
		FetchAttempts:    cfg.FetchAttempts,
		RetryDelay:       cfg.RetryDelay,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
			HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
		},
	}
}

type Service struct {
	store   SubjectStore
	engine  *lanes.Engine
	opts    Options
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Service. m may be nil.
func New(store SubjectStore, engine *lanes.Engine, opts Options, m *metrics.Metrics) *Service {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.FetchAttempts <= 0 {
		opts.FetchAttempts = 1
	}
	bcfg := opts.Breaker
	bcfg.IsFailure = countsAgainstStore
	if m != nil {
		bcfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Service{
		store:   store,
		engine:  engine,
		opts:    opts,
		breaker: resilience.NewCircuitBreaker("subject-store", bcfg),
		metrics: m,
		logger:  slog.Default().With("component", "layout-service"),
	}
}

// countsAgainstStore ignores caller cancellation so abandoned requests do
// not trip the breaker.
func countsAgainstStore(err error) bool {
	return !apperrors.Is(err, context.Canceled)
}

// Layout packs every kind the request covers. If any kind fails, the whole
// request fails.
func (s *Service) Layout(ctx context.Context, req timeline.LayoutRequest) (lanes.KindResults, error) {
	ctx, span := tracing.StartSpan(ctx, "layout", logger.RequestID(ctx))
	log := logger.FromContext(ctx)
	defer span.End(log)

	kinds, err := s.resolveKinds(ctx, req.Kind)
	if err != nil {
		return nil, err
	}
	span.SetAttr("kinds", len(kinds))

	candidates, err := s.fetchAll(ctx, kinds, req.From, req.To)
	if err != nil {
		return nil, err
	}

	_, packSpan := tracing.StartChildSpan(ctx, "pack")
	defer packSpan.End(log)
	query := req.Query()
	results := make(lanes.KindResults, len(kinds))
	for i, kind := range kinds {
		res, err := s.engine.Run(kind, candidates[i], query)
		if err != nil {
			log.Error("lane packing failed", "kind", kind, "error", err)
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.SubjectsPacked.WithLabelValues(kind).Add(float64(len(candidates[i])))
			s.metrics.KindPages.WithLabelValues(kind).Observe(float64(res.TotalPages))
		}
		results[kind] = res
	}
	return results, nil
}

func (s *Service) resolveKinds(ctx context.Context, kind string) ([]string, error) {
	known, err := s.Kinds(ctx)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return known, nil
	}
	if !slices.Contains(known, kind) {
		return nil, apperrors.Newf(apperrors.ErrKindNotFound, http.StatusNotFound, "unknown kind %q", kind)
	}
	return []string{kind}, nil
}

// fetchAll reads candidates for each kind concurrently. The result is
// indexed like kinds.
func (s *Service) fetchAll(ctx context.Context, kinds []string, from, to float64) ([][]lanes.Subject, error) {
	out := make([][]lanes.Subject, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i, kind := range kinds {
		g.Go(func() error {
			fctx, span := tracing.StartChildSpan(gctx, "fetch")
			span.SetAttr("kind", kind)
			defer span.End(nil)

			start := time.Now()
			err := s.call(fctx, "fetch candidates", func(ctx context.Context) error {
				subjects, err := s.store.Candidates(ctx, kind, from, to)
				if err != nil {
					return err
				}
				out[i] = subjects
				return nil
			})
			if s.metrics != nil {
				s.metrics.StoreFetchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			}
			if err != nil {
				return fmt.Errorf("kind %q: fetching candidates: %w", kind, err)
			}
			span.SetAttr("candidates", len(out[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Kinds lists the known kinds.
func (s *Service) Kinds(ctx context.Context) ([]string, error) {
	var kinds []string
	err := s.call(ctx, "list kinds", func(ctx context.Context) error {
		var err error
		kinds, err = s.store.Kinds(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing kinds: %w", err)
	}
	return kinds, nil
}

// Categories lists every category across all subjects.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	err := s.call(ctx, "list categories", func(ctx context.Context) error {
		var err error
		cats, err = s.store.Categories(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return cats, nil
}

// call runs fn against the store with a per-attempt timeout, behind the
// circuit breaker, retrying transient failures.
func (s *Service) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cfg := resilience.RetryConfig{
		Attempts: s.opts.FetchAttempts,
		Backoff:  resilience.Backoff{Initial: s.opts.RetryDelay},
	}
	return resilience.Retry(ctx, name, cfg, func(ctx context.Context) error {
		err := s.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, s.opts.FetchTimeout, name, fn)
		})
		switch {
		case err == nil:
			return nil
		case apperrors.Is(err, resilience.ErrCircuitOpen):
			return resilience.Permanent(fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err))
		case ctx.Err() != nil:
			return resilience.Permanent(err)
		}
		return err
	})
}

// BreakerState reports the store circuit breaker's state.
func (s *Service) BreakerState() resilience.State {
	return s.breaker.State()
}

func (s *Service) BreakerSnapshot() resilience.Snapshot {
	return s.breaker.Snapshot()
}
