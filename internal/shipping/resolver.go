package shipping

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ErrRuleNotFound is returned by a RuleRepository when a rule id does not exist or is
// inactive.
var ErrRuleNotFound = errors.New("shipping rule not found")

// RuleRepository is the read side of rule storage used by the engine.
type RuleRepository interface {
	FetchByID(ctx context.Context, id string) (*Rule, error)
	FetchActiveZones(ctx context.Context) ([]Rule, error)
	FetchZonesMatchingPostalCode(ctx context.Context, postalCode string) ([]Rule, error)
}

const defaultFetchConcurrency = 8

// ruleResolver memoizes rule lookups for a single computation pass. It must not be
// shared across passes so edited rules are picked up on the next request.
type ruleResolver struct {
	repo        RuleRepository
	concurrency int

	mu       sync.Mutex
	rules    map[string]*Rule
	failures int

	zones       []Rule
	zonesLoaded bool
}

func newRuleResolver(repo RuleRepository, concurrency int) *ruleResolver {
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	return &ruleResolver{
		repo:        repo,
		concurrency: concurrency,
		rules:       map[string]*Rule{},
	}
}

// resolution is the outcome of one resolve call. Failures combines the repository
// errors of rules that were left absent.
type resolution struct {
	Rules    map[string]Rule
	Failures error
}

// resolve fetches the distinct ids not yet memoized, concurrently, and returns every
// rule found among ids. Individual fetch failures leave the rule absent; only context
// cancellation is returned as an error.
func (r *ruleResolver) resolve(ctx context.Context, ids []string) (resolution, error) {
	var pending []string
	r.mu.Lock()
	for _, id := range NormalizeRuleIDs(ids) {
		if _, ok := r.rules[id]; !ok {
			pending = append(pending, id)
		}
	}
	r.mu.Unlock()

	var (
		g        errgroup.Group
		failMu   sync.Mutex
		failures []error
	)
	g.SetLimit(r.concurrency)
	for _, id := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rule, err := r.repo.FetchByID(ctx, id)
			if err != nil && !errors.Is(err, ErrRuleNotFound) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failMu.Lock()
				failures = append(failures, fmt.Errorf("fetch rule %s: %w", id, err))
				failMu.Unlock()
				rule = nil
			}
			r.mu.Lock()
			r.rules[id] = rule
			r.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resolution{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures += len(failures)
	found := make(map[string]Rule, len(ids))
	for _, id := range NormalizeRuleIDs(ids) {
		if rule := r.rules[id]; rule != nil {
			found[id] = *rule
		}
	}
	return resolution{Rules: found, Failures: multierr.Combine(failures...)}, nil
}

// activeZones returns zones for indirection lookups, loading them at most once per pass.
func (r *ruleResolver) activeZones(ctx context.Context, postalCode string, usePostalIndex bool) ([]Rule, error) {
	r.mu.Lock()
	if r.zonesLoaded {
		defer r.mu.Unlock()
		return r.zones, nil
	}
	r.mu.Unlock()

	var (
		zones []Rule
		err   error
	)
	if usePostalIndex && postalCode != "" {
		zones, err = r.repo.FetchZonesMatchingPostalCode(ctx, postalCode)
	} else {
		zones, err = r.repo.FetchActiveZones(ctx)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = zones
	r.zonesLoaded = true
	return zones, nil
}

func (r *ruleResolver) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}
