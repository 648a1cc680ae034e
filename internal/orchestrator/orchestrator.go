// Package orchestrator coordinates token collection requests end to end:
// cache lookup → provider fan-out with fallback → filtering → pagination →
// cache write, with single-flight coalescing of identical in-flight
// requests.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"tokengallery/internal/cache"
	"tokengallery/internal/domain"
	"tokengallery/internal/filter"
	"tokengallery/internal/metrics"
	"tokengallery/internal/provider"
)

// MissingParameterError is the caller-facing rejection for an absent
// subject identifier. Never retried.
type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s parameter is required", e.Param)
}

// RequestOptions shape one collection request.
type RequestOptions struct {
	Page         int
	PageSize     int
	ForceRefresh bool
	// Filters overrides the orchestrator's default filter configuration
	// when non-nil.
	Filters *domain.TokenFilters
	// Chronological sorts the token set by acquisition time ascending
	// before pagination. Applied at assembly on every request, so cached
	// entries serve both orderings.
	Chronological bool
}

// Options for creating an Orchestrator.
type Options struct {
	// Providers serve address and contract subjects, tried in ascending
	// priority order.
	Providers []provider.Provider
	// Bridge serves curation subjects.
	Bridge provider.CurationResolver
	// Store is the shared result cache.
	Store cache.Store

	DefaultFilters  *domain.TokenFilters
	EnableFallback  bool
	DefaultPageSize int
	// HealthInterval is the minimum gap between provider health refreshes.
	HealthInterval time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Collector
}

// Orchestrator is the top-level coordinator. Construct with New; one
// instance is safe for concurrent use.
type Orchestrator struct {
	providers       []provider.Provider
	bridge          provider.CurationResolver
	store           cache.Store
	defaults        domain.TokenFilters
	enableFallback  bool
	defaultPageSize int
	healthInterval  time.Duration

	group   singleflight.Group
	logger  *logrus.Logger
	metrics *metrics.Collector

	healthMu   sync.Mutex
	health     map[string]*domain.ProviderHealth
	lastHealth time.Time
	refreshing bool
}

// New creates an Orchestrator. Providers are ordered by ascending priority
// once at construction.
func New(opts Options) *Orchestrator {
	providers := make([]provider.Provider, len(opts.Providers))
	copy(providers, opts.Providers)
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority() < providers[j].Priority()
	})

	defaults := domain.DefaultFilters()
	if opts.DefaultFilters != nil {
		defaults = *opts.DefaultFilters
	}
	pageSize := opts.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	healthInterval := opts.HealthInterval
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Orchestrator{
		providers:       providers,
		bridge:          opts.Bridge,
		store:           opts.Store,
		defaults:        defaults,
		enableFallback:  opts.EnableFallback,
		defaultPageSize: pageSize,
		healthInterval:  healthInterval,
		logger:          logger,
		metrics:         opts.Metrics,
		health:          make(map[string]*domain.ProviderHealth),
	}
}

// GetTokenCollection serves an address (wallet) subject. Chronological
// ordering by acquisition time is applied before pagination when requested.
func (o *Orchestrator) GetTokenCollection(ctx context.Context, address string, opts RequestOptions) (*domain.CollectionResult, error) {
	if address == "" {
		return nil, &MissingParameterError{Param: "Address"}
	}
	return o.get(ctx, cache.SubjectAddress, address, opts, func(ctx context.Context, p provider.Provider, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
		return p.GetTokenBalances(ctx, address, domain.PaginationOptions{}, filters)
	})
}

// GetCollectionTokenCollection serves a contract subject: it enumerates the
// tokens minted under the contract, not a wallet's holdings.
func (o *Orchestrator) GetCollectionTokenCollection(ctx context.Context, contractAddress string, opts RequestOptions) (*domain.CollectionResult, error) {
	if contractAddress == "" {
		return nil, &MissingParameterError{Param: "ContractAddress"}
	}
	return o.get(ctx, cache.SubjectContract, contractAddress, opts, func(ctx context.Context, p provider.Provider, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
		return p.GetContractTokens(ctx, contractAddress, domain.PaginationOptions{}, filters)
	})
}

// GetCurationTokenCollection serves a curation subject through the bridge
// provider. The resolved set goes through the same filter and pagination
// path as the other subjects.
func (o *Orchestrator) GetCurationTokenCollection(ctx context.Context, curationID string, opts RequestOptions) (*domain.CollectionResult, error) {
	if curationID == "" {
		return nil, &MissingParameterError{Param: "CurationId"}
	}
	if o.bridge == nil {
		return nil, fmt.Errorf("no curation bridge configured")
	}
	return o.get(ctx, cache.SubjectCuration, curationID, opts, func(ctx context.Context, _ provider.Provider, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
		return o.bridge.GetCurationTokens(ctx, curationID, domain.PaginationOptions{}, filters)
	})
}

type fetchFunc func(ctx context.Context, p provider.Provider, filters domain.TokenFilters) ([]domain.UnifiedToken, error)

// flightResult is what all coalesced waiters of one fingerprint receive.
type flightResult struct {
	entry        *cache.Entry
	source       domain.CacheSource
	fetchTimeMs  int64
	filterTimeMs int64
}

func (o *Orchestrator) get(ctx context.Context, kind cache.SubjectKind, subjectID string, opts RequestOptions, fetch fetchFunc) (*domain.CollectionResult, error) {
	started := time.Now()

	filters := o.defaults
	if opts.Filters != nil {
		filters = *opts.Filters
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = o.defaultPageSize
	}

	fp := cache.NewFingerprint(kind, subjectID, filters, page, pageSize)

	if !opts.ForceRefresh {
		entry, found, err := o.store.Lookup(ctx, fp)
		if err != nil {
			// Cache faults degrade to a fresh fetch.
			o.logger.WithError(err).WithField("subject", subjectID).Warn("Cache lookup failed, fetching upstream")
		} else if found {
			if o.metrics != nil {
				o.metrics.CacheHit(string(kind))
			}
			result := o.assemble(entry, page, pageSize, opts.Chronological, domain.CacheInfo{
				Hit:         true,
				Source:      domain.CacheSourceCache,
				BuildTimeMs: entry.BuildTimeMs,
			}, 0, 0, started)
			o.observe(kind, domain.CacheSourceCache, started)
			return result, nil
		}
	}

	if o.metrics != nil {
		o.metrics.CacheMiss(string(kind))
	}

	v, err, shared := o.group.Do(fp.Key, func() (interface{}, error) {
		return o.buildEntry(ctx, kind, subjectID, fp, filters, fetch)
	})
	if err != nil {
		return nil, err
	}
	if shared && o.metrics != nil {
		o.metrics.Coalesced()
	}

	fr := v.(*flightResult)
	result := o.assemble(fr.entry, page, pageSize, opts.Chronological, domain.CacheInfo{
		Hit:         false,
		Source:      fr.source,
		BuildTimeMs: fr.entry.BuildTimeMs,
	}, fr.fetchTimeMs, fr.filterTimeMs, started)
	o.observe(kind, fr.source, started)
	return result, nil
}

// buildEntry runs the fetch-filter-write computation exactly once per
// in-flight fingerprint. Entries keep provider order; request-level
// ordering happens in assemble.
func (o *Orchestrator) buildEntry(ctx context.Context, kind cache.SubjectKind, subjectID string, fp cache.Fingerprint, filters domain.TokenFilters, fetch fetchFunc) (*flightResult, error) {
	fetchStart := time.Now()
	tokens, source, err := o.fetchWithFallback(ctx, kind, filters, fetch)
	if err != nil {
		return nil, err
	}
	fetchTimeMs := time.Since(fetchStart).Milliseconds()

	filterStart := time.Now()
	filtered, reasons := filter.ApplyWithReasons(tokens, filters)
	filterTimeMs := time.Since(filterStart).Milliseconds()
	if o.metrics != nil {
		for reason, count := range reasons {
			o.metrics.TokensExcluded(string(reason), count)
		}
	}

	entry := &cache.Entry{
		Tokens:      filtered,
		SubjectID:   subjectID,
		FilterHash:  fp.FilterHash,
		TotalItems:  len(filtered),
		BuiltAt:     time.Now(),
		BuildTimeMs: fetchTimeMs + filterTimeMs,
	}

	if err := o.store.Write(ctx, fp, entry); err != nil {
		// Soft failure: the result is still served, the next identical
		// request just recomputes.
		o.logger.WithError(err).WithField("subject", subjectID).Warn("Cache write failed")
	}

	return &flightResult{
		entry:        entry,
		source:       source,
		fetchTimeMs:  fetchTimeMs,
		filterTimeMs: filterTimeMs,
	}, nil
}

// fetchWithFallback tries providers in ascending priority order. Success
// through the primary tags the result "api"; success through any later
// provider tags it "hybrid".
func (o *Orchestrator) fetchWithFallback(ctx context.Context, kind cache.SubjectKind, filters domain.TokenFilters, fetch fetchFunc) ([]domain.UnifiedToken, domain.CacheSource, error) {
	if kind == cache.SubjectCuration {
		started := time.Now()
		tokens, err := fetch(ctx, nil, filters)
		o.observeProvider(o.bridge.Name(), "getCurationTokens", err, started)
		if err != nil {
			return nil, "", err
		}
		return tokens, domain.CacheSourceAPI, nil
	}

	var lastErr error
	for i, p := range o.providers {
		started := time.Now()
		tokens, err := fetch(ctx, p, filters)
		o.observeProvider(p.Name(), "fetch", err, started)
		if err == nil {
			if i == 0 {
				return tokens, domain.CacheSourceAPI, nil
			}
			if o.metrics != nil {
				o.metrics.Fallback()
			}
			return tokens, domain.CacheSourceHybrid, nil
		}

		lastErr = err
		if !o.enableFallback {
			break
		}
		o.logger.WithError(err).WithFields(logrus.Fields{
			"provider": p.Name(),
			"kind":     string(kind),
		}).Warn("Provider failed, trying fallback")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return nil, "", lastErr
}

// assemble computes the page window over the entry. Chronological ordering
// is a per-request view: the entry itself is shared between coalesced
// waiters and cache hits, so the sort operates on a copy.
func (o *Orchestrator) assemble(entry *cache.Entry, page, pageSize int, chronological bool, cacheInfo domain.CacheInfo, fetchTimeMs, filterTimeMs int64, started time.Time) *domain.CollectionResult {
	tokens := entry.Tokens
	if chronological {
		tokens = make([]domain.UnifiedToken, len(entry.Tokens))
		copy(tokens, entry.Tokens)
		sort.SliceStable(tokens, func(i, j int) bool {
			return tokens[i].AcquiredAt.Before(tokens[j].AcquiredAt)
		})
	}

	info := domain.NewPaginationInfo(page, pageSize, entry.TotalItems)
	return &domain.CollectionResult{
		Tokens:     domain.PageWindow(tokens, info),
		Pagination: info,
		Cache:      cacheInfo,
		Performance: domain.PerformanceInfo{
			TotalTimeMs:  time.Since(started).Milliseconds(),
			FetchTimeMs:  fetchTimeMs,
			FilterTimeMs: filterTimeMs,
		},
	}
}

// InvalidateCache removes cache entries for a subject. With clearAll=false
// only the active filter configuration's entries (every page window) are
// removed; with clearAll=true every configuration goes. filters selects the
// active configuration; nil means the orchestrator defaults.
func (o *Orchestrator) InvalidateCache(ctx context.Context, subjectID string, clearAll bool, filters *domain.TokenFilters) error {
	if subjectID == "" {
		return &MissingParameterError{Param: "Address"}
	}
	if o.metrics != nil {
		o.metrics.CacheInvalidation()
	}
	if clearAll {
		return o.store.InvalidateAll(ctx, subjectID)
	}
	active := o.defaults
	if filters != nil {
		active = *filters
	}
	return o.store.Invalidate(ctx, subjectID, cache.HashFilters(active))
}

// GetDomainsByAddress passes a reverse-record lookup through the provider
// chain.
func (o *Orchestrator) GetDomainsByAddress(ctx context.Context, address string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	if address == "" {
		return nil, &MissingParameterError{Param: "Address"}
	}
	var lastErr error
	for _, p := range o.providers {
		domains, err := p.GetDomainsByAddress(ctx, address, pg)
		if err == nil {
			return domains, nil
		}
		lastErr = err
		if !o.enableFallback {
			break
		}
	}
	return nil, lastErr
}

// GetDomainsByName passes a forward lookup through the provider chain.
func (o *Orchestrator) GetDomainsByName(ctx context.Context, name string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	if name == "" {
		return nil, &MissingParameterError{Param: "Name"}
	}
	var lastErr error
	for _, p := range o.providers {
		domains, err := p.GetDomainsByName(ctx, name, pg)
		if err == nil {
			return domains, nil
		}
		lastErr = err
		if !o.enableFallback {
			break
		}
	}
	return nil, lastErr
}

// ProviderHealth returns per-provider health, refreshing at most once per
// configured interval. Data calls never trigger a refresh. The lock is not
// held across the health checks themselves; callers arriving mid-refresh
// get the previous snapshot instead of waiting.
func (o *Orchestrator) ProviderHealth(ctx context.Context) map[string]*domain.ProviderHealth {
	o.healthMu.Lock()
	if o.refreshing || (time.Since(o.lastHealth) < o.healthInterval && len(o.health) > 0) {
		defer o.healthMu.Unlock()
		return o.healthSnapshot()
	}
	o.refreshing = true
	o.healthMu.Unlock()

	fresh := make(map[string]*domain.ProviderHealth, len(o.providers)+1)
	for _, p := range o.providers {
		fresh[p.Name()] = p.HealthCheck(ctx)
	}
	if o.bridge != nil {
		fresh[o.bridge.Name()] = o.bridge.HealthCheck(ctx)
	}

	o.healthMu.Lock()
	defer o.healthMu.Unlock()
	for name, h := range fresh {
		o.health[name] = h
	}
	o.lastHealth = time.Now()
	o.refreshing = false
	return o.healthSnapshot()
}

func (o *Orchestrator) healthSnapshot() map[string]*domain.ProviderHealth {
	snapshot := make(map[string]*domain.ProviderHealth, len(o.health))
	for name, h := range o.health {
		copied := *h
		snapshot[name] = &copied
	}
	return snapshot
}

func (o *Orchestrator) observe(kind cache.SubjectKind, source domain.CacheSource, started time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveRequest(string(kind), string(source), time.Since(started))
	}
}

func (o *Orchestrator) observeProvider(name, operation string, err error, started time.Time) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if pe, ok := provider.AsError(err); ok {
			status = string(pe.Kind)
		}
	}
	o.metrics.ObserveProviderCall(name, operation, status, time.Since(started))
}
