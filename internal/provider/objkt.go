package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tokengallery/internal/domain"
)

const objktProviderName = "objkt"

var hexSlugPattern = regexp.MustCompile(`^[0-9a-f]{6,12}$`)

// ObjktBridge is the curation-bridge provider. It resolves a curation
// identifier (numeric id, short hex slug, or full UUID) to the underlying
// contract/token references through the objkt GraphQL API, then delegates
// token retrieval to the direct-indexer provider. Every failure it surfaces
// carries its own provider name, wrapping the resolution or delegation
// cause.
type ObjktBridge struct {
	cfg        Config
	delegate   Provider
	httpClient *http.Client
	retry      *retryer
	logger     *logrus.Logger
}

// NewObjktBridge builds the bridge over delegate, which serves the actual
// token fetches once a curation is resolved.
func NewObjktBridge(cfg Config, delegate Provider, logger *logrus.Logger) *ObjktBridge {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.objkt.com/v3/graphql"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ObjktBridge{
		cfg:        cfg,
		delegate:   delegate,
		httpClient: &http.Client{Timeout: timeout},
		retry:      newRetryer(objktProviderName, cfg, logger),
		logger:     logger,
	}
}

func (b *ObjktBridge) Name() string  { return objktProviderName }
func (b *ObjktBridge) Priority() int { return b.cfg.Priority }

func (b *ObjktBridge) HealthCheck(ctx context.Context) *domain.ProviderHealth {
	health := &domain.ProviderHealth{LastCheck: time.Now()}
	started := time.Now()

	// A constant introspection probe; cheap and unauthenticated.
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	err := b.postQuery(ctx, "healthCheck", `{"query":"{ __typename }"}`, &probe)
	health.ResponseTimeMs = time.Since(started).Milliseconds()
	if err != nil {
		health.ErrorMessage = err.Error()
		return health
	}
	health.IsHealthy = len(probe.Data) > 0
	return health
}

// tokenRef is one resolved curation member.
type tokenRef struct {
	Contract string
	TokenID  string
}

// curationQuery shapes the three identifier forms into one GraphQL lookup.
type curationResponse struct {
	Data struct {
		Gallery []struct {
			Tokens []struct {
				Token struct {
					FaContract string `json:"fa_contract"`
					TokenID    string `json:"token_id"`
				} `json:"token"`
			} `json:"tokens"`
		} `json:"gallery"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetCurationTokens resolves the curation then delegates to the indexer.
func (b *ObjktBridge) GetCurationTokens(ctx context.Context, curationID string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
	const op = "getCurationTokens"

	refs, err := b.resolveCuration(ctx, curationID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return []domain.UnifiedToken{}, nil
	}

	wanted := make(map[string]map[string]bool)
	order := make([]string, 0)
	for _, ref := range refs {
		if wanted[ref.Contract] == nil {
			wanted[ref.Contract] = make(map[string]bool)
			order = append(order, ref.Contract)
		}
		wanted[ref.Contract][ref.TokenID] = true
	}

	var tokens []domain.UnifiedToken
	for _, contract := range order {
		// Pull the full contract set; the curation selects from it.
		batch, err := b.delegate.GetContractTokens(ctx, contract, domain.PaginationOptions{}, filters)
		if err != nil {
			return nil, b.wrapDelegation(op, contract, err)
		}
		for _, t := range batch {
			if wanted[contract][t.TokenID] {
				tokens = append(tokens, t)
			}
		}
	}
	return tokens, nil
}

// resolveCuration looks the identifier up by its form: numeric gallery id,
// short hex slug, or full UUID.
func (b *ObjktBridge) resolveCuration(ctx context.Context, curationID string) ([]tokenRef, error) {
	const op = "resolveCuration"

	field, value, err := curationSelector(curationID)
	if err != nil {
		return nil, NewError(objktProviderName, op, err.Error(), 0, nil)
	}

	query := fmt.Sprintf(
		`{"query":"query { gallery(where: {%s: {_eq: %s}}) { tokens { token { fa_contract token_id } } } }"}`,
		field, value,
	)

	var resp curationResponse
	if err := b.postQuery(ctx, op, query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, NewError(objktProviderName, op, resp.Errors[0].Message, 0, nil)
	}

	var refs []tokenRef
	for _, gallery := range resp.Data.Gallery {
		for _, gt := range gallery.Tokens {
			refs = append(refs, tokenRef{
				Contract: gt.Token.FaContract,
				TokenID:  gt.Token.TokenID,
			})
		}
	}
	return refs, nil
}

// curationSelector classifies the identifier form. Numeric ids and hex
// slugs are unquoted vs quoted per the upstream schema.
func curationSelector(curationID string) (field, value string, err error) {
	if curationID == "" {
		return "", "", fmt.Errorf("empty curation identifier")
	}
	if _, err := strconv.ParseInt(curationID, 10, 64); err == nil {
		return "gallery_id", curationID, nil
	}
	if _, err := uuid.Parse(curationID); err == nil {
		return "uuid", fmt.Sprintf("%q", curationID), nil
	}
	if hexSlugPattern.MatchString(curationID) {
		return "slug", fmt.Sprintf("%q", curationID), nil
	}
	return "", "", fmt.Errorf("unrecognized curation identifier %q", curationID)
}

func (b *ObjktBridge) postQuery(ctx context.Context, operation, body string, out interface{}) error {
	return b.retry.do(ctx, operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL, bytes.NewBufferString(body))
		if err != nil {
			return NewError(objktProviderName, operation, "build request", 0, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) {
				return NewTimeoutError(objktProviderName, operation, err)
			}
			return NewError(objktProviderName, operation, "request failed", 0, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return NewRateLimitError(objktProviderName, operation, retryAfter(resp))
		case resp.StatusCode >= 400:
			return NewError(objktProviderName, operation, "unexpected status", resp.StatusCode, nil)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(objktProviderName, operation, "decode response", 0, err)
		}
		return nil
	})
}

// wrapDelegation re-tags a delegate failure with the bridge's name so the
// caller can trace which path failed.
func (b *ObjktBridge) wrapDelegation(op, detail string, err error) error {
	if pe, ok := AsError(err); ok {
		return &Error{
			Provider:   objktProviderName,
			Operation:  op,
			Kind:       pe.Kind,
			Message:    fmt.Sprintf("delegation for %s failed: %s", detail, pe.Message),
			StatusCode: pe.StatusCode,
			RetryAfter: pe.RetryAfter,
			Err:        err,
		}
	}
	return NewError(objktProviderName, op, fmt.Sprintf("delegation for %s failed", detail), 0, err)
}

// The generic provider operations delegate to the direct indexer; the
// bridge only adds curation resolution on top.

func (b *ObjktBridge) GetDomainsByAddress(ctx context.Context, address string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	out, err := b.delegate.GetDomainsByAddress(ctx, address, pg)
	if err != nil {
		return nil, b.wrapDelegation("getDomainsByAddress", address, err)
	}
	return out, nil
}

func (b *ObjktBridge) GetDomainsByName(ctx context.Context, name string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	out, err := b.delegate.GetDomainsByName(ctx, name, pg)
	if err != nil {
		return nil, b.wrapDelegation("getDomainsByName", name, err)
	}
	return out, nil
}

func (b *ObjktBridge) GetTokenBalancesCount(ctx context.Context, address string, filters domain.TokenFilters) (int, error) {
	n, err := b.delegate.GetTokenBalancesCount(ctx, address, filters)
	if err != nil {
		return 0, b.wrapDelegation("getTokenBalancesCount", address, err)
	}
	return n, nil
}

func (b *ObjktBridge) GetTokenBalances(ctx context.Context, address string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
	out, err := b.delegate.GetTokenBalances(ctx, address, pg, filters)
	if err != nil {
		return nil, b.wrapDelegation("getTokenBalances", address, err)
	}
	return out, nil
}

func (b *ObjktBridge) GetContractTokens(ctx context.Context, contractAddress string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
	out, err := b.delegate.GetContractTokens(ctx, contractAddress, pg, filters)
	if err != nil {
		return nil, b.wrapDelegation("getContractTokens", contractAddress, err)
	}
	return out, nil
}

func (b *ObjktBridge) ValidateAddress(address string) bool {
	return b.delegate.ValidateAddress(address)
}

func (b *ObjktBridge) TransformFilters(filters domain.TokenFilters) url.Values {
	return b.delegate.TransformFilters(filters)
}
