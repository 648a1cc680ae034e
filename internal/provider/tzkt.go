package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tokengallery/internal/domain"
)

const tzktProviderName = "tzkt"

// TzKTProvider is the direct-indexer provider backed by the TzKT REST API.
type TzKTProvider struct {
	cfg        Config
	httpClient *http.Client
	retry      *retryer
	logger     *logrus.Logger
}

// NewTzKTProvider builds the provider from config. BaseURL defaults to the
// public TzKT mainnet endpoint.
func NewTzKTProvider(cfg Config, logger *logrus.Logger) *TzKTProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tzkt.io"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TzKTProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retry:      newRetryer(tzktProviderName, cfg, logger),
		logger:     logger,
	}
}

func (p *TzKTProvider) Name() string  { return tzktProviderName }
func (p *TzKTProvider) Priority() int { return p.cfg.Priority }

// ValidateAddress accepts implicit (tz1/tz2/tz3) and originated (KT1)
// Tezos addresses.
func (p *TzKTProvider) ValidateAddress(address string) bool {
	if len(address) != 36 {
		return false
	}
	for _, prefix := range []string{"tz1", "tz2", "tz3", "KT1"} {
		if strings.HasPrefix(address, prefix) {
			return true
		}
	}
	return false
}

// TransformFilters maps the generic filter spec onto TzKT token-balance
// query parameters. Predicates TzKT cannot express server-side are left to
// the filter engine.
func (p *TzKTProvider) TransformFilters(filters domain.TokenFilters) url.Values {
	params := url.Values{}
	if filters.BalanceGt > 0 {
		params.Set("balance.gt", strconv.FormatInt(filters.BalanceGt, 10))
	} else {
		params.Set("balance.gt", "0")
	}
	if len(filters.ContractWhitelist) > 0 {
		params.Set("token.contract.in", strings.Join(filters.ContractWhitelist, ","))
	} else if len(filters.ContractBlacklist) > 0 {
		params.Set("token.contract.ni", strings.Join(filters.ContractBlacklist, ","))
	}
	if filters.RequireMetadata {
		params.Set("token.metadata.null", "false")
	}
	return params
}

func (p *TzKTProvider) HealthCheck(ctx context.Context) *domain.ProviderHealth {
	health := &domain.ProviderHealth{LastCheck: time.Now()}
	started := time.Now()

	var head struct {
		Level int64 `json:"level"`
	}
	err := p.getJSON(ctx, "healthCheck", "/v1/head", nil, &head)
	health.ResponseTimeMs = time.Since(started).Milliseconds()
	if err != nil {
		health.ErrorMessage = err.Error()
		return health
	}
	health.IsHealthy = head.Level > 0
	return health
}

// tzktTokenBalance is the provider-native balance row.
type tzktTokenBalance struct {
	Balance   string    `json:"balance"`
	FirstTime time.Time `json:"firstTime"`
	Token     tzktToken `json:"token"`
	LastTime  time.Time `json:"lastTime"`
}

type tzktToken struct {
	Contract struct {
		Address string `json:"address"`
	} `json:"contract"`
	TokenID     string         `json:"tokenId"`
	TotalSupply string         `json:"totalSupply"`
	Metadata    *tzktTokenMeta `json:"metadata"`
	FirstTime   time.Time      `json:"firstTime"`
}

type tzktTokenMeta struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Decimals     string `json:"decimals"`
	Image        string `json:"image"`
	ArtifactURI  string `json:"artifactUri"`
	DisplayURI   string `json:"displayUri"`
	ThumbnailURI string `json:"thumbnailUri"`
	Formats      []struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
	} `json:"formats"`
	Attributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"attributes"`
}

func (p *TzKTProvider) GetTokenBalances(ctx context.Context, address string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
	const op = "getTokenBalances"
	if !p.ValidateAddress(address) {
		return nil, NewError(tzktProviderName, op, fmt.Sprintf("invalid address %q", address), 0, nil)
	}

	params := p.TransformFilters(filters)
	params.Set("account", address)
	applyWindow(params, pg)

	var rows []tzktTokenBalance
	if err := p.getJSON(ctx, op, "/v1/tokens/balances", params, &rows); err != nil {
		return nil, err
	}

	tokens := make([]domain.UnifiedToken, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, p.normalizeBalance(row))
	}
	return tokens, nil
}

func (p *TzKTProvider) GetTokenBalancesCount(ctx context.Context, address string, filters domain.TokenFilters) (int, error) {
	const op = "getTokenBalancesCount"
	if !p.ValidateAddress(address) {
		return 0, NewError(tzktProviderName, op, fmt.Sprintf("invalid address %q", address), 0, nil)
	}

	params := p.TransformFilters(filters)
	params.Set("account", address)

	var count int
	if err := p.getJSON(ctx, op, "/v1/tokens/balances/count", params, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetContractTokens enumerates tokens minted under a contract. Collection
// views carry no owner-balance semantics; each listed token counts as held
// once so downstream balance predicates pass.
func (p *TzKTProvider) GetContractTokens(ctx context.Context, contractAddress string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error) {
	const op = "getContractTokens"
	if !p.ValidateAddress(contractAddress) {
		return nil, NewError(tzktProviderName, op, fmt.Sprintf("invalid contract address %q", contractAddress), 0, nil)
	}

	params := url.Values{}
	params.Set("contract", contractAddress)
	if filters.RequireMetadata {
		params.Set("metadata.null", "false")
	}
	applyWindow(params, pg)

	var rows []tzktToken
	if err := p.getJSON(ctx, op, "/v1/tokens", params, &rows); err != nil {
		return nil, err
	}

	tokens := make([]domain.UnifiedToken, 0, len(rows))
	for _, row := range rows {
		t := p.normalizeToken(row)
		t.Balance = 1
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (p *TzKTProvider) GetDomainsByAddress(ctx context.Context, address string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	const op = "getDomainsByAddress"
	if !p.ValidateAddress(address) {
		return nil, NewError(tzktProviderName, op, fmt.Sprintf("invalid address %q", address), 0, nil)
	}
	params := url.Values{}
	params.Set("address", address)
	return p.getDomains(ctx, op, params, pg)
}

func (p *TzKTProvider) GetDomainsByName(ctx context.Context, name string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	const op = "getDomainsByName"
	if name == "" {
		return nil, NewError(tzktProviderName, op, "empty domain name", 0, nil)
	}
	params := url.Values{}
	params.Set("name", name)
	return p.getDomains(ctx, op, params, pg)
}

type tzktDomain struct {
	Name    string    `json:"name"`
	Address string    `json:"address"`
	Owner   string    `json:"owner"`
	Expiry  time.Time `json:"expiration"`
}

func (p *TzKTProvider) getDomains(ctx context.Context, op string, params url.Values, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	applyWindow(params, pg)

	var rows []tzktDomain
	if err := p.getJSON(ctx, op, "/v1/domains", params, &rows); err != nil {
		return nil, err
	}

	domains := make([]domain.UnifiedDomain, 0, len(rows))
	for _, row := range rows {
		domains = append(domains, domain.UnifiedDomain{
			Name:    row.Name,
			Address: row.Address,
			Owner:   row.Owner,
			Expiry:  row.Expiry,
			Source:  tzktProviderName,
		})
	}
	return domains, nil
}

func (p *TzKTProvider) normalizeBalance(row tzktTokenBalance) domain.UnifiedToken {
	t := p.normalizeToken(row.Token)
	t.Balance = parseAmount(row.Balance)
	if !row.FirstTime.IsZero() {
		t.AcquiredAt = row.FirstTime
	}
	return t
}

func (p *TzKTProvider) normalizeToken(row tzktToken) domain.UnifiedToken {
	t := domain.UnifiedToken{
		ContractAddress: row.Contract.Address,
		TokenID:         row.TokenID,
		TotalSupply:     parseAmount(row.TotalSupply),
		AcquiredAt:      row.FirstTime,
		Source:          tzktProviderName,
	}
	if row.Metadata != nil {
		meta := &domain.UnifiedMetadata{
			Name:         row.Metadata.Name,
			Description:  row.Metadata.Description,
			ImageURI:     row.Metadata.Image,
			ArtifactURI:  row.Metadata.ArtifactURI,
			DisplayURI:   row.Metadata.DisplayURI,
			ThumbnailURI: row.Metadata.ThumbnailURI,
		}
		for _, f := range row.Metadata.Formats {
			meta.Formats = append(meta.Formats, domain.TokenFormat{URI: f.URI, MimeType: f.MimeType})
		}
		for _, a := range row.Metadata.Attributes {
			meta.Attributes = append(meta.Attributes, domain.TokenAttribute{Name: a.Name, Value: a.Value})
		}
		t.Metadata = meta
		if d, err := strconv.Atoi(row.Metadata.Decimals); err == nil {
			t.Decimals = d
		}
	}
	return t
}

// getJSON performs one GET under the retry and rate-limit policy and decodes
// the body into out.
func (p *TzKTProvider) getJSON(ctx context.Context, operation, path string, params url.Values, out interface{}) error {
	target := p.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	return p.retry.do(ctx, operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return NewError(tzktProviderName, operation, "build request", 0, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) {
				return NewTimeoutError(tzktProviderName, operation, err)
			}
			return NewError(tzktProviderName, operation, "request failed", 0, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return NewRateLimitError(tzktProviderName, operation, retryAfter(resp))
		case resp.StatusCode >= 400:
			return NewError(tzktProviderName, operation,
				fmt.Sprintf("unexpected status from %s", path), resp.StatusCode, nil)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(tzktProviderName, operation, "decode response", 0, err)
		}
		return nil
	})
}

func applyWindow(params url.Values, pg domain.PaginationOptions) {
	if pg.Offset > 0 {
		params.Set("offset", strconv.Itoa(pg.Offset))
	}
	if pg.Limit > 0 {
		params.Set("limit", strconv.Itoa(pg.Limit))
	}
	if pg.SortField != "" {
		key := "sort.asc"
		if pg.SortDir == domain.SortDesc {
			key = "sort.desc"
		}
		params.Set(key, pg.SortField)
	}
}

// parseAmount reads a TzKT string-encoded amount. High-decimal FA2 supplies
// overflow int64; ParseInt clamps those to MaxInt64, which we keep so the
// token does not read as a zero balance.
func parseAmount(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return v
		}
		return 0
	}
	return v
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return os.IsTimeout(err)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
