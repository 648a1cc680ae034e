package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengallery/internal/domain"
)

// fakeIndexer is the delegation target in bridge tests.
type fakeIndexer struct {
	tokensByContract map[string][]domain.UnifiedToken
	err              error
}

func (f *fakeIndexer) Name() string  { return "fake" }
func (f *fakeIndexer) Priority() int { return 1 }

func (f *fakeIndexer) GetContractTokens(_ context.Context, contract string, _ domain.PaginationOptions, _ domain.TokenFilters) ([]domain.UnifiedToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokensByContract[contract], nil
}

func (f *fakeIndexer) GetTokenBalances(context.Context, string, domain.PaginationOptions, domain.TokenFilters) ([]domain.UnifiedToken, error) {
	return nil, f.err
}

func (f *fakeIndexer) GetTokenBalancesCount(context.Context, string, domain.TokenFilters) (int, error) {
	return 0, f.err
}

func (f *fakeIndexer) GetDomainsByAddress(context.Context, string, domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	return nil, f.err
}

func (f *fakeIndexer) GetDomainsByName(context.Context, string, domain.PaginationOptions) ([]domain.UnifiedDomain, error) {
	return nil, f.err
}

func (f *fakeIndexer) HealthCheck(context.Context) *domain.ProviderHealth {
	return &domain.ProviderHealth{IsHealthy: true, LastCheck: time.Now()}
}

func (f *fakeIndexer) ValidateAddress(string) bool { return true }

func (f *fakeIndexer) TransformFilters(domain.TokenFilters) url.Values { return url.Values{} }

func curationServer(t *testing.T, refs map[string][]string, captured *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			*captured = string(body)
		}

		type tokenEntry struct {
			Token struct {
				FaContract string `json:"fa_contract"`
				TokenID    string `json:"token_id"`
			} `json:"token"`
		}
		var tokens []tokenEntry
		for contract, ids := range refs {
			for _, id := range ids {
				var e tokenEntry
				e.Token.FaContract = contract
				e.Token.TokenID = id
				tokens = append(tokens, e)
			}
		}

		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"gallery": []map[string]interface{}{{"tokens": tokens}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestBridge(t *testing.T, serverURL string, delegate Provider) *ObjktBridge {
	t.Helper()
	return NewObjktBridge(Config{
		BaseURL:           serverURL,
		Priority:          2,
		MaxRetries:        1,
		RetryDelay:        time.Millisecond,
		RequestsPerSecond: 1000,
		BurstSize:         100,
	}, delegate, testLogger())
}

func TestObjktBridge_GetCurationTokens(t *testing.T) {
	refs := map[string][]string{"KT1aaa": {"1", "3"}}
	server := curationServer(t, refs, nil)

	delegate := &fakeIndexer{tokensByContract: map[string][]domain.UnifiedToken{
		"KT1aaa": {
			{ContractAddress: "KT1aaa", TokenID: "1", Balance: 1},
			{ContractAddress: "KT1aaa", TokenID: "2", Balance: 1},
			{ContractAddress: "KT1aaa", TokenID: "3", Balance: 1},
		},
	}}

	bridge := newTestBridge(t, server.URL, delegate)
	tokens, err := bridge.GetCurationTokens(context.Background(), "42", domain.PaginationOptions{}, domain.TokenFilters{})
	require.NoError(t, err)

	// Only the curated members survive, in contract-set order.
	require.Len(t, tokens, 2)
	assert.Equal(t, "1", tokens[0].TokenID)
	assert.Equal(t, "3", tokens[1].TokenID)
}

func TestObjktBridge_IdentifierForms(t *testing.T) {
	tests := []struct {
		name       string
		curationID string
		wantField  string
	}{
		{"numeric id", "42", "gallery_id"},
		{"full uuid", "8f14e45f-ceea-467f-a5d9-cb7b2b6a6e1a", "uuid"},
		{"short hex slug", "a1b2c3", "slug"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured string
			server := curationServer(t, nil, &captured)
			bridge := newTestBridge(t, server.URL, &fakeIndexer{})

			_, err := bridge.GetCurationTokens(context.Background(), tc.curationID, domain.PaginationOptions{}, domain.TokenFilters{})
			require.NoError(t, err)
			assert.Contains(t, captured, tc.wantField)
		})
	}

	t.Run("unrecognized form rejected without upstream call", func(t *testing.T) {
		bridge := newTestBridge(t, "http://127.0.0.1:0", &fakeIndexer{})
		_, err := bridge.GetCurationTokens(context.Background(), "not/a/curation!", domain.PaginationOptions{}, domain.TokenFilters{})
		pe, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, "objkt", pe.Provider)
	})
}

func TestObjktBridge_WrapsDelegationFailure(t *testing.T) {
	refs := map[string][]string{"KT1aaa": {"1"}}
	server := curationServer(t, refs, nil)

	delegate := &fakeIndexer{err: NewTimeoutError("fake", "getContractTokens", nil)}
	bridge := newTestBridge(t, server.URL, delegate)

	_, err := bridge.GetCurationTokens(context.Background(), "42", domain.PaginationOptions{}, domain.TokenFilters{})
	require.Error(t, err)

	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "objkt", pe.Provider, "bridge failures carry the bridge's name")
	assert.Equal(t, KindTimeout, pe.Kind, "underlying kind is preserved")
	assert.True(t, strings.Contains(pe.Message, "KT1aaa"))
}

func TestObjktBridge_EmptyCuration(t *testing.T) {
	server := curationServer(t, nil, nil)
	bridge := newTestBridge(t, server.URL, &fakeIndexer{})

	tokens, err := bridge.GetCurationTokens(context.Background(), "42", domain.PaginationOptions{}, domain.TokenFilters{})
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestCurationSelector(t *testing.T) {
	t.Run("empty rejected", func(t *testing.T) {
		_, _, err := curationSelector("")
		assert.Error(t, err)
	})

	t.Run("numeric unquoted", func(t *testing.T) {
		field, value, err := curationSelector("123")
		require.NoError(t, err)
		assert.Equal(t, "gallery_id", field)
		assert.Equal(t, "123", value)
	})

	t.Run("uuid quoted", func(t *testing.T) {
		field, value, err := curationSelector("8f14e45f-ceea-467f-a5d9-cb7b2b6a6e1a")
		require.NoError(t, err)
		assert.Equal(t, "uuid", field)
		assert.Equal(t, `"8f14e45f-ceea-467f-a5d9-cb7b2b6a6e1a"`, value)
	})
}
