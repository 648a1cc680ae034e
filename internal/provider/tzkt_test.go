package provider

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengallery/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestTzKT(t *testing.T, handler http.Handler) (*TzKTProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewTzKTProvider(Config{
		BaseURL:           server.URL,
		Priority:          1,
		Timeout:           2 * time.Second,
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
		RequestsPerSecond: 1000,
		BurstSize:         100,
	}, testLogger())
	return p, server
}

const balancesPayload = `[
  {
    "balance": "1",
    "firstTime": "2023-05-01T10:00:00Z",
    "token": {
      "contract": {"address": "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton"},
      "tokenId": "42",
      "totalSupply": "1",
      "metadata": {
        "name": "Dreamscape",
        "description": "a quiet place",
        "decimals": "0",
        "artifactUri": "ipfs://artifact",
        "displayUri": "ipfs://display",
        "thumbnailUri": "ipfs://thumb",
        "formats": [{"uri": "ipfs://artifact", "mimeType": "image/png"}],
        "attributes": [{"name": "mood", "value": "calm"}]
      }
    }
  },
  {
    "balance": "250000",
    "firstTime": "2023-06-01T10:00:00Z",
    "token": {
      "contract": {"address": "KT1K9gCRgaLRFKTErYt1wVxA3Frb9FjasjTV"},
      "tokenId": "0",
      "totalSupply": "100000000000",
      "metadata": {"name": "kUSD", "decimals": "18"}
    }
  }
]`

func TestTzKT_GetTokenBalances_Normalization(t *testing.T) {
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens/balances", r.URL.Path)
		assert.Equal(t, "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", r.URL.Query().Get("account"))
		assert.Equal(t, "0", r.URL.Query().Get("balance.gt"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(balancesPayload))
	}))

	tokens, err := p.GetTokenBalances(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{}, domain.TokenFilters{})
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	art := tokens[0]
	assert.Equal(t, "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton", art.ContractAddress)
	assert.Equal(t, "42", art.TokenID)
	assert.Equal(t, int64(1), art.Balance)
	assert.Equal(t, int64(1), art.TotalSupply)
	assert.Equal(t, "tzkt", art.Source)
	require.NotNil(t, art.Metadata)
	assert.Equal(t, "Dreamscape", art.Metadata.Name)
	assert.Equal(t, "ipfs://display", art.Metadata.DisplayURI)
	require.Len(t, art.Metadata.Formats, 1)
	assert.Equal(t, "image/png", art.Metadata.Formats[0].MimeType)
	require.Len(t, art.Metadata.Attributes, 1)
	assert.Equal(t, "calm", art.Metadata.Attributes[0].Value)
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), art.AcquiredAt)

	currency := tokens[1]
	assert.Equal(t, 18, currency.Decimals)
	assert.Equal(t, int64(100000000000), currency.TotalSupply)
}

func TestTzKT_GetTokenBalances_InvalidAddress(t *testing.T) {
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an invalid address")
	}))

	_, err := p.GetTokenBalances(context.Background(), "bogus", domain.PaginationOptions{}, domain.TokenFilters{})
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "tzkt", pe.Provider)
	assert.Equal(t, KindGeneric, pe.Kind)
}

func TestTzKT_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))

	tokens, err := p.GetTokenBalances(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{}, domain.TokenFilters{})
	require.NoError(t, err)
	assert.Empty(t, tokens)
	assert.Equal(t, int32(3), hits.Load(), "two retries after the initial attempt")
}

func TestTzKT_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := p.GetTokenBalances(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{}, domain.TokenFilters{})
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, 500, pe.StatusCode)
	assert.Equal(t, int32(3), hits.Load(), "initial attempt plus maxRetries")
}

func TestTzKT_RateLimitCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	// No retries so the Retry-After delay is never waited on.
	p := NewTzKTProvider(Config{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
		BurstSize:         100,
	}, testLogger())

	_, err := p.GetTokenBalances(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{}, domain.TokenFilters{})
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimit, pe.Kind)
	assert.Equal(t, 7*time.Second, pe.RetryAfter)
	assert.True(t, IsRetryable(err))
}

func TestTzKT_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := p.GetTokenBalances(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{}, domain.TokenFilters{})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, IsRetryable(err))
}

func TestTzKT_ParseAmountSaturatesOnOverflow(t *testing.T) {
	assert.Equal(t, int64(1), parseAmount("1"))
	assert.Equal(t, int64(0), parseAmount(""))
	assert.Equal(t, int64(0), parseAmount("not-a-number"))
	assert.Equal(t, int64(math.MaxInt64), parseAmount("123456789012345678901234567890"),
		"overflowing amounts clamp instead of reading as zero")
}

func TestTzKT_OverflowingBalanceSurvivesNormalization(t *testing.T) {
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"balance": "123456789012345678901234567890", "token": {"contract": {"address": "KT1aaa"}, "tokenId": "0", "totalSupply": "123456789012345678901234567890"}}
		]`))
	}))

	tokens, err := p.GetTokenBalances(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{}, domain.TokenFilters{})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, int64(math.MaxInt64), tokens[0].Balance, "held token must not vanish as zero balance")
}

func TestTzKT_GetTokenBalancesCount(t *testing.T) {
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens/balances/count", r.URL.Path)
		w.Write([]byte(`57`))
	}))

	count, err := p.GetTokenBalancesCount(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.TokenFilters{})
	require.NoError(t, err)
	assert.Equal(t, 57, count)
}

func TestTzKT_GetContractTokens(t *testing.T) {
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens", r.URL.Path)
		assert.Equal(t, "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton", r.URL.Query().Get("contract"))
		w.Write([]byte(`[
			{"contract": {"address": "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton"}, "tokenId": "1", "totalSupply": "1", "metadata": {"name": "one"}}
		]`))
	}))

	tokens, err := p.GetContractTokens(context.Background(), "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton", domain.PaginationOptions{}, domain.TokenFilters{})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, int64(1), tokens[0].Balance, "collection tokens count as held once")
}

func TestTzKT_GetDomains(t *testing.T) {
	p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/domains", r.URL.Path)
		w.Write([]byte(`[{"name": "alice.tez", "address": "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", "owner": "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb"}]`))
	}))

	domains, err := p.GetDomainsByAddress(context.Background(), "tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb", domain.PaginationOptions{})
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "alice.tez", domains[0].Name)
	assert.Equal(t, "tzkt", domains[0].Source)
}

func TestTzKT_ValidateAddress(t *testing.T) {
	p := NewTzKTProvider(Config{}, testLogger())

	assert.True(t, p.ValidateAddress("tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb"))
	assert.True(t, p.ValidateAddress("KT1CwhbbmyryfaJf1MaYwH5AWpy43LWnAYfy"))
	assert.False(t, p.ValidateAddress("tz1short"))
	assert.False(t, p.ValidateAddress(""))
	assert.False(t, p.ValidateAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
}

func TestTzKT_TransformFilters(t *testing.T) {
	p := NewTzKTProvider(Config{}, testLogger())

	t.Run("defaults to positive balance", func(t *testing.T) {
		params := p.TransformFilters(domain.TokenFilters{})
		assert.Equal(t, "0", params.Get("balance.gt"))
	})

	t.Run("whitelist wins over blacklist", func(t *testing.T) {
		params := p.TransformFilters(domain.TokenFilters{
			ContractWhitelist: []string{"KT1aaa", "KT1bbb"},
			ContractBlacklist: []string{"KT1ccc"},
		})
		assert.Equal(t, "KT1aaa,KT1bbb", params.Get("token.contract.in"))
		assert.Empty(t, params.Get("token.contract.ni"))
	})

	t.Run("metadata requirement maps to null filter", func(t *testing.T) {
		params := p.TransformFilters(domain.TokenFilters{RequireMetadata: true})
		assert.Equal(t, "false", params.Get("token.metadata.null"))
	})
}

func TestTzKT_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/head", r.URL.Path)
			w.Write([]byte(`{"level": 5000000}`))
		}))
		health := p.HealthCheck(context.Background())
		assert.True(t, health.IsHealthy)
		assert.False(t, health.LastCheck.IsZero())
	})

	t.Run("unhealthy on upstream failure", func(t *testing.T) {
		p, _ := newTestTzKT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		health := p.HealthCheck(context.Background())
		assert.False(t, health.IsHealthy)
		assert.NotEmpty(t, health.ErrorMessage)
	})
}
