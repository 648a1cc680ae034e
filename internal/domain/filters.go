package domain

import (
	"encoding/json"
	"sort"
)

// TokenFilters is the declarative filter specification applied to a fetched
// token set. The zero value means "no filtering beyond balance > 0".
// A filter configuration's identity is its canonical serialized form, which
// is what cache fingerprints hash.
type TokenFilters struct {
	BalanceGt            int64    `json:"balanceGt" mapstructure:"balance_gt"`
	RequireMetadata      bool     `json:"requireMetadata" mapstructure:"require_metadata"`
	RequireImage         bool     `json:"requireImage" mapstructure:"require_image"`
	RequireName          bool     `json:"requireName" mapstructure:"require_name"`
	ExcludeUtilityTokens bool     `json:"excludeUtilityTokens" mapstructure:"exclude_utility_tokens"`
	ExcludeHighDecimals  bool     `json:"excludeHighDecimals" mapstructure:"exclude_high_decimals"`
	MaxSupply            int64    `json:"maxSupply" mapstructure:"max_supply"`
	ContractWhitelist    []string `json:"contractWhitelist" mapstructure:"contract_whitelist"`
	ContractBlacklist    []string `json:"contractBlacklist" mapstructure:"contract_blacklist"`
	SelectFields         []string `json:"selectFields" mapstructure:"select_fields"`
}

// DefaultFilters returns the filter configuration used when a request does
// not supply one: positive balance, metadata present, utility tokens out.
func DefaultFilters() TokenFilters {
	return TokenFilters{
		RequireMetadata:      true,
		ExcludeUtilityTokens: true,
		ExcludeHighDecimals:  true,
		MaxSupply:            10000,
	}
}

// Canonical returns the stable serialized identity of the filter
// configuration. List fields are sorted so that equivalent configurations
// always serialize byte-identically.
func (f TokenFilters) Canonical() string {
	c := f
	c.ContractWhitelist = sortedCopy(f.ContractWhitelist)
	c.ContractBlacklist = sortedCopy(f.ContractBlacklist)
	c.SelectFields = sortedCopy(f.SelectFields)
	b, _ := json.Marshal(c)
	return string(b)
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// SortDirection for pagination sorting.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// PaginationOptions is the offset/limit window a provider or the filter
// pipeline operates on. Page/pageSize at the HTTP surface map 1:1 onto
// offset/limit.
type PaginationOptions struct {
	Offset    int           `json:"offset"`
	Limit     int           `json:"limit"`
	SortField string        `json:"sortField,omitempty"`
	SortDir   SortDirection `json:"sortDir,omitempty"`
}
