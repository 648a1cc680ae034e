// Package filter applies a declarative TokenFilters specification to a
// normalized token set. Application is pure: same input set and spec always
// yield the same output set in the same order.
package filter

import "tokengallery/internal/domain"

// highDecimalsThreshold marks fungible-token precision. Collectibles are
// 0-decimal; anything at or above this is a currency-style token.
const highDecimalsThreshold = 6

// ExclusionReason identifies the first predicate a token failed.
type ExclusionReason string

const (
	ReasonZeroBalance     ExclusionReason = "zero_balance"
	ReasonBalanceBelowMin ExclusionReason = "balance_below_min"
	ReasonNoMetadata      ExclusionReason = "no_metadata"
	ReasonNotWhitelisted  ExclusionReason = "not_whitelisted"
	ReasonBlacklisted     ExclusionReason = "blacklisted"
	ReasonNoImage         ExclusionReason = "no_image"
	ReasonNoName          ExclusionReason = "no_name"
	ReasonUtilityToken    ExclusionReason = "utility_token"
)

// Apply filters tokens against spec and returns the surviving set with input
// order preserved. Predicates short-circuit per token; the first failing
// predicate decides the logged exclusion reason but not the final set.
func Apply(tokens []domain.UnifiedToken, spec domain.TokenFilters) []domain.UnifiedToken {
	out, _ := ApplyWithReasons(tokens, spec)
	return out
}

// ApplyWithReasons is Apply plus a count of exclusions by reason, for
// telemetry and debug logging.
func ApplyWithReasons(tokens []domain.UnifiedToken, spec domain.TokenFilters) ([]domain.UnifiedToken, map[ExclusionReason]int) {
	out := make([]domain.UnifiedToken, 0, len(tokens))
	reasons := make(map[ExclusionReason]int)

	for _, t := range tokens {
		if reason, excluded := exclude(&t, spec); excluded {
			reasons[reason]++
			continue
		}
		if len(spec.SelectFields) > 0 {
			t = project(t, spec.SelectFields)
		}
		out = append(out, t)
	}
	return out, reasons
}

func exclude(t *domain.UnifiedToken, spec domain.TokenFilters) (ExclusionReason, bool) {
	if t.Balance <= 0 {
		return ReasonZeroBalance, true
	}
	if spec.BalanceGt > 0 && t.Balance <= spec.BalanceGt {
		return ReasonBalanceBelowMin, true
	}
	if spec.RequireMetadata && t.Metadata == nil {
		return ReasonNoMetadata, true
	}
	if len(spec.ContractWhitelist) > 0 {
		// A non-empty whitelist is exhaustive.
		if !contains(spec.ContractWhitelist, t.ContractAddress) {
			return ReasonNotWhitelisted, true
		}
	} else if contains(spec.ContractBlacklist, t.ContractAddress) {
		return ReasonBlacklisted, true
	}
	if spec.RequireImage && !t.HasImage() {
		return ReasonNoImage, true
	}
	if spec.RequireName && !t.HasName() {
		return ReasonNoName, true
	}
	if spec.ExcludeUtilityTokens && isUtilityToken(t, spec) {
		return ReasonUtilityToken, true
	}
	return "", false
}

// isUtilityToken applies the fungible-token heuristic: enormous supply or
// currency-style decimal precision means the token is not gallery material.
func isUtilityToken(t *domain.UnifiedToken, spec domain.TokenFilters) bool {
	if spec.MaxSupply > 0 && t.TotalSupply > spec.MaxSupply {
		return true
	}
	if spec.ExcludeHighDecimals && t.Decimals >= highDecimalsThreshold {
		return true
	}
	return false
}

// project keeps only the named fields on the token. Unknown field names are
// ignored. Identity fields are always kept so the result stays addressable.
func project(t domain.UnifiedToken, fields []string) domain.UnifiedToken {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}

	p := domain.UnifiedToken{
		ContractAddress: t.ContractAddress,
		TokenID:         t.TokenID,
		Source:          t.Source,
	}
	if keep["balance"] {
		p.Balance = t.Balance
	}
	if keep["totalSupply"] {
		p.TotalSupply = t.TotalSupply
	}
	if keep["decimals"] {
		p.Decimals = t.Decimals
	}
	if keep["acquiredAt"] {
		p.AcquiredAt = t.AcquiredAt
	}
	if keep["metadata"] {
		p.Metadata = t.Metadata
	}
	return p
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
