package domain

import "time"

// UnifiedToken is the normalized token shape every provider returns.
// Instances are built once by provider normalization and never mutated.
type UnifiedToken struct {
	ContractAddress string           `json:"contractAddress"`
	TokenID         string           `json:"tokenId"`
	Balance         int64            `json:"balance"`
	TotalSupply     int64            `json:"totalSupply,omitempty"`
	Decimals        int              `json:"decimals,omitempty"`
	Metadata        *UnifiedMetadata `json:"metadata,omitempty"`
	AcquiredAt      time.Time        `json:"acquiredAt,omitempty"`
	Source          string           `json:"source"`
}

// UnifiedMetadata is the best-effort normalized subset of provider metadata.
// Any field may be empty; absence is valid, never an error.
type UnifiedMetadata struct {
	Name         string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	ImageURI     string           `json:"imageUri,omitempty"`
	ArtifactURI  string           `json:"artifactUri,omitempty"`
	DisplayURI   string           `json:"displayUri,omitempty"`
	ThumbnailURI string           `json:"thumbnailUri,omitempty"`
	Formats      []TokenFormat    `json:"formats,omitempty"`
	Attributes   []TokenAttribute `json:"attributes,omitempty"`
}

// TokenFormat describes one rendition of the token artifact.
type TokenFormat struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

// TokenAttribute is a single metadata trait.
type TokenAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HasImage reports whether any image-like URI is resolvable on the token.
func (t *UnifiedToken) HasImage() bool {
	if t.Metadata == nil {
		return false
	}
	m := t.Metadata
	return m.ImageURI != "" || m.DisplayURI != "" || m.ArtifactURI != "" || m.ThumbnailURI != ""
}

// HasName reports whether the token carries a non-empty name.
func (t *UnifiedToken) HasName() bool {
	return t.Metadata != nil && t.Metadata.Name != ""
}

// UnifiedDomain is a normalized reverse-record entry from the upstream
// domain registry. The service only passes these through; it does not
// resolve names itself.
type UnifiedDomain struct {
	Name    string    `json:"name"`
	Address string    `json:"address"`
	Owner   string    `json:"owner,omitempty"`
	Expiry  time.Time `json:"expiry,omitempty"`
	Source  string    `json:"source"`
}

// ProviderHealth is the result of an explicit provider health check.
type ProviderHealth struct {
	IsHealthy      bool      `json:"isHealthy"`
	LastCheck      time.Time `json:"lastCheck"`
	ResponseTimeMs int64     `json:"responseTimeMs,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}
