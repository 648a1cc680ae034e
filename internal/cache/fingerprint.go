package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"tokengallery/internal/domain"
)

// SubjectKind distinguishes what entity a fingerprint addresses.
type SubjectKind string

const (
	SubjectAddress  SubjectKind = "address"
	SubjectContract SubjectKind = "contract"
	SubjectCuration SubjectKind = "curation"
)

// Fingerprint is the deterministic cache key for one
// (subject, filter configuration, page window) combination.
type Fingerprint struct {
	Key        string
	SubjectID  string
	FilterHash string
}

// NewFingerprint derives the cache key. Identical inputs always produce the
// identical key; any differing filter field, page, or pageSize produces a
// different one.
func NewFingerprint(kind SubjectKind, subjectID string, filters domain.TokenFilters, page, pageSize int) Fingerprint {
	filterHash := HashFilters(filters)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d", kind, subjectID, filterHash, page, pageSize)))
	return Fingerprint{
		Key:        hex.EncodeToString(sum[:]),
		SubjectID:  subjectID,
		FilterHash: filterHash,
	}
}

// HashFilters hashes the canonical serialized form of a filter
// configuration. Two configurations hash equal iff they are equivalent.
func HashFilters(filters domain.TokenFilters) string {
	sum := sha256.Sum256([]byte(filters.Canonical()))
	return hex.EncodeToString(sum[:])
}
