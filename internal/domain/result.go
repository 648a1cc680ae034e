package domain

// CacheSource tags where a result's token set came from.
type CacheSource string

const (
	// CacheSourceCache means the entry was served from the cache store.
	CacheSourceCache CacheSource = "cache"
	// CacheSourceAPI means the primary provider served the fetch.
	CacheSourceAPI CacheSource = "api"
	// CacheSourceHybrid means a fallback provider served the fetch after
	// the primary failed.
	CacheSourceHybrid CacheSource = "hybrid"
)

// PaginationInfo is the page window metadata computed over the filtered set.
type PaginationInfo struct {
	CurrentPage     int  `json:"currentPage"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	StartIndex      int  `json:"startIndex"`
	EndIndex        int  `json:"endIndex"`
}

// CacheInfo reports how the cache participated in a request.
type CacheInfo struct {
	Hit         bool        `json:"hit"`
	Source      CacheSource `json:"source"`
	BuildTimeMs int64       `json:"buildTimeMs"`
}

// PerformanceInfo carries per-request timing breakdown.
type PerformanceInfo struct {
	TotalTimeMs  int64 `json:"totalTimeMs"`
	FetchTimeMs  int64 `json:"fetchTimeMs"`
	FilterTimeMs int64 `json:"filterTimeMs"`
}

// CollectionResult is the orchestrator's output contract. It is assembled
// fresh on every request; only its constituent token set is ever cached.
type CollectionResult struct {
	Tokens      []UnifiedToken  `json:"tokens"`
	Pagination  PaginationInfo  `json:"pagination"`
	Cache       CacheInfo       `json:"cacheInfo"`
	Performance PerformanceInfo `json:"performance"`
}

// NewPaginationInfo computes the full window metadata for a filtered set of
// totalItems, clamping out-of-range pages to an empty window rather than
// failing.
func NewPaginationInfo(page, pageSize, totalItems int) PaginationInfo {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := (totalItems + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > totalItems {
		start = totalItems
	}
	if end > totalItems {
		end = totalItems
	}

	endIndex := end - 1
	if endIndex < start {
		endIndex = start
	}

	return PaginationInfo{
		CurrentPage:     page,
		PageSize:        pageSize,
		TotalItems:      totalItems,
		TotalPages:      totalPages,
		HasNextPage:     page*pageSize < totalItems,
		HasPreviousPage: page > 1,
		StartIndex:      start,
		EndIndex:        endIndex,
	}
}

// PageWindow slices the token set to the window described by info.
func PageWindow(tokens []UnifiedToken, info PaginationInfo) []UnifiedToken {
	start := info.StartIndex
	end := start + info.PageSize
	if start >= len(tokens) {
		return []UnifiedToken{}
	}
	if end > len(tokens) {
		end = len(tokens)
	}
	return tokens[start:end]
}
