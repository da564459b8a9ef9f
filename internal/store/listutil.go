package store

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListParams holds common query parameters for list endpoints
type ListParams struct {
	Limit  int
	Offset int
	Q      string
	Sort   string
}

// ParseListParams parses limit, offset, q and sort.
// Defaults: limit=50 (max 200), offset=0
func ParseListParams(values url.Values) ListParams {
	limit := DefaultLimit
	if s := strings.TrimSpace(values.Get("limit")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			if v > MaxLimit {
				v = MaxLimit
			}
			limit = v
		}
	}

	offset := 0
	if s := strings.TrimSpace(values.Get("offset")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	return ListParams{
		Limit:  limit,
		Offset: offset,
		Q:      strings.TrimSpace(values.Get("q")),
		Sort:   strings.TrimSpace(values.Get("sort")),
	}
}

// Normalized applies the defaults to a zero or out-of-range ListParams.
func (p ListParams) Normalized() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// CacheKey identifies the list query these params describe.
func (p ListParams) CacheKey() string {
	p = p.Normalized()
	return fmt.Sprintf("limit=%d&offset=%d&q=%s&sort=%s",
		p.Limit, p.Offset, url.QueryEscape(p.Q), url.QueryEscape(p.Sort))
}

// buildOrderBy builds a safe ORDER BY clause using a whitelist of allowed keys.
// allowed maps incoming sort keys (e.g., "name") to actual column identifiers.
// Input sort is comma-separated; prefix with '-' for DESC.
// Returns a string starting with " ORDER BY ...". Defaults to fallback.
func buildOrderBy(sortParam string, allowed map[string]string, fallback string) string {
	parts := strings.Split(sortParam, ",")
	clauses := make([]string, 0, len(parts))
	for _, raw := range parts {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(s, "-") {
			desc = true
			s = strings.TrimPrefix(s, "-")
		}
		col, ok := allowed[s]
		if !ok {
			continue
		}
		if desc {
			clauses = append(clauses, col+" DESC")
		} else {
			clauses = append(clauses, col+" ASC")
		}
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
