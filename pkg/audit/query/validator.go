package query

import (
	"fmt"
	"math"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
)

const (
	// DefaultLimit is applied to queries that set no limit.
	DefaultLimit = config.DefaultAuditQueryDefaultLimit

	// MaxLimit is the largest limit a single query may request.
	MaxLimit = config.DefaultAuditQueryMaxLimit
)

// Verdict filter values accepted by ParseVerdict.
const (
	VerdictAllowed = "allowed"
	VerdictBlocked = "blocked"
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	audit.SortByDecidedAt:  true,
	audit.SortByRecordedAt: true,
	audit.SortByConfidence: true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate validates q against maxLimit. A non-positive maxLimit selects
// MaxLimit.
func Validate(q *audit.Query, maxLimit int) error {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}

	if q.Limit < 0 {
		return audit.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > maxLimit {
		return audit.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", maxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return audit.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return audit.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return audit.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return audit.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	bounds := []struct {
		name  string
		value *float64
	}{{"min_confidence", q.MinConfidence}, {"max_confidence", q.MaxConfidence}}
	for _, b := range bounds {
		if bound := b.value; bound != nil && (math.IsNaN(*bound) || *bound < 0 || *bound > 1) {
			return audit.NewQueryError(q, fmt.Errorf("%s must be between 0 and 1, got %v", b.name, *bound))
		}
	}
	if q.MinConfidence != nil && q.MaxConfidence != nil && *q.MinConfidence > *q.MaxConfidence {
		return audit.NewQueryError(q, fmt.Errorf("min_confidence must be <= max_confidence"))
	}

	return nil
}

// ApplyDefaults fills in the limit and the sort order (newest decision
// first). A non-positive defaultLimit selects DefaultLimit.
func ApplyDefaults(q *audit.Query, defaultLimit int) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = audit.SortByDecidedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// ParseVerdict converts "allowed" or "blocked" into an Allowed filter. An
// empty string means no filter.
func ParseVerdict(s string) (*bool, error) {
	var allowed bool
	switch s {
	case "":
		return nil, nil
	case VerdictAllowed:
		allowed = true
	case VerdictBlocked:
		allowed = false
	default:
		return nil, fmt.Errorf("invalid verdict %q (must be %s or %s)", s, VerdictAllowed, VerdictBlocked)
	}
	return &allowed, nil
}
