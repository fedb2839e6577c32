package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/lucid/pkg/audit"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	low, high, bad := 0.2, 0.9, 1.5

	tests := []struct {
		name    string
		query   *audit.Query
		wantErr bool
		errMsg  string
	}{
		{
			name: "all filters",
			query: &audit.Query{
				StartTime:     &past,
				EndTime:       &now,
				TraceIDs:      []string{"trace-659e2219dea89d28"},
				ModelVersion:  "v1.0",
				MinConfidence: &low,
				MaxConfidence: &high,
				Limit:         100,
				SortBy:        audit.SortByConfidence,
				SortOrder:     "asc",
			},
		},
		{name: "empty query", query: &audit.Query{}},
		{name: "negative limit", query: &audit.Query{Limit: -1}, wantErr: true, errMsg: "limit must be >= 0"},
		{name: "limit above max", query: &audit.Query{Limit: MaxLimit + 1}, wantErr: true, errMsg: "limit must be <="},
		{name: "negative offset", query: &audit.Query{Offset: -1}, wantErr: true, errMsg: "offset must be >= 0"},
		{name: "sort field", query: &audit.Query{SortBy: "cost"}, wantErr: true, errMsg: "invalid sort field"},
		{name: "sort order", query: &audit.Query{SortOrder: "up"}, wantErr: true, errMsg: "invalid sort order"},
		{name: "inverted time range", query: &audit.Query{StartTime: &now, EndTime: &past}, wantErr: true, errMsg: "start_time"},
		{name: "confidence out of range", query: &audit.Query{MaxConfidence: &bad}, wantErr: true, errMsg: "max_confidence must be between"},
		{name: "inverted confidence", query: &audit.Query{MinConfidence: &high, MaxConfidence: &low}, wantErr: true, errMsg: "min_confidence must be <="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var qerr *audit.QueryError
			if !errors.As(err, &qerr) {
				t.Errorf("Expected *audit.QueryError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidate_CustomMaxLimit(t *testing.T) {
	if err := Validate(&audit.Query{Limit: 11}, 10); err == nil {
		t.Error("Expected error above custom max limit")
	}
	if err := Validate(&audit.Query{Limit: 10}, 10); err != nil {
		t.Errorf("Expected limit at max to be valid, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &audit.Query{}
	ApplyDefaults(q, 0)

	if q.Limit != DefaultLimit {
		t.Errorf("Expected limit %d, got %d", DefaultLimit, q.Limit)
	}
	if q.SortBy != audit.SortByDecidedAt || q.SortOrder != "desc" {
		t.Errorf("Expected decided_at desc, got %s %s", q.SortBy, q.SortOrder)
	}

	q = &audit.Query{Limit: 5, SortBy: audit.SortByConfidence, SortOrder: "asc"}
	ApplyDefaults(q, 50)
	if q.Limit != 5 || q.SortBy != audit.SortByConfidence || q.SortOrder != "asc" {
		t.Errorf("Expected explicit values kept, got %+v", q)
	}
}

func TestParseVerdict(t *testing.T) {
	if v, err := ParseVerdict(""); err != nil || v != nil {
		t.Errorf("Expected no filter, got %v, %v", v, err)
	}
	if v, err := ParseVerdict("allowed"); err != nil || v == nil || !*v {
		t.Errorf("Expected allowed=true, got %v, %v", v, err)
	}
	if v, err := ParseVerdict("blocked"); err != nil || v == nil || *v {
		t.Errorf("Expected allowed=false, got %v, %v", v, err)
	}
	if _, err := ParseVerdict("maybe"); err == nil {
		t.Error("Expected error for unknown verdict")
	}
}
