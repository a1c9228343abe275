package amendments

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow replays a row in requestColumns order. Nil values go to pointer
// targets only, mirroring how the driver treats SQL NULL.
type fakeRow struct {
	vals []any
}

func (f fakeRow) Scan(dest ...any) error {
	if len(dest) != len(f.vals) {
		return fmt.Errorf("scan: %d targets for %d values", len(dest), len(f.vals))
	}
	for i, v := range f.vals {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *string:
			if v == nil {
				return fmt.Errorf("scan: NULL into string at position %d", i)
			}
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		case **int:
			if v == nil {
				*d = nil
			} else {
				n := v.(int)
				*d = &n
			}
		case **int64:
			if v == nil {
				*d = nil
			} else {
				n := v.(int64)
				*d = &n
			}
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				ts := v.(time.Time)
				*d = &ts
			}
		default:
			return fmt.Errorf("scan: unhandled target %T at position %d", dest[i], i)
		}
	}
	return nil
}

// A pending request has NULL reviewer columns; review_notes must reach the
// scanner as a string because the select list coalesces it.
func TestScanRequestPendingRow(t *testing.T) {
	id := uuid.New()
	entityID := uuid.New()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	req, err := scanRequest(fakeRow{vals: []any{
		id, "business_partner", entityID, []byte(`{"address":"12 Quay St"}`),
		nil, int64(7), "typo fix", "", "PENDING",
		nil, "", nil, created,
	}})
	require.NoError(t, err)

	assert.Equal(t, id, req.ID)
	assert.Equal(t, "business_partner", req.Entity.Kind)
	assert.Equal(t, StatusPending, req.Status)
	assert.Nil(t, req.ExpectedVersion)
	assert.Nil(t, req.ReviewerID)
	assert.Nil(t, req.ReviewedAt)
	assert.Empty(t, req.ReviewNotes)
	assert.Equal(t, map[string]any{"address": "12 Quay St"}, req.Changes)
}

func TestScanRequestReviewedRow(t *testing.T) {
	id := uuid.New()
	entityID := uuid.New()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reviewed := created.Add(2 * time.Hour)

	req, err := scanRequest(fakeRow{vals: []any{
		id, "business_partner", entityID, []byte(`{"name":"Acme"}`),
		3, int64(7), "", "", "APPROVED",
		int64(9), "looks right", reviewed, created,
	}})
	require.NoError(t, err)

	require.NotNil(t, req.ExpectedVersion)
	assert.Equal(t, 3, *req.ExpectedVersion)
	require.NotNil(t, req.ReviewerID)
	assert.Equal(t, int64(9), *req.ReviewerID)
	assert.Equal(t, "looks right", req.ReviewNotes)
	require.NotNil(t, req.ReviewedAt)
	assert.True(t, req.ReviewedAt.Equal(reviewed))
}

// review_notes stays NULL until a request is reviewed, and its scan target
// is a plain string, so the select list has to coalesce it.
func TestRequestColumnsCoalesceReviewNotes(t *testing.T) {
	assert.Contains(t, requestColumns, "COALESCE(review_notes, '')")
	assert.NotContains(t, strings.ReplaceAll(requestColumns, "COALESCE(review_notes", ""), "review_notes")
}
