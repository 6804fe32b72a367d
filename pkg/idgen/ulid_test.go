package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortedAndUnique(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New()
	}

	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		assert.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
		if i > 0 {
			assert.LessOrEqual(t, ids[i-1], id, "ids must be non-decreasing")
		}
	}
}

func TestTimeRoundTrips(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := New()
	after := time.Now().Add(time.Second)

	ts := Time(id)
	assert.True(t, ts.After(before) && ts.Before(after))
}

func TestTimeOnMalformedID(t *testing.T) {
	assert.True(t, Time("not-a-ulid").IsZero())
}
