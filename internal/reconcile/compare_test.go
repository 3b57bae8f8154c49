package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/zfswitness/internal/models"
)

func day(d string) time.Time {
	ts, err := time.Parse("2006-01-02", d)
	if err != nil {
		panic(err)
	}
	return ts.UTC()
}

func TestExtractSnapshotName(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "full zfs name", raw: "tank/data@2025-11-30-000000", expected: "2025-11-30-000000"},
		{name: "already normalized", raw: "2025-11-30-000000", expected: "2025-11-30-000000"},
		{name: "nested dataset", raw: "tank/a/b@daily", expected: "daily"},
		{name: "multiple at signs", raw: "tank/odd@name@real", expected: "real"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, models.ExtractSnapshotName(tt.raw))
		})
	}
}

func TestCompare(t *testing.T) {
	snaps := map[string][]*models.Snapshot{
		"node-a": {
			testSnapshot("node-a", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil),
			testSnapshot("node-a", "tank", "data", "2025-11-02-000000", day("2025-11-02"), nil),
			testSnapshot("node-a", "tank", "data", "2025-11-03-000000", day("2025-11-03"), nil),
		},
		"node-b": {
			testSnapshot("node-b", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil),
			testSnapshot("node-b", "tank", "data", "2025-11-02-000000", day("2025-11-02"), nil),
		},
		"node-c": {
			testSnapshot("node-c", "tank", "data", "2025-11-01-000000", day("2025-11-01"), nil),
			testSnapshot("node-c", "tank", "data", "2025-10-15-000000", day("2025-10-15"), nil),
		},
	}

	cmp := Compare("data", snaps)

	assert.Equal(t, []string{"2025-11-01-000000"}, cmp.Common)

	assert.Equal(t, []string{"2025-11-03-000000"}, cmp.Unique["node-a"])
	assert.Empty(t, cmp.Unique["node-b"])
	assert.Equal(t, []string{"2025-10-15-000000"}, cmp.Unique["node-c"])

	assert.Equal(t, []string{"2025-10-15-000000"}, cmp.Missing["node-a"])
	assert.Equal(t, []string{"2025-10-15-000000", "2025-11-03-000000"}, cmp.Missing["node-b"])
	assert.Equal(t, []string{"2025-11-02-000000", "2025-11-03-000000"}, cmp.Missing["node-c"])

	require.NotNil(t, cmp.Latest["node-a"])
	assert.Equal(t, "2025-11-03-000000", cmp.Latest["node-a"].ShortName())
	assert.Equal(t, "2025-11-01-000000", cmp.Latest["node-c"].ShortName())
}

// Каждое имя либо common, либо unique ровно у держателей, либо missing у
// всех не-держателей
func TestCompareConsistency(t *testing.T) {
	snaps := map[string][]*models.Snapshot{
		"node-a": {
			testSnapshot("node-a", "tank", "data", "s1", day("2025-11-01"), nil),
			testSnapshot("node-a", "tank", "data", "s2", day("2025-11-02"), nil),
		},
		"node-b": {
			testSnapshot("node-b", "tank", "data", "s2", day("2025-11-02"), nil),
			testSnapshot("node-b", "tank", "data", "s3", day("2025-11-03"), nil),
		},
	}

	cmp := Compare("data", snaps)

	for _, name := range cmp.Common {
		for nodeID := range snaps {
			assert.True(t, cmp.HasName(nodeID, name), "common name %s absent on %s", name, nodeID)
		}
	}
	for nodeID := range snaps {
		for _, name := range cmp.Missing[nodeID] {
			assert.False(t, cmp.HasName(nodeID, name))
			assert.NotContains(t, cmp.Common, name)
		}
		for _, name := range cmp.Unique[nodeID] {
			assert.True(t, cmp.HasName(nodeID, name))
			for otherID := range snaps {
				if otherID != nodeID {
					assert.False(t, cmp.HasName(otherID, name))
				}
			}
		}
	}
}

func TestCompareSingleNode(t *testing.T) {
	snaps := map[string][]*models.Snapshot{
		"node-a": {
			testSnapshot("node-a", "tank", "data", "s1", day("2025-11-01"), nil),
		},
	}

	cmp := Compare("data", snaps)

	assert.Equal(t, []string{"s1"}, cmp.Common)
	assert.Equal(t, []string{"s1"}, cmp.Unique["node-a"])
	assert.Empty(t, cmp.Missing["node-a"])
}

func TestCompareEmpty(t *testing.T) {
	cmp := Compare("data", map[string][]*models.Snapshot{})
	assert.Empty(t, cmp.Common)
	assert.Empty(t, cmp.Unique)
	assert.Empty(t, cmp.Missing)
}
