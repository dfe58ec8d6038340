package mapview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowList(t *testing.T) {
	keys := []string{"501-01-001", "501-01-002"}
	f := AllowList("apn", keys)
	keys[0] = "mutated"

	assert.True(t, f.Matches(map[string]any{"apn": "501-01-001"}))
	assert.False(t, f.Matches(map[string]any{"apn": "501-01-003"}))
	assert.False(t, f.Matches(map[string]any{"owner": "x"}))
	assert.Equal(t, []any{"in", []any{"get", "apn"}, []any{"literal", []any{"501-01-001", "501-01-002"}}}, f.Expression())
}

func TestMatchNothing(t *testing.T) {
	assert.Equal(t, MatchNothing(), AllowList("apn", nil))
	assert.False(t, MatchNothing().Matches(map[string]any{"apn": "x"}))
	assert.Equal(t, []any{"boolean", false}, MatchNothing().Expression())
}

func TestZeroFilterMatchesAll(t *testing.T) {
	var f Filter
	assert.True(t, f.Matches(nil))
	assert.Equal(t, []any{"boolean", true}, f.Expression())
}
