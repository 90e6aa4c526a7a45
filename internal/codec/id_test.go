package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seqs := []int64{0, 1, 2, 3, 7, 1023, 1024, 65535, math.MaxInt32, math.MinInt32, -1, -2, math.MaxInt64, math.MinInt64}
	for _, s := range seqs {
		got, err := Decode(Encode(s))
		require.NoError(t, err)
		assert.Equal(t, s, got, "seq %d", s)
	}
}

func TestEncodeNoCollision(t *testing.T) {
	seen := make(map[string]int64)
	for s := int64(-5000); s <= 5000; s++ {
		id := Encode(s)
		if prev, ok := seen[id]; ok {
			t.Fatalf("seq %d and %d share id %s", prev, s, id)
		}
		seen[id] = s
	}
}

func TestEncodeDomains(t *testing.T) {
	assert.Equal(t, "0", Encode(0))
	assert.Equal(t, "2", Encode(1))
	assert.Equal(t, "1", Encode(-1))
	assert.Equal(t, "4294967294", Encode(math.MaxInt32))
}

func TestDecodeInvalid(t *testing.T) {
	for _, id := range []string{"", "abc", "-3", "1.5", "184467440737095516160"} {
		_, err := Decode(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
		assert.False(t, Valid(id))
	}
	assert.True(t, Valid("42"))
}
