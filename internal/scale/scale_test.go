package scale

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCompactKnownVectors(t *testing.T) {
	vectors := []struct{ dec, want string }{
		{"0", "00"},
		{"1", "04"},
		{"63", "fc"},
		{"64", "0101"},
		{"16383", "fdff"},
		{"16384", "02000100"},
		{"1073741823", "feffffff"},
		{"1073741824", "0300000040"},
		{"1000000000000", "070010a5d4e8"},
		{"340282366920938463463374607431768211455", "33ffffffffffffffffffffffffffffffff"},
	}
	for _, vec := range vectors {
		dec, want := vec.dec, vec.want
		v, ok := new(big.Int).SetString(dec, 10)
		require.True(t, ok)
		got, err := EncodeCompact(v)
		require.NoError(t, err, dec)
		assert.Equal(t, want, hex.EncodeToString(got), dec)

		decoded, n, err := DecodeCompact(got)
		require.NoError(t, err)
		assert.Equal(t, len(got), n)
		assert.Equal(t, 0, decoded.Cmp(v), dec)
	}
}

func TestEncoderChaining(t *testing.T) {
	out, err := NewEncoder().U8(5).U8(3).U8(0).Raw(make([]byte, 2)).CompactUint(1).U32(1).Result()
	require.NoError(t, err)
	assert.Equal(t, "05030000000401000000", hex.EncodeToString(out))
}

func TestEncoderBytesPrefixesLength(t *testing.T) {
	out, err := NewEncoder().Bytes([]byte("abc")).Result()
	require.NoError(t, err)
	assert.Equal(t, "0c616263", hex.EncodeToString(out))
}

func TestU128RoundTrip(t *testing.T) {
	v := big.NewInt(123456789)
	out, err := NewEncoder().U128(v).Result()
	require.NoError(t, err)
	require.Len(t, out, 16)

	decoded, err := DecodeU128(out)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Cmp(v))

	_, err = NewEncoder().U128(big.NewInt(-1)).Result()
	require.Error(t, err)
}

func TestDecodeCompactShortInput(t *testing.T) {
	_, _, err := DecodeCompact(nil)
	require.ErrorIs(t, err, ErrShortInput)
	_, _, err = DecodeCompact([]byte{0x01})
	require.ErrorIs(t, err, ErrShortInput)
	_, _, err = DecodeCompact([]byte{0x07, 0x00})
	require.ErrorIs(t, err, ErrShortInput)
}
