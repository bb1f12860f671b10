package asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeASMNumberZero(t *testing.T) {
	enc, err := EncodeASMNumber(0)
	require.NoError(t, err)
	require.Equal(t, "OP_0", enc)
}

func TestEncodeNumberNonEmpty(t *testing.T) {
	cases := []int64{1, -1, 127, 128, -128, 255, 256, 5, -5, 1000000}
	for _, n := range cases {
		enc, err := EncodeNumber(n)
		require.NoError(t, err)
		require.NotEmpty(t, enc)
	}
}

func TestEncodeNumberOverflow(t *testing.T) {
	_, err := EncodeNumber(maxSafeInteger + 1)
	require.Error(t, err)

	var numErr *Error
	require.ErrorAs(t, err, &numErr)
}

func TestDecodeNumber(t *testing.T) {
	n, err := DecodeNumber("5")
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	_, err = DecodeNumber("not-a-number")
	require.Error(t, err)
}
