package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytes32(t *testing.T) {
	b, err := EncodeBytes32("run-001")
	require.NoError(t, err)
	assert.Equal(t, "run-001", b.String())
	assert.False(t, b.IsZero())

	_, err = EncodeBytes32("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = EncodeBytes32(strings.Repeat("x", 32))
	assert.NoError(t, err)

	_, err = EncodeBytes32(strings.Repeat("x", 33))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestEncodeBytes32CountsBytesAfterNormalization(t *testing.T) {
	decomposed := strings.Repeat("e\u0301", 16)
	require.Len(t, decomposed, 48)

	b, err := EncodeBytes32(decomposed)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("\u00e9", 16), b.String())

	_, err = EncodeBytes32(strings.Repeat("e\u0301", 17))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestEncodeBytes32RejectsInvalidUTF8(t *testing.T) {
	for _, s := range []string{"run-\xff", "\xc3", "ok\xed\xa0\x80"} {
		_, err := EncodeBytes32(s)
		assert.ErrorIs(t, err, ErrInvalidTx, "%q", s)
	}
}

func TestBytes32TextRoundTrip(t *testing.T) {
	b, err := EncodeBytes32("ADMIN")
	require.NoError(t, err)

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "0x"))

	var back Bytes32
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, b, back)
}

func TestParseAddress(t *testing.T) {
	const valid = "0x52908400098527886E0F7030069857D2E4169EE7"

	a, err := ParseAddress(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, a.Hex())

	for name, in := range map[string]string{
		"short by one": valid[:len(valid)-1],
		"non-hex":      "0x52908400098527886E0F7030069857D2E4169EZ7",
		"empty":        "",
		"zero":         "0x0000000000000000000000000000000000000000",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAddress(in)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}
