package hid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/yarf/internal/fault"
)

func TestLookupCharLetters(t *testing.T) {
	for _, tc := range []struct {
		r     rune
		code  uint32
		shift bool
	}{
		{'a', 30, false},
		{'b', 48, false},
		{'c', 46, false},
		{'A', 30, true},
		{'Z', 44, true},
		{'1', 2, false},
		{'!', 2, true},
		{' ', codeSpace, false},
		{'_', 12, true},
	} {
		key, err := lookupChar(tc.r)
		require.NoError(t, err, string(tc.r))
		assert.Equal(t, tc.code, key.Code, string(tc.r))
		assert.Equal(t, tc.shift, key.Shift, string(tc.r))
	}
}

func TestLookupCharUnmapped(t *testing.T) {
	_, err := lookupChar('é')
	var cfg *fault.ConfigurationError
	require.ErrorAs(t, err, &cfg)
}

func TestLookupName(t *testing.T) {
	for _, tc := range []struct {
		name string
		code uint32
	}{
		{"ENTER", codeEnter},
		{"enter", codeEnter},
		{"LEFT_ALT", codeLeftAlt},
		{"SHIFT", codeLeftShift},
		{"F1", 59},
		{"F12", 88},
		{"a", 30},
		{"DELETE", codeDelete},
	} {
		code, err := lookupName(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.code, code, tc.name)
	}
}

func TestLookupNameUnknown(t *testing.T) {
	_, err := lookupName("HYPER")
	var cfg *fault.ConfigurationError
	require.ErrorAs(t, err, &cfg)
}
