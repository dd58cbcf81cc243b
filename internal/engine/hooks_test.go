package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/flowcore/internal/acterr"
)

func TestParseDuration_AcceptsAllUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for spec, want := range cases {
		got, err := parseDuration(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, want, got, spec)
	}
}

func TestParseDuration_RejectsBadUnitOrEmpty(t *testing.T) {
	_, err := parseDuration("")
	assert.Error(t, err)

	_, err = parseDuration("10x")
	assert.Error(t, err)
}

func TestErrorCode_ExtractsEcodeOnlyForException(t *testing.T) {
	assert.Equal(t, "404", errorCode(acterr.NewException("404", "not found")))
	assert.Equal(t, "", errorCode(acterr.Runtime("boom")))
	assert.Equal(t, "", errorCode(errors.New("plain error")))
}

func TestAs_MatchesFirstActerrInChain(t *testing.T) {
	inner := acterr.NewException("E1", "bad")
	wrapped := acterr.Wrap(acterr.KindRuntime, "outer", inner)

	var target *acterr.Error
	require.True(t, as(wrapped, &target))
	assert.Equal(t, acterr.KindRuntime, target.Kind)
}

func TestAs_ReturnsFalseForPlainError(t *testing.T) {
	var target *acterr.Error
	assert.False(t, as(errors.New("plain"), &target))
}
