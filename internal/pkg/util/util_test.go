package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Type string `validate:"required,oneof=join send"`
}

func TestValidateDTO(t *testing.T) {
	assert.NoError(t, ValidateDTO(&sample{Type: "join"}))
	err := ValidateDTO(&sample{Type: "leave"})
	assert.ErrorContains(t, err, "oneof")
	assert.Error(t, ValidateDTO(&sample{}))
}

func TestParseID(t *testing.T) {
	id, ok := ParseID("42")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	for _, raw := range []string{"", "0", "-1", "abc"} {
		_, ok = ParseID(raw)
		assert.False(t, ok, raw)
	}
}
