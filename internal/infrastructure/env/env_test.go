package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetters(t *testing.T) {
	t.Setenv("GHOSTLINE_STR", "value")
	t.Setenv("GHOSTLINE_INT", "42")
	t.Setenv("GHOSTLINE_BAD_INT", "forty-two")
	t.Setenv("GHOSTLINE_BOOL", "true")
	t.Setenv("GHOSTLINE_DURATION", "90s")

	assert.Equal(t, "value", GetString("GHOSTLINE_STR", "fallback"))
	assert.Equal(t, "fallback", GetString("GHOSTLINE_MISSING", "fallback"))
	assert.Equal(t, 42, GetInt("GHOSTLINE_INT", 1))
	assert.Equal(t, 1, GetInt("GHOSTLINE_BAD_INT", 1))
	assert.True(t, GetBool("GHOSTLINE_BOOL", false))
	assert.Equal(t, 90*time.Second, GetDuration("GHOSTLINE_DURATION", time.Second))
	assert.Equal(t, time.Second, GetDuration("GHOSTLINE_MISSING", time.Second))
}
