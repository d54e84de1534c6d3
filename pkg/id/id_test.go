package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestAtUsesTimestamp(t *testing.T) {
	t.Parallel()

	early := At(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	late := At(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Less(t, early, late)
	assert.Len(t, early, 26)
}

func TestPrefixed(t *testing.T) {
	t.Parallel()

	got := Prefixed("ord")
	assert.True(t, strings.HasPrefix(got, "ord_"))
	assert.Len(t, got, 30)
}
