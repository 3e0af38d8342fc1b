package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounterKey(t *testing.T) {
	t.Run("key carries the UTC date and dimension", func(t *testing.T) {
		day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, "gov:counters:2026-03-01:actions:total", counterKey(day, "actions:total"))
	})

	t.Run("local times normalize to the UTC date", func(t *testing.T) {
		eastern := time.FixedZone("UTC-5", -5*60*60)
		// 23:30 local on March 1 is already March 2 in UTC.
		day := time.Date(2026, 3, 1, 23, 30, 0, 0, eastern)
		assert.Equal(t, "gov:counters:2026-03-02:violations:total", counterKey(day, "violations:total"))
	})
}
