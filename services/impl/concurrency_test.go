package impl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyManagerBounds(t *testing.T) {
	m := NewConcurrencyManager(3)

	var releases []func()
	for i := 1; i <= 3; i++ {
		release, active, ok := m.TryAcquire()
		require.True(t, ok, "slot %d should be available", i)
		assert.Equal(t, i, active)
		releases = append(releases, release)
	}

	_, active, ok := m.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 3, active)
	assert.Equal(t, 3, m.Active())
	assert.Equal(t, 3, m.Max())

	releases[0]()
	assert.Equal(t, 2, m.Active())

	release, _, ok := m.TryAcquire()
	require.True(t, ok)
	release()

	for _, r := range releases[1:] {
		r()
	}
	assert.Equal(t, 0, m.Active())
}

func TestConcurrencyManagerDoubleReleaseIsSafe(t *testing.T) {
	m := NewConcurrencyManager(2)

	release, _, ok := m.TryAcquire()
	require.True(t, ok)

	release()
	release()
	release()

	assert.Equal(t, 0, m.Active())

	// A leaked extra release must not have widened the semaphore
	r1, _, ok := m.TryAcquire()
	require.True(t, ok)
	r2, _, ok := m.TryAcquire()
	require.True(t, ok)
	_, _, ok = m.TryAcquire()
	assert.False(t, ok)

	r1()
	r2()
}

func TestConcurrencyManagerMinimumOfOne(t *testing.T) {
	m := NewConcurrencyManager(0)
	assert.Equal(t, 1, m.Max())

	release, _, ok := m.TryAcquire()
	require.True(t, ok)
	_, _, ok = m.TryAcquire()
	assert.False(t, ok)
	release()
}
