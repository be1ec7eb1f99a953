package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTable(t *testing.T) {
	locks := newLockTable()

	unlock, ok := locks.tryLock("a")
	require.True(t, ok)
	_, ok = locks.tryLock("a")
	assert.False(t, ok)

	unlockB, ok := locks.tryLock("b")
	require.True(t, ok)
	assert.Equal(t, 2, locks.size())

	unlock()
	unlock()
	assert.Equal(t, 1, locks.size())

	again, ok := locks.tryLock("a")
	require.True(t, ok)
	again()
	unlockB()
	assert.Equal(t, 0, locks.size())
}
