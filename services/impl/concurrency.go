package impl

import (
	"sync/atomic"

	"github.com/ragdock/services"
	"golang.org/x/sync/semaphore"
)

type concurrencyManagerImpl struct {
	sem    *semaphore.Weighted
	active atomic.Int64
	max    int
}

func NewConcurrencyManager(maxConcurrent int) services.ConcurrencyManager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &concurrencyManagerImpl{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		max: maxConcurrent,
	}
}

func (m *concurrencyManagerImpl) TryAcquire() (func(), int, bool) {
	if !m.sem.TryAcquire(1) {
		return nil, int(m.active.Load()), false
	}

	active := int(m.active.Add(1))

	var released atomic.Bool
	release := func() {
		// Double release would corrupt the semaphore count
		if released.CompareAndSwap(false, true) {
			m.active.Add(-1)
			m.sem.Release(1)
		}
	}

	return release, active, true
}

func (m *concurrencyManagerImpl) Active() int {
	return int(m.active.Load())
}

func (m *concurrencyManagerImpl) Max() int {
	return m.max
}
