package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRWMutex_SerialisesOneKey(t *testing.T) {
	locks := newKeyedRWMutex()
	counter := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("a")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}

func TestKeyedRWMutex_IndependentKeys(t *testing.T) {
	locks := newKeyedRWMutex()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, locks.size())
	unlockA()
	assert.Zero(t, locks.size())
}

func TestKeyedRWMutex_SharedReaders(t *testing.T) {
	locks := newKeyedRWMutex()

	r1 := locks.RLock("a")
	r2 := locks.RLock("a")
	assert.Equal(t, 1, locks.size())
	r1()
	r2()
	assert.Zero(t, locks.size())
}
