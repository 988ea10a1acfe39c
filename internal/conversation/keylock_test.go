package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	const workers = 20
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("U1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("U1")
	done := make(chan struct{})
	go func() {
		u := km.Lock("U2")
		u()
		close(done)
	}()
	<-done // a different key must not block
	unlock()
}

func TestKeyedMutex_EntriesReleased(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("U1")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks, "released keys must not accumulate")
}
