package s3lite

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocksSerializeSameKey(t *testing.T) {
	var (
		locks   keyLocks
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("docs/k")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.len())
}

func TestKeyLocksIndependentKeys(t *testing.T) {
	var locks keyLocks
	unlockA := locks.lock("docs/a")

	done := make(chan struct{})
	go func() {
		unlock := locks.lock("docs/b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on docs/b waited for docs/a")
	}

	assert.Equal(t, 1, locks.len())
	unlockA()
	assert.Zero(t, locks.len())
}
