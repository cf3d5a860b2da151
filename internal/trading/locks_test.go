package trading

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocks_SerializesOneUser(t *testing.T) {
	locks := newAccountLocks()
	unlock := locks.Lock(1)

	acquired := make(chan struct{})
	go func() {
		release := locks.Lock(1)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	// a different user is not blocked
	other := locks.Lock(2)
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was never handed over")
	}
}

func TestAccountLocks_Cleanup(t *testing.T) {
	locks := newAccountLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())

	unlock := locks.Lock(9)
	assert.Equal(t, 1, locks.size())
	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, locks.size())
}
