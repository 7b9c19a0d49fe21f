package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_Serializes_Same_Key(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex[string]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("m1")
			defer unlock()
			mu.Lock()
			inFlight++
			maxInFlight = max(maxInFlight, inFlight)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	req.Equal(1, maxInFlight)
	req.Equal(0, locks.Len())
}

func TestKeyedMutex_Other_Keys_Do_Not_Wait(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex[string]()
	unlock := locks.Lock("m1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := locks.Lock("m2")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("m2 waited for m1")
	}
	req.Equal(1, locks.Len())
}
