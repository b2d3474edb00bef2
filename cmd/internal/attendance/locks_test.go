package attendance

import (
	"sync"
	"testing"
)

func TestClassLocks_SerializesPerKeyAndCleansUp(t *testing.T) {
	t.Parallel()

	l := newClassLocks()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("c1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("counter=%d", counter)
	}
	if n := l.len(); n != 0 {
		t.Fatalf("lock map not cleaned up: %d", n)
	}
}

func TestClassLocks_IndependentKeys(t *testing.T) {
	t.Parallel()

	l := newClassLocks()
	unlockA := l.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.lock("b")
		unlock()
		close(done)
	}()
	<-done
}
