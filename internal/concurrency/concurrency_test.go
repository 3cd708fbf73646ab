package concurrency

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSafeGoRecoversPanic(t *testing.T) {
	got := make(chan interface{}, 1)
	SafeGo(func() { panic("kaboom") }, func(r interface{}) { got <- r })

	select {
	case r := <-got:
		if r != "kaboom" {
			t.Fatalf("unexpected panic value %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("onPanic not called")
	}
}

func TestPanicError(t *testing.T) {
	base := errors.New("x")
	if PanicError(base) != base {
		t.Fatal("error values must pass through")
	}
	if PanicError(42).Error() != "panic: 42" {
		t.Fatalf("unexpected message %q", PanicError(42).Error())
	}
}

func TestKeyedMutexSerializesAndForgets(t *testing.T) {
	km := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("s1")
			counter++
			km.Unlock("s1")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d", counter)
	}
	if km.Len() != 0 {
		t.Fatalf("expected idle locks to be dropped, have %d", km.Len())
	}
}
