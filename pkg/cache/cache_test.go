package cache

import (
	"sync"
	"testing"

	"github.com/lenstools/metacal/pkg/errors"
)

type testKey struct {
	Rows, Cols int
	G1, G2     float64
}

func TestGetPut(t *testing.T) {
	c := New[testKey, []float64]()

	key := testKey{Rows: 32, Cols: 32, G1: 0.01}

	if _, ok := c.Get(key); ok {
		t.Fatal("Get() on empty cache should miss")
	}

	if err := c.Put(key, []float64{1, 2, 3}); err != nil {
		t.Fatalf("Put() error = %v, want nil", err)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Get() after Put should hit")
	}
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("Get() = %v, want [1 2 3]", got)
	}

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestDistinctKeys(t *testing.T) {
	c := New[testKey, int]()

	a := testKey{Rows: 32, Cols: 32, G1: 0.01}
	b := testKey{Rows: 32, Cols: 32, G1: -0.01}

	_ = c.Put(a, 1)
	_ = c.Put(b, 2)

	if got, _ := c.Get(a); got != 1 {
		t.Errorf("Get(a) = %d, want 1", got)
	}
	if got, _ := c.Get(b); got != 2 {
		t.Errorf("Get(b) = %d, want 2", got)
	}
}

func TestGetOrCompute(t *testing.T) {
	c := New[testKey, int]()
	key := testKey{Rows: 16, Cols: 16}

	calls := 0
	compute := func() (int, error) { calls++; return 7, nil }

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute(key, compute)
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
		if got != 7 {
			t.Errorf("GetOrCompute() = %d, want 7", got)
		}
	}

	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}

func TestCapacity(t *testing.T) {
	c := NewWithCapacity[testKey, int](1)

	if err := c.Put(testKey{Rows: 1}, 1); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}

	err := c.Put(testKey{Rows: 2}, 2)
	if !errors.IsErrorCode(err, errors.ErrInvalidInput) {
		t.Errorf("Put() beyond capacity should return ErrInvalidInput, got %v", err)
	}

	// Overwriting an existing key is always allowed
	if err := c.Put(testKey{Rows: 1}, 10); err != nil {
		t.Errorf("overwrite Put() error = %v", err)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[testKey, int]()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := testKey{Rows: i % 4}
			_, _ = c.GetOrCompute(key, func() (int, error) { return i, nil })
			_, _ = c.Get(key)
		}(i)
	}
	wg.Wait()

	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}
