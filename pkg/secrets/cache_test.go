package secrets

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type operatorSecret struct {
	Email    string
	Password string
}

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*Cache[operatorSecret], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache[operatorSecret](ttl)
	c.now = clock.Now
	return c, clock
}

func TestCache_PutAndGet(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	key := "dev/greenhouse/operator"

	_, ok := c.Get(key)
	assert.False(t, ok, "expected miss on empty cache")

	c.Put(key, operatorSecret{Email: "ops@farm.io", Password: "pw"})

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "ops@farm.io", got.Email)
}

func TestCache_Expiration(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("k", operatorSecret{Email: "a"})

	clock.Advance(61 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok, "expected expired entry to miss")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
}

func TestCache_Bust(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("k", operatorSecret{Email: "a"})

	c.Bust("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_CleanupExpired(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("old", operatorSecret{})
	clock.Advance(2 * time.Minute)
	c.Put("fresh", operatorSecret{})

	c.cleanupExpired()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCache_StartCleanerStops(t *testing.T) {
	c := NewCache[operatorSecret](time.Minute)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		c.StartCleaner(5*time.Millisecond, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache[operatorSecret](time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("k", operatorSecret{Email: "a"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get("k")
			}
		}()
	}
	wg.Wait()

	_, ok := c.Get("k")
	assert.True(t, ok)
}
