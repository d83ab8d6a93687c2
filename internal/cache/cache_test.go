package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rowanhenning/weather-data-service/internal/models"
)

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them unchanged, original timestamp included.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clk)

	stamp := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	val := models.WeatherReport{Location: "london", Temperature: 20.5, Timestamp: stamp}
	if err := c.Set(ctx, "london", val, 15*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "london")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != val {
		t.Errorf("Get() = %+v, want stored value unchanged %+v", got, val)
	}
	if !got.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want original %v (hits must not re-stamp)", got.Timestamp, stamp)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that entries become unavailable once
// the TTL elapses and are removed from the cache on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clk)

	val := models.WeatherReport{Location: "london"}
	if err := c.Set(ctx, "london", val, 15*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Just inside the window: still a hit.
	clk.Advance(15 * time.Minute)
	if _, ok, _ := c.Get(ctx, "london"); !ok {
		t.Error("Get() ok = false inside the cache window, want true")
	}

	clk.Advance(time.Second)
	_, ok, err := c.Get(ctx, "london")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}

	// Expired entry should have been removed.
	c.mu.Lock()
	_, present := c.data["london"]
	c.mu.Unlock()
	if present {
		t.Error("expired entry should be deleted from cache")
	}
}

// TestInMemoryCache_PerLocationKeys verifies that entries for different
// locations do not evict or shadow one another.
func TestInMemoryCache_PerLocationKeys(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clk)

	london := models.WeatherReport{Location: "london", Temperature: 20.5}
	tokyo := models.WeatherReport{Location: "tokyo", Temperature: 28.0}
	_ = c.Set(ctx, "london", london, 15*time.Minute)
	_ = c.Set(ctx, "tokyo", tokyo, 15*time.Minute)

	gotLondon, ok, _ := c.Get(ctx, "london")
	if !ok || gotLondon.Temperature != 20.5 {
		t.Errorf("london entry = %+v ok=%v, want original value", gotLondon, ok)
	}
	gotTokyo, ok, _ := c.Get(ctx, "tokyo")
	if !ok || gotTokyo.Temperature != 28.0 {
		t.Errorf("tokyo entry = %+v ok=%v, want original value", gotTokyo, ok)
	}
}

// TestInMemoryCache_Overwrite verifies last-writer-wins on the same key.
func TestInMemoryCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clk)

	_ = c.Set(ctx, "london", models.WeatherReport{Temperature: 20.5}, 15*time.Minute)
	_ = c.Set(ctx, "london", models.WeatherReport{Temperature: 21.0}, 15*time.Minute)

	got, ok, _ := c.Get(ctx, "london")
	if !ok || got.Temperature != 21.0 {
		t.Errorf("Get() = %+v ok=%v, want overwritten value", got, ok)
	}
}

// TestInMemoryCache_ConcurrentAccess exercises the critical section under
// concurrent readers and writers; run with -race.
func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "london", models.WeatherReport{Temperature: float64(j)}, time.Minute)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _, _ = c.Get(ctx, "london")
			}
		}()
	}
	wg.Wait()
}
