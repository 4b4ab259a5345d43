package loader_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ttlcache "github.com/karupanerura/ttl-cache"
	"github.com/karupanerura/ttl-cache/cachetest"
	"github.com/karupanerura/ttl-cache/loader"
	"golang.org/x/sync/errgroup"
)

// testContext stands in for testing.T.Context, which needs Go 1.24+:
// it returns a context canceled when the test ends.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func TestSingleFlightLoader_CacheHit(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	var calls uint32
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddUint32(&calls, 1)
		return "loaded:" + key, nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute)

	if err := cache.Set("user:1", "cached", time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := users.GetOrLoad(testContext(t), "user:1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "cached" {
		t.Errorf("expected the cached value, got %q", got)
	}
	if n := atomic.LoadUint32(&calls); n != 0 {
		t.Errorf("expected the source to be skipped on a hit, got %d calls", n)
	}
}

func TestSingleFlightLoader_LoadsAndStores(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := cachetest.NewClock(base)
	cache := ttlcache.New[string](
		ttlcache.WithClock[string](clock),
		ttlcache.WithSweepInterval[string](time.Hour),
	)
	defer cache.Close()

	var calls uint32
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddUint32(&calls, 1)
		return "loaded:" + key, nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, 10*time.Minute)

	got, err := users.GetOrLoad(testContext(t), "user:1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "loaded:user:1" {
		t.Errorf("expected the loaded value, got %q", got)
	}
	if n := atomic.LoadUint32(&calls); n != 1 {
		t.Errorf("expected one source call, got %d", n)
	}

	// The loaded value is stored with the loader's ttl.
	expiresAt, ok := cache.GetExpiration("user:1")
	if !ok {
		t.Fatal("expected the loaded value to be stored")
	}
	if want := base.Add(10 * time.Minute); !expiresAt.Equal(want) {
		t.Errorf("expected expiration %v, got %v", want, expiresAt)
	}

	// The second read is a hit.
	if _, err := users.GetOrLoad(testContext(t), "user:1"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadUint32(&calls); n != 1 {
		t.Errorf("expected the second read to hit the cache, got %d source calls", n)
	}
}

func TestSingleFlightLoader_SingleFlight(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	var calls uint32
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddUint32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return "value", nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute)

	start := make(chan struct{})
	var eg errgroup.Group
	for i := 0; i < 20; i++ {
		eg.Go(func() error {
			<-start
			got, err := users.GetOrLoad(testContext(t), "hot")
			if err != nil {
				return err
			}
			if got != "value" {
				return fmt.Errorf("unexpected value %q", got)
			}
			return nil
		})
	}
	close(start)
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := atomic.LoadUint32(&calls); n != 1 {
		t.Errorf("expected concurrent misses to collapse into one source call, got %d", n)
	}
}

func TestSingleFlightLoader_ErrorsPropagateUncached(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	srcErr := errors.New("backend down")
	var calls uint32
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddUint32(&calls, 1)
		return "", srcErr
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute)

	if _, err := users.GetOrLoad(testContext(t), "user:1"); !errors.Is(err, srcErr) {
		t.Fatalf("expected the source error, got %v", err)
	}
	if cache.Contains("user:1") {
		t.Error("expected a failed load to store nothing")
	}

	// Errors are not cached: the next read asks the source again.
	if _, err := users.GetOrLoad(testContext(t), "user:1"); !errors.Is(err, srcErr) {
		t.Fatalf("expected the source error again, got %v", err)
	}
	if n := atomic.LoadUint32(&calls); n != 2 {
		t.Errorf("expected two source calls, got %d", n)
	}
}

func TestSingleFlightLoader_EmptyKey(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	var calls uint32
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddUint32(&calls, 1)
		return "x", nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute)

	if _, err := users.GetOrLoad(testContext(t), ""); !errors.Is(err, ttlcache.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if n := atomic.LoadUint32(&calls); n != 0 {
		t.Errorf("expected the source to never see an empty key, got %d calls", n)
	}
}

func TestSingleFlightLoader_NilValue(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[any]()
	defer cache.Close()

	var calls uint32
	src := loader.SourceFunc[any](func(ctx context.Context, key string) (any, error) {
		atomic.AddUint32(&calls, 1)
		return nil, nil
	})
	users := loader.NewSingleFlightLoader[any](cache, src, time.Minute)

	got, err := users.GetOrLoad(testContext(t), "user:1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected the loaded nil to come back as nil, got %v", got)
	}

	// A nil value is cached like any other.
	if _, err := users.GetOrLoad(testContext(t), "user:1"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadUint32(&calls); n != 1 {
		t.Errorf("expected the nil value to be served from the cache, got %d source calls", n)
	}
}

type profile struct {
	Name string
}

func (p *profile) Clone() *profile {
	return &profile{Name: p.Name}
}

func TestSingleFlightLoader_SharedResultsCloned(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[*profile](
		ttlcache.WithCloner[*profile](ttlcache.DefaultValueCloner[*profile]()),
	)
	defer cache.Close()

	src := loader.SourceFunc[*profile](func(ctx context.Context, key string) (*profile, error) {
		time.Sleep(100 * time.Millisecond)
		return &profile{Name: "alice"}, nil
	})
	users := loader.NewSingleFlightLoader[*profile](cache, src, time.Minute,
		loader.WithCloner[*profile](ttlcache.DefaultValueCloner[*profile]()),
	)

	const waiters = 10
	results := make([]*profile, waiters)
	start := make(chan struct{})
	var eg errgroup.Group
	for i := 0; i < waiters; i++ {
		i := i
		eg.Go(func() error {
			<-start
			got, err := users.GetOrLoad(testContext(t), "user:1")
			if err != nil {
				return err
			}
			results[i] = got
			return nil
		})
	}
	close(start)
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	for i, got := range results {
		if got.Name != "alice" {
			t.Errorf("result %d: expected %q, got %q", i, "alice", got.Name)
		}
		for j := i + 1; j < waiters; j++ {
			if got == results[j] {
				t.Errorf("results %d and %d alias the same instance", i, j)
			}
		}
	}
}

func TestSingleFlightLoader_ContextCancellation(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		close(started)
		<-release
		return "late", nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute)

	ctx, cancel := context.WithCancel(testContext(t))
	errCh := make(chan error, 1)
	go func() {
		_, err := users.GetOrLoad(ctx, "slow")
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected GetOrLoad to return promptly after cancellation")
	}

	// The load itself runs on a background context, so it still completes
	// and stores its result.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := cache.Get("slow"); ok {
			if got != "late" {
				t.Errorf("expected the background load to store %q, got %q", "late", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the background load to complete and store")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSingleFlightLoader_BackgroundContextProvider(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	type nameKey struct{}
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		name, _ := ctx.Value(nameKey{}).(string)
		return name, nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute,
		loader.WithBackgroundContextProvider[string](func() context.Context {
			return context.WithValue(context.Background(), nameKey{}, "background")
		}),
	)

	got, err := users.GetOrLoad(testContext(t), "user:1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "background" {
		t.Errorf("expected the load to run on the provided context, got %q", got)
	}
}

func TestSingleFlightLoader_SourcePanic(t *testing.T) {
	t.Parallel()

	cache := ttlcache.New[string]()
	defer cache.Close()

	var calls uint32
	src := loader.SourceFunc[string](func(ctx context.Context, key string) (string, error) {
		if atomic.AddUint32(&calls, 1) == 1 {
			panic("source exploded")
		}
		return "recovered", nil
	})
	users := loader.NewSingleFlightLoader[string](cache, src, time.Minute)

	_, err := users.GetOrLoad(testContext(t), "user:1")
	if err == nil {
		t.Fatal("expected an error from a panicking source")
	}
	if !strings.Contains(err.Error(), "source exploded") {
		t.Errorf("expected the panic value in the error, got %v", err)
	}

	// The loader keeps working after a panic.
	got, err := users.GetOrLoad(testContext(t), "user:1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", got)
	}
}
