package tenancy

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestWithTenantIDAndTenantIDFromContext(t *testing.T) {
	ctx := WithTenantID(context.Background(), "tenant-123")

	got, ok := TenantIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected tenant id to be present")
	}
	if got != "tenant-123" {
		t.Fatalf("expected tenant-123, got %s", got)
	}
}

func TestTenantIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected missing tenant id to return false")
	}

	ctx = context.WithValue(ctx, tenantKey, 42)
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected non-string tenant id to return false")
	}

	ctx = WithTenantID(context.Background(), "")
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected empty tenant id to return false")
	}
}

func TestScopeFromContextFailsClosed(t *testing.T) {
	if _, err := ScopeFromContext(context.Background()); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}

	scope, err := ScopeFromContext(WithTenantID(context.Background(), "t1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope.TenantID() != "t1" || !scope.Valid() {
		t.Fatalf("unexpected scope %+v", scope)
	}
}

func TestConcurrentScopesDoNotLeak(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := "tenant-a"
			if i%2 == 1 {
				want = "tenant-b"
			}
			ctx := WithTenantID(context.Background(), want)
			got, _ := TenantIDFromContext(ctx)
			if got != want {
				errs <- got
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Fatalf("observed foreign tenant %q", got)
	}
}
