// internal/saga/idempotency/guard_test.go
package idempotency

import (
	"context"
	"testing"

	"mercado/internal/saga"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.ShouldProcess(ctx, "cart-1", saga.KindStockCommitRequested)
	if err != nil || !ok {
		t.Fatalf("fresh event: ok=%v err=%v", ok, err)
	}

	if err := store.MarkProcessed(ctx, "cart-1", saga.KindStockCommitRequested); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := store.MarkProcessed(ctx, "cart-1", saga.KindStockCommitRequested); !saga.IsDuplicate(err) {
		t.Fatalf("second mark must report duplicate, got %v", err)
	}

	ok, _ = store.ShouldProcess(ctx, "cart-1", saga.KindStockCommitRequested)
	if ok {
		t.Error("processed event must not be processed again")
	}

	// 同一 correlationId 的不同事件种类互不影响
	ok, _ = store.ShouldProcess(ctx, "cart-1", saga.KindOrderCancelled)
	if !ok {
		t.Error("a different kind under the same correlation id is a fresh event")
	}

	processed, err := store.WasProcessed(ctx, "cart-1", saga.KindStockCommitRequested)
	if err != nil || !processed {
		t.Errorf("WasProcessed = %v, %v", processed, err)
	}
}

func TestWithFastPathNilFallsThrough(t *testing.T) {
	store := NewMemoryStore()
	guard := WithFastPath(store, nil)
	if guard != Guard(store) {
		t.Error("nil fast path must return the durable guard unchanged")
	}
}
