// internal/service/order/domain/order_test.go
package domain

import (
	"testing"

	"mercado/internal/saga"
)

func TestNewOrderComputesTotal(t *testing.T) {
	order := NewOrder(1, "cart-1", "card", []OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 9.5},
		{ProductID: 2, Quantity: 1, UnitPrice: 100},
	})
	if order.Status != StatusPending {
		t.Errorf("new order status = %s, want PENDING", order.Status)
	}
	if order.TotalAmount != 119 {
		t.Errorf("total = %v, want 119", order.TotalAmount)
	}
}

func TestCancelFromPending(t *testing.T) {
	order := NewOrder(1, "cart-1", "card", []OrderItem{{ProductID: 1, Quantity: 1}})
	if err := order.Cancel("stock commit failed"); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if order.Status != StatusCancelled || order.CancelReason == "" {
		t.Errorf("order = %+v, want cancelled with reason", order)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	order := NewOrder(1, "cart-1", "card", []OrderItem{{ProductID: 1, Quantity: 1}})
	_ = order.Cancel("first")
	if err := order.Cancel("second"); err != nil {
		t.Fatalf("cancelling a cancelled order must be a no-op, got %v", err)
	}
	if order.CancelReason != "first" {
		t.Errorf("redundant cancel must not overwrite reason, got %q", order.CancelReason)
	}
}

func TestCancelConfirmedIsRejected(t *testing.T) {
	order := NewOrder(1, "cart-1", "card", []OrderItem{{ProductID: 1, Quantity: 1}})
	_ = order.Confirm()
	err := order.Cancel("too late")
	if !saga.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestConfirmCancelledIsRejected(t *testing.T) {
	order := NewOrder(1, "cart-1", "card", []OrderItem{{ProductID: 1, Quantity: 1}})
	_ = order.Cancel("gone")
	err := order.Confirm()
	if !saga.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	order := NewOrder(1, "cart-1", "card", []OrderItem{{ProductID: 1, Quantity: 1}})
	_ = order.Confirm()
	if err := order.Confirm(); err != nil {
		t.Fatalf("confirming a confirmed order must be a no-op, got %v", err)
	}
}

func TestLineItemsProjection(t *testing.T) {
	order := NewOrder(1, "cart-9", "card", []OrderItem{
		{ProductID: 3, Quantity: 2},
		{ProductID: 5, Quantity: 1},
	})
	items := order.LineItems()
	if len(items) != 2 || items[0].ProductID != 3 || items[1].Quantity != 1 {
		t.Errorf("unexpected projection: %+v", items)
	}
}
