package orderrepo_test

import (
	"context"
	"testing"
	"time"

	memorderrepo "github.com/mealwave/delivery-api/internal/adapters/memory/orderrepo"
	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/ports/out/orderrepo"
)

func TestRepo_ReturnsIsolatedCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memorderrepo.NewRepo()

	now := time.Now().UTC()
	in := orderrepo.Order{
		ID:        "ord-1",
		Customer:  "cust-1",
		Status:    domain.OrderPlaced,
		Items:     []domain.OrderItem{{Name: "paneer roll", Quantity: 1, Price: 600}},
		Total:     600,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutating the caller's slice must not leak into the stored order.
	in.Items[0].Quantity = 99

	got, err := repo.GetByID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Items[0].Quantity != 1 {
		t.Fatalf("stored order mutated through caller slice: %+v", got.Items)
	}

	// And mutating a returned copy must not affect subsequent reads.
	got.Items[0].Name = "changed"
	again, _ := repo.GetByID(ctx, "ord-1")
	if again.Items[0].Name != "paneer roll" {
		t.Fatalf("stored order mutated through returned copy: %+v", again.Items)
	}
}
