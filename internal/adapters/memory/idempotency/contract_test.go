package idempotency

import (
	"testing"

	"github.com/mealwave/delivery-api/internal/adapters/contracttest"
	platformclock "github.com/mealwave/delivery-api/internal/platform/clock"
	idempotencyport "github.com/mealwave/delivery-api/internal/ports/out/idempotency"
)

func TestContract_IdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(platformclock.NewSystemClock()), nil
	})
}
