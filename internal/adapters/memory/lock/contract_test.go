package lock

import (
	"testing"
	"time"

	"github.com/mealwave/delivery-api/internal/adapters/contracttest"
	platformclock "github.com/mealwave/delivery-api/internal/platform/clock"
	lockport "github.com/mealwave/delivery-api/internal/ports/out/lock"
)

func TestContract_MemoryLocker(t *testing.T) {
	contracttest.RunLocker(t, func(t *testing.T) (lockport.Locker, func()) {
		t.Helper()
		return NewLocker(30*time.Second, platformclock.NewSystemClock()), nil
	})
}
