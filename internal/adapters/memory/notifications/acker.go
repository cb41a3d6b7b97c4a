package notifications

import (
	"context"
	"sync"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Acker records mark-read requests in memory. It stands in for the
// external notification store during local development and tests.
type Acker struct {
	mu   sync.Mutex
	read map[domain.SubjectID][]string
}

func NewAcker() *Acker {
	return &Acker{read: make(map[domain.SubjectID][]string)}
}

func (a *Acker) MarkRead(ctx context.Context, subject domain.SubjectID, notificationID string) error {
	_ = ctx
	a.mu.Lock()
	defer a.mu.Unlock()
	a.read[subject] = append(a.read[subject], notificationID)
	return nil
}

// ReadIDs returns the notification IDs marked read for subject, in order.
func (a *Acker) ReadIDs(subject domain.SubjectID) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.read[subject]...)
}
