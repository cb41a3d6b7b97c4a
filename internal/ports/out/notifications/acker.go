package notifications

import (
	"context"

	"github.com/mealwave/delivery-api/internal/domain"
)

// Acker marks notifications read on behalf of a connected user. The
// notification store itself is an external collaborator; the gateway
// only forwards mark-read requests across this boundary.
type Acker interface {
	MarkRead(ctx context.Context, subject domain.SubjectID, notificationID string) error
}
