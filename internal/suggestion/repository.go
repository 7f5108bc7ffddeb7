package suggestion

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrSuggestionNotFound = errors.New("suggestion not found")

// Repository contains all DB interactions the recommendation service needs.
type Repository interface {
	Insert(ctx context.Context, s Suggestion) error
	MarkOutcome(ctx context.Context, id uuid.UUID, outcome Outcome, appliedCount int) error
	ListByDoctor(ctx context.Context, doctorCode string, limit, offset int) ([]Suggestion, error)
}
