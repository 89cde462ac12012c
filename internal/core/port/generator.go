package port

import (
	"context"
	"tombot/internal/core/domain"
)

type Answerer interface {
	// Answer returns a short plain text answer for a knowledge query.
	Answer(ctx context.Context, query string) (domain.ModelResponse, error)
}
