package out

import (
	"context"

	"apply_server/core/domain"
)

// CVRepository persists parsed CVs and tailoring artifacts.
type CVRepository interface {
	FindCV(ctx context.Context, userID, id string) (*domain.ParsedCV, error)
	SaveCV(ctx context.Context, cv *domain.ParsedCV) (*domain.ParsedCV, error)

	SaveCustomizedCV(ctx context.Context, cv *domain.CustomizedCV) (*domain.CustomizedCV, error)
	FindCustomizedCV(ctx context.Context, userID, id string) (*domain.CustomizedCV, error)

	SaveCoverLetter(ctx context.Context, letter *domain.CoverLetter) (*domain.CoverLetter, error)
	FindCoverLetter(ctx context.Context, userID, id string) (*domain.CoverLetter, error)
}
