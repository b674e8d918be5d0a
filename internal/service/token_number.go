package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/noah-isme/admission-tracker-api/pkg/errors"
)

const (
	tokenNumberPrefix = "AGI"
	maxTokenAttempts  = 25
)

type tokenNumberRepository interface {
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
	ExistsByTokenNumber(ctx context.Context, tokenNumber string) (bool, error)
}

// TokenNumberGenerator allocates human-readable application tokens of the
// form AGI<YY><MM><4-digit sequence>, where the sequence restarts each
// calendar day. Uniqueness is best-effort: the exists check and the insert
// are separate store calls, so concurrent submissions may collide and the
// generator retries with an incremented sequence. It is not an atomic
// allocator.
type TokenNumberGenerator struct {
	repo tokenNumberRepository
	now  func() time.Time
}

// NewTokenNumberGenerator constructs a generator using the wall clock.
func NewTokenNumberGenerator(repo tokenNumberRepository) *TokenNumberGenerator {
	return &TokenNumberGenerator{repo: repo, now: time.Now}
}

// Next returns an unused token number or fails once the collision retry
// limit is exhausted.
func (g *TokenNumberGenerator) Next(ctx context.Context) (string, error) {
	now := g.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, err := g.repo.CountCreatedSince(ctx, midnight)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive token sequence")
	}

	seq := count + 1
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token := fmt.Sprintf("%s%02d%02d%04d", tokenNumberPrefix, now.Year()%100, int(now.Month()), seq)
		exists, err := g.repo.ExistsByTokenNumber(ctx, token)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check token uniqueness")
		}
		if !exists {
			return token, nil
		}
		seq++
	}

	return "", appErrors.Clone(appErrors.ErrInternal, "token number sequence exhausted for today")
}
