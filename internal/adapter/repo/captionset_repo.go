package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curator/internal/domain"
)

// CaptionSetRepositoryPG implements domain.CaptionSetRepository.
type CaptionSetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCaptionSetRepository creates a new caption set repository.
func NewCaptionSetRepository(pool *pgxpool.Pool) *CaptionSetRepositoryPG {
	return &CaptionSetRepositoryPG{pool: pool}
}

// Get fetches a caption set with its generation settings.
func (r *CaptionSetRepositoryPG) Get(ctx context.Context, captionSetID string) (*domain.CaptionSet, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, dataset_id, name, style, max_length, custom_prompt, trigger_phrase
FROM caption_sets
WHERE id = $1;
`, captionSetID)

	var set domain.CaptionSet
	if err := row.Scan(
		&set.ID,
		&set.DatasetID,
		&set.Name,
		&set.Style,
		&set.MaxLength,
		&set.CustomPrompt,
		&set.TriggerPhrase,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &set, nil
}
