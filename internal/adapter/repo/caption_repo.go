package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curator/internal/domain"
)

// CaptionRepositoryPG implements domain.CaptionRepository using PostgreSQL.
type CaptionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCaptionRepository creates a new caption repository backed by PostgreSQL.
func NewCaptionRepository(pool *pgxpool.Pool) *CaptionRepositoryPG {
	return &CaptionRepositoryPG{pool: pool}
}

// Quality reports the stored quality score of the file's caption within the
// set, if one exists.
func (r *CaptionRepositoryPG) Quality(ctx context.Context, captionSetID, fileID string) (float64, bool, error) {
	var score float64
	err := r.pool.QueryRow(ctx, `
SELECT quality_score FROM captions WHERE caption_set_id = $1 AND file_id = $2;
`, captionSetID, fileID).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

// Save upserts the caption for its (set, file) pair and mirrors the quality
// score onto the dataset file row so dataset views can sort by it without
// joining captions.
func (r *CaptionRepositoryPG) Save(ctx context.Context, caption *domain.Caption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO captions (id, caption_set_id, file_id, text, source, vision_model, quality_score, quality_flags)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (caption_set_id, file_id) DO UPDATE
SET text = EXCLUDED.text,
    source = EXCLUDED.source,
    vision_model = EXCLUDED.vision_model,
    quality_score = EXCLUDED.quality_score,
    quality_flags = EXCLUDED.quality_flags,
    updated_at = now();
`,
		caption.CaptionSetID,
		caption.FileID,
		caption.Text,
		caption.Source,
		caption.VisionModel,
		caption.QualityScore,
		caption.QualityFlags,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
UPDATE dataset_files df
SET caption_quality = $3,
    updated_at = now()
FROM caption_sets cs
WHERE cs.id = $1
  AND df.dataset_id = cs.dataset_id
  AND df.id = $2;
`, caption.CaptionSetID, caption.FileID, caption.QualityScore); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
