package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curator/internal/domain"
)

// FileRepositoryPG implements domain.FileRepository over the dataset_files
// table.
type FileRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewFileRepository creates a new file repository.
func NewFileRepository(pool *pgxpool.Pool) *FileRepositoryPG {
	return &FileRepositoryPG{pool: pool}
}

// ListCaptionTargets returns the ordered file ids a job over the set should
// process. Excluded files never qualify; files already captioned in the set
// qualify only when overwrite is on.
func (r *FileRepositoryPG) ListCaptionTargets(ctx context.Context, set *domain.CaptionSet, overwrite bool) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT f.id
FROM dataset_files f
WHERE f.dataset_id = $1
  AND NOT f.excluded
  AND ($3 OR NOT EXISTS (
      SELECT 1 FROM captions c WHERE c.caption_set_id = $2 AND c.file_id = f.id
  ))
ORDER BY f.path ASC;
`, set.DatasetID, set.ID, overwrite)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, err
		}
		files = append(files, fileID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// ResolvePath maps a file id to its path on disk.
func (r *FileRepositoryPG) ResolvePath(ctx context.Context, fileID string) (string, error) {
	var path string
	err := r.pool.QueryRow(ctx, `
SELECT path FROM dataset_files WHERE id = $1;
`, fileID).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
