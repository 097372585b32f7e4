package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"propvid/internal/domain"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGenerationRepository creates a generation-progress repository backed by PostgreSQL.
func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{pool: pool}
}

// Create inserts the generation row created alongside a video.
func (r *GenerationRepositoryPG) Create(ctx context.Context, gen *domain.Generation) error {
	query := `
INSERT INTO video_generations (video_id, status, progress)
VALUES ($1, $2, $3);
`
	_, err := r.pool.Exec(ctx, query, gen.VideoID, gen.Status, gen.Progress)
	return err
}

// GetByVideoID fetches the generation row for a video.
func (r *GenerationRepositoryPG) GetByVideoID(ctx context.Context, videoID string) (*domain.Generation, error) {
	query := `
SELECT video_id, status, progress, error_message, created_at, updated_at
FROM video_generations
WHERE video_id = $1;
`
	row := r.pool.QueryRow(ctx, query, videoID)
	var gen domain.Generation
	var errMsg *string
	if err := row.Scan(
		&gen.VideoID,
		&gen.Status,
		&gen.Progress,
		&errMsg,
		&gen.CreatedAt,
		&gen.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if errMsg != nil {
		gen.ErrorMessage = *errMsg
	}
	return &gen, nil
}

// MarkCompleted sets the terminal completed state with full progress.
func (r *GenerationRepositoryPG) MarkCompleted(ctx context.Context, videoID string) error {
	query := `
UPDATE video_generations
SET status = 'completed', progress = 100, updated_at = NOW()
WHERE video_id = $1;
`
	_, err := r.pool.Exec(ctx, query, videoID)
	return err
}

// MarkFailed sets the terminal failed state; progress keeps its last value.
func (r *GenerationRepositoryPG) MarkFailed(ctx context.Context, videoID, errMsg string) error {
	query := `
UPDATE video_generations
SET status = 'failed', error_message = $2, updated_at = NOW()
WHERE video_id = $1;
`
	_, err := r.pool.Exec(ctx, query, videoID, errMsg)
	return err
}
