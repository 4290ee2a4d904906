package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"goflare.io/creamery/driver"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore keeps uploaded files and hands out their public URLs.
type ObjectStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
	URL(ctx context.Context, path string) (string, error)
	// PathOf maps a URL handed out by the store back to its path.
	PathOf(url string) (string, bool)
}

var _ ObjectStore = (*PostgresStore)(nil)

// PostgresStore keeps object bytes in the objects table. URLs are resolved
// against the CDN that serves that table.
type PostgresStore struct {
	conn    driver.PostgresPool
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

func NewPostgresStore(conn driver.PostgresPool, baseURL string, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		conn:    conn,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

func (s *PostgresStore) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	_, err := s.conn.Exec(ctx, `INSERT INTO objects (path, content_type, data, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (path) DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		path, contentType, data, s.now().UTC())
	if err != nil {
		s.logger.Error("Failed to upload object", zap.String("path", path), zap.Error(err))
		return "", err
	}

	s.logger.Info("Object uploaded", zap.String("path", path), zap.Int("bytes", len(data)))
	return s.publicURL(path), nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM objects WHERE path = $1`, path)
	if err != nil {
		s.logger.Error("Failed to delete object", zap.String("path", path), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrObjectNotFound
	}
	return nil
}

func (s *PostgresStore) URL(ctx context.Context, path string) (string, error) {
	var exists bool
	if err := s.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM objects WHERE path = $1)`, path).Scan(&exists); err != nil {
		s.logger.Error("Failed to look up object", zap.String("path", path), zap.Error(err))
		return "", err
	}
	if !exists {
		return "", ErrObjectNotFound
	}
	return s.publicURL(path), nil
}

func (s *PostgresStore) publicURL(path string) string {
	return s.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (s *PostgresStore) PathOf(url string) (string, bool) {
	path, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || path == "" {
		return "", false
	}
	return path, true
}
