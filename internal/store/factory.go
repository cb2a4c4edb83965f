package store

import (
	"context"
	"os"
	"strings"
)

// NewStore selects a backend: postgres when DATABASE_URL is configured,
// a local sqlite file when a data path is set, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL, dataPath string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		kioskID, _ := os.Hostname()
		return NewPostgresStore(ctx, databaseURL, kioskID)
	}
	if strings.TrimSpace(dataPath) != "" {
		return NewSQLiteStore(ctx, dataPath)
	}
	return NewInMemoryStore(), nil
}
