package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// ConnectionReader reads device connection state owned by the connection service.
// The health data service never writes device_connections.
type ConnectionReader struct {
	pool *pgxpool.Pool
}

// NewConnectionReader constructs a ConnectionReader.
func NewConnectionReader(pool *pgxpool.Pool) *ConnectionReader {
	return &ConnectionReader{pool: pool}
}

// IsConnected implements domain.ConnectionChecker. A missing row means not connected.
func (c *ConnectionReader) IsConnected(ctx context.Context, userID string, provider domain.ProviderType) (bool, error) {
	const query = `SELECT is_connected FROM device_connections WHERE user_id=$1 AND provider_type=$2`

	var connected bool
	if err := c.pool.QueryRow(ctx, query, userID, string(provider)).Scan(&connected); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return connected, nil
}
