package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/datazip-inc/resttap/utils/typeutils"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultTable = "resttap_state"

// PostgresStore keeps one row per stream partition.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %s", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %s", err)
	}

	store := &PostgresStore{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Infof("using postgres state table %s", store.table)
	return store, nil
}

func (p *PostgresStore) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		stream_id     TEXT        NOT NULL,
		partition_key TEXT        NOT NULL,
		context       JSONB,
		cursor        JSONB       NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (stream_id, partition_key)
	)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create state table: %s", err)
	}
	return nil
}

func (p *PostgresStore) GetCursor(ctx context.Context, streamID, partitionKey string) (any, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT cursor FROM %s WHERE stream_id = $1 AND partition_key = $2`, p.table),
		streamID, partitionKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor: %s", err)
	}
	return decodeCursor(raw)
}

func (p *PostgresStore) SetCursor(ctx context.Context, streamID string, partition types.Context, value any) error {
	if value == nil {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %s", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key := partition.Key()
	var raw []byte
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT cursor FROM %s WHERE stream_id = $1 AND partition_key = $2 FOR UPDATE`, p.table),
		streamID, key,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read cursor: %s", err)
	default:
		existing, err := decodeCursor(raw)
		if err != nil {
			return err
		}
		if typeutils.Compare(value, existing) < 0 {
			return nil
		}
	}

	cursor, err := json.Marshal(typeutils.FormatCursorValue(value))
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %s", err)
	}
	var contextJSON []byte
	if len(partition) > 0 {
		if contextJSON, err = json.Marshal(partition); err != nil {
			return fmt.Errorf("failed to encode partition: %s", err)
		}
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (stream_id, partition_key, context, cursor, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stream_id, partition_key)
		DO UPDATE SET context = EXCLUDED.context, cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at`, p.table),
		streamID, key, contextJSON, cursor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert cursor: %s", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) Snapshot(ctx context.Context) (*types.State, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT stream_id, context, cursor FROM %s ORDER BY stream_id, partition_key`, p.table))
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %s", err)
	}
	defer rows.Close()

	state := types.NewState()
	for rows.Next() {
		var (
			streamID         string
			contextJSON, raw []byte
			partition        types.Context
		)
		if err := rows.Scan(&streamID, &contextJSON, &raw); err != nil {
			return nil, err
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &partition); err != nil {
				return nil, fmt.Errorf("invalid partition context for %s: %s", streamID, err)
			}
		}
		cursor, err := decodeCursor(raw)
		if err != nil {
			return nil, err
		}
		state.SetCursor(streamID, partition, cursor)
	}
	return state, rows.Err()
}

func (p *PostgresStore) ResetStreams(ctx context.Context, streamIDs ...string) error {
	if len(streamIDs) == 0 {
		return nil
	}
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE stream_id = ANY($1)`, p.table), streamIDs)
	if err != nil {
		return fmt.Errorf("failed to reset streams: %s", err)
	}
	logger.Infof("removed %d partition cursors", tag.RowsAffected())
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func decodeCursor(raw []byte) (any, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("invalid stored cursor: %s", err)
	}
	return value, nil
}
