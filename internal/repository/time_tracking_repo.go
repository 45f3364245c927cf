package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderflow/internal/model"
	"orderflow/pkg/otel"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const timeTrackingColumns = `id, order_id, phase, started_at, ended_at, duration_minutes`

func (q *queries) GetOpenTimeTracking(ctx context.Context, orderID int) (*model.TimeTracking, error) {
	query := `SELECT ` + timeTrackingColumns + ` FROM order_time_tracking WHERE order_id = $1 AND ended_at IS NULL`

	var t model.TimeTracking
	err := otel.WithDBSpan(ctx, "select", "order_time_tracking", func(ctx context.Context) error {
		return scanTimeTracking(q.db.QueryRow(ctx, query, orderID), &t)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.logger.Error("Failed to get open time tracking", zap.Int("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return &t, nil
}

func (q *queries) InsertTimeTracking(ctx context.Context, t *model.TimeTracking) error {
	query := `
        INSERT INTO order_time_tracking (order_id, phase, started_at)
        VALUES ($1, $2, $3)
        RETURNING id
    `
	return otel.WithDBSpan(ctx, "insert", "order_time_tracking", func(ctx context.Context) error {
		if err := q.db.QueryRow(ctx, query, t.OrderID, t.Phase, t.StartedAt).Scan(&t.ID); err != nil {
			q.logger.Error("Failed to insert time tracking",
				zap.Int("order_id", t.OrderID),
				zap.String("phase", string(t.Phase)),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}

func (q *queries) CloseTimeTracking(ctx context.Context, id int, endedAt time.Time, minutes int) error {
	query := `
        UPDATE order_time_tracking
        SET ended_at = $2, duration_minutes = $3
        WHERE id = $1 AND ended_at IS NULL
    `
	return otel.WithDBSpan(ctx, "update", "order_time_tracking", func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, query, id, endedAt, minutes)
		if err != nil {
			q.logger.Error("Failed to close time tracking", zap.Int("id", id), zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("open time tracking %d not found", id)
		}
		return nil
	})
}

func (q *queries) ListTimeTracking(ctx context.Context, orderID int) ([]model.TimeTracking, error) {
	query := `SELECT ` + timeTrackingColumns + ` FROM order_time_tracking WHERE order_id = $1 ORDER BY started_at ASC, id ASC`

	var records []model.TimeTracking
	err := otel.WithDBSpan(ctx, "select", "order_time_tracking", func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, query, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t model.TimeTracking
			if err := scanTimeTracking(rows, &t); err != nil {
				return err
			}
			records = append(records, t)
		}
		return rows.Err()
	})
	if err != nil {
		q.logger.Error("Failed to list time tracking", zap.Int("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return records, nil
}

func scanTimeTracking(row pgx.Row, t *model.TimeTracking) error {
	return row.Scan(&t.ID, &t.OrderID, &t.Phase, &t.StartedAt, &t.EndedAt, &t.DurationMinutes)
}
