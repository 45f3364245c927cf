package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"orderflow/internal/model"
	"orderflow/pkg/otel"

	"go.uber.org/zap"
)

// InsertStatusUpdate 审计记录只追加，不提供更新和删除
func (q *queries) InsertStatusUpdate(ctx context.Context, u *model.StatusUpdate) error {
	metadata := u.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal status update metadata: %w", err)
	}

	query := `
        INSERT INTO order_status_updates (order_id, old_status, new_status, trigger, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return otel.WithDBSpan(ctx, "insert", "order_status_updates", func(ctx context.Context) error {
		err := q.db.QueryRow(ctx, query,
			u.OrderID,
			u.OldStatus,
			u.NewStatus,
			u.Trigger,
			raw,
			u.CreatedAt,
		).Scan(&u.ID)
		if err != nil {
			q.logger.Error("Failed to insert status update", zap.Int("order_id", u.OrderID), zap.Error(err))
			return err
		}
		return nil
	})
}

func (q *queries) ListStatusUpdates(ctx context.Context, orderID int, limit int) ([]model.StatusUpdate, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
        SELECT id, order_id, old_status, new_status, trigger, metadata, created_at
        FROM order_status_updates
        WHERE order_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `

	var updates []model.StatusUpdate
	err := otel.WithDBSpan(ctx, "select", "order_status_updates", func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, query, orderID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				u   model.StatusUpdate
				raw []byte
			)
			if err := rows.Scan(&u.ID, &u.OrderID, &u.OldStatus, &u.NewStatus, &u.Trigger, &raw, &u.CreatedAt); err != nil {
				return err
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &u.Metadata); err != nil {
					return fmt.Errorf("decode metadata of status update %d: %w", u.ID, err)
				}
			}
			updates = append(updates, u)
		}
		return rows.Err()
	})
	if err != nil {
		q.logger.Error("Failed to list status updates", zap.Int("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return updates, nil
}
