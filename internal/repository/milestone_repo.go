package repository

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/model"
	"orderflow/pkg/otel"

	"go.uber.org/zap"
)

func (q *queries) InsertMilestones(ctx context.Context, milestones []*model.Milestone) error {
	query := `
        INSERT INTO order_milestones
            (order_id, milestone_type, title, description, sequence, planned_date, status, estimated_hours, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id
    `
	return otel.WithDBSpan(ctx, "insert", "order_milestones", func(ctx context.Context) error {
		for _, m := range milestones {
			err := q.db.QueryRow(ctx, query,
				m.OrderID,
				m.Type,
				m.Title,
				m.Description,
				m.Sequence,
				m.PlannedDate,
				m.Status,
				m.EstimatedHours,
				m.Notes,
				m.CreatedAt,
				m.UpdatedAt,
			).Scan(&m.ID)
			if err != nil {
				q.logger.Error("Failed to insert milestone",
					zap.Int("order_id", m.OrderID),
					zap.Int("sequence", m.Sequence),
					zap.Error(err),
				)
				return err
			}
		}
		q.logger.Debug("Milestones inserted", zap.Int("count", len(milestones)))
		return nil
	})
}

func (q *queries) ListMilestones(ctx context.Context, orderID int) ([]model.Milestone, error) {
	query := `
        SELECT id, order_id, milestone_type, title, description, sequence, planned_date, actual_date,
               status, estimated_hours, notes, created_at, updated_at
        FROM order_milestones
        WHERE order_id = $1
        ORDER BY sequence ASC
    `

	var milestones []model.Milestone
	err := otel.WithDBSpan(ctx, "select", "order_milestones", func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, query, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m model.Milestone
			if err := rows.Scan(
				&m.ID,
				&m.OrderID,
				&m.Type,
				&m.Title,
				&m.Description,
				&m.Sequence,
				&m.PlannedDate,
				&m.ActualDate,
				&m.Status,
				&m.EstimatedHours,
				&m.Notes,
				&m.CreatedAt,
				&m.UpdatedAt,
			); err != nil {
				return err
			}
			milestones = append(milestones, m)
		}
		return rows.Err()
	})
	if err != nil {
		q.logger.Error("Failed to list milestones", zap.Int("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return milestones, nil
}

func (q *queries) UpdateMilestoneStatus(ctx context.Context, id int, status model.MilestoneStatus, actualDate *time.Time, notes string) error {
	query := `
        UPDATE order_milestones
        SET status = $2, actual_date = COALESCE($3, actual_date), notes = $4, updated_at = NOW()
        WHERE id = $1
    `
	return otel.WithDBSpan(ctx, "update", "order_milestones", func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, query, id, status, actualDate, notes)
		if err != nil {
			q.logger.Error("Failed to update milestone", zap.Int("milestone_id", id), zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("milestone %d not found", id)
		}
		return nil
	})
}

// ListOverdueMilestones 计划日期已过、未完成、且订单仍在进行中的里程碑
func (q *queries) ListOverdueMilestones(ctx context.Context, now time.Time, limit int) ([]model.OverdueMilestone, error) {
	query := `
        SELECT m.id, m.order_id, m.milestone_type, m.title, m.planned_date
        FROM order_milestones m
        JOIN app_orders o ON o.id = m.order_id
        WHERE m.status <> 'COMPLETED'
          AND m.planned_date < $1
          AND o.status NOT IN ('CANCELLED', 'DELIVERED')
        ORDER BY m.planned_date ASC, m.id ASC
        LIMIT $2
    `

	var out []model.OverdueMilestone
	err := otel.WithDBSpan(ctx, "select", "order_milestones", func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, query, now, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m model.OverdueMilestone
			if err := rows.Scan(&m.MilestoneID, &m.OrderID, &m.Type, &m.Title, &m.PlannedDate); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		q.logger.Error("Failed to list overdue milestones", zap.Error(err))
		return nil, err
	}
	return out, nil
}
