package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/pkg/otel"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const orderColumns = `id, client_id, title, project_type, status, progress, current_milestone, created_at, updated_at`

func (q *queries) CreateOrder(ctx context.Context, o *model.Order) error {
	q.logger.Debug("Inserting order",
		zap.Int("client_id", o.ClientID),
		zap.String("project_type", string(o.ProjectType)),
	)

	query := `
        INSERT INTO app_orders (client_id, title, project_type, status, progress, current_milestone, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return otel.WithDBSpan(ctx, "insert", "app_orders", func(ctx context.Context) error {
		err := q.db.QueryRow(ctx, query,
			o.ClientID,
			o.Title,
			o.ProjectType,
			o.Status,
			o.Progress,
			o.CurrentMilestone,
			o.CreatedAt,
			o.UpdatedAt,
		).Scan(&o.ID)
		if err != nil {
			q.logger.Error("Failed to insert order", zap.Error(err))
			return err
		}
		return nil
	})
}

func (q *queries) GetOrder(ctx context.Context, id int) (*model.Order, error) {
	return q.getOrder(ctx, id, false)
}

// LockOrder SELECT ... FOR UPDATE，同一订单的写操作串行执行
func (q *queries) LockOrder(ctx context.Context, id int) (*model.Order, error) {
	return q.getOrder(ctx, id, true)
}

func (q *queries) getOrder(ctx context.Context, id int, forUpdate bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM app_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var o model.Order
	err := otel.WithDBSpan(ctx, "select", "app_orders", func(ctx context.Context) error {
		return scanOrder(q.db.QueryRow(ctx, query, id), &o)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orderflow.ErrOrderNotFound
	}
	if err != nil {
		q.logger.Error("Failed to get order", zap.Int("order_id", id), zap.Error(err))
		return nil, err
	}
	return &o, nil
}

func (q *queries) ListOrders(ctx context.Context, filter orderflow.OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM app_orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var orders []model.Order
	err := otel.WithDBSpan(ctx, "select", "app_orders", func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var o model.Order
			if err := scanOrder(rows, &o); err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return rows.Err()
	})
	if err != nil {
		q.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	return orders, nil
}

func (q *queries) UpdateOrderStatus(ctx context.Context, id int, status model.OrderStatus, progress int, at time.Time) error {
	query := `UPDATE app_orders SET status = $2, progress = $3, updated_at = $4 WHERE id = $1`
	return q.execOrderUpdate(ctx, query, id, status, progress, at)
}

func (q *queries) UpdateCurrentMilestone(ctx context.Context, id int, label string, at time.Time) error {
	query := `UPDATE app_orders SET current_milestone = $2, updated_at = $3 WHERE id = $1`
	return q.execOrderUpdate(ctx, query, id, label, at)
}

func (q *queries) execOrderUpdate(ctx context.Context, query string, id int, args ...any) error {
	return otel.WithDBSpan(ctx, "update", "app_orders", func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, query, append([]any{id}, args...)...)
		if err != nil {
			q.logger.Error("Failed to update order", zap.Int("order_id", id), zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return orderflow.ErrOrderNotFound
		}
		return nil
	})
}

func scanOrder(row pgx.Row, o *model.Order) error {
	return row.Scan(
		&o.ID,
		&o.ClientID,
		&o.Title,
		&o.ProjectType,
		&o.Status,
		&o.Progress,
		&o.CurrentMilestone,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}
