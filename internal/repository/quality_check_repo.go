package repository

import (
	"context"
	"errors"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/pkg/otel"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const qualityCheckColumns = `id, order_id, check_type, automated, status, score, notes, completed_at, created_at, updated_at`

func (q *queries) InsertQualityCheck(ctx context.Context, qc *model.QualityCheck) error {
	query := `
        INSERT INTO order_quality_checks (order_id, check_type, automated, status, score, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return otel.WithDBSpan(ctx, "insert", "order_quality_checks", func(ctx context.Context) error {
		err := q.db.QueryRow(ctx, query,
			qc.OrderID,
			qc.CheckType,
			qc.Automated,
			qc.Status,
			qc.Score,
			qc.Notes,
			qc.CreatedAt,
			qc.UpdatedAt,
		).Scan(&qc.ID)
		if err != nil {
			q.logger.Error("Failed to insert quality check", zap.Int("order_id", qc.OrderID), zap.Error(err))
			return err
		}
		return nil
	})
}

func (q *queries) GetQualityCheck(ctx context.Context, id int) (*model.QualityCheck, error) {
	query := `SELECT ` + qualityCheckColumns + ` FROM order_quality_checks WHERE id = $1`

	var qc model.QualityCheck
	err := otel.WithDBSpan(ctx, "select", "order_quality_checks", func(ctx context.Context) error {
		return scanQualityCheck(q.db.QueryRow(ctx, query, id), &qc)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orderflow.ErrQualityCheckNotFound
	}
	if err != nil {
		q.logger.Error("Failed to get quality check", zap.Int("check_id", id), zap.Error(err))
		return nil, err
	}
	return &qc, nil
}

func (q *queries) UpdateQualityCheckResult(ctx context.Context, qc *model.QualityCheck) error {
	query := `
        UPDATE order_quality_checks
        SET status = $2, score = $3, notes = $4, completed_at = $5, updated_at = $6
        WHERE id = $1
    `
	return otel.WithDBSpan(ctx, "update", "order_quality_checks", func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, query, qc.ID, qc.Status, qc.Score, qc.Notes, qc.CompletedAt, qc.UpdatedAt)
		if err != nil {
			q.logger.Error("Failed to update quality check", zap.Int("check_id", qc.ID), zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return orderflow.ErrQualityCheckNotFound
		}
		return nil
	})
}

func (q *queries) ListQualityChecks(ctx context.Context, orderID int) ([]model.QualityCheck, error) {
	query := `SELECT ` + qualityCheckColumns + ` FROM order_quality_checks WHERE order_id = $1 ORDER BY id ASC`

	var checks []model.QualityCheck
	err := otel.WithDBSpan(ctx, "select", "order_quality_checks", func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, query, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var qc model.QualityCheck
			if err := scanQualityCheck(rows, &qc); err != nil {
				return err
			}
			checks = append(checks, qc)
		}
		return rows.Err()
	})
	if err != nil {
		q.logger.Error("Failed to list quality checks", zap.Int("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return checks, nil
}

func scanQualityCheck(row pgx.Row, qc *model.QualityCheck) error {
	return row.Scan(
		&qc.ID,
		&qc.OrderID,
		&qc.CheckType,
		&qc.Automated,
		&qc.Status,
		&qc.Score,
		&qc.Notes,
		&qc.CompletedAt,
		&qc.CreatedAt,
		&qc.UpdatedAt,
	)
}
