package repository

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/orderflow"
	"orderflow/pkg/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrTxRequired outbox 事件只能在事务中写入
var ErrTxRequired = errors.New("operation requires a transaction")

// Store 基于 pgx 的 orderflow.Store
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ orderflow.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		queries: &queries{
			db:     pool,
			outbox: outbox.NewRepository(pool),
			logger: logger,
		},
		pool: pool,
	}
}

// WithinTx 开启事务执行 fn；fn 出错或 panic 时回滚
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo orderflow.Repository) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(ctx, &queries{db: tx, tx: tx, outbox: s.outbox, logger: s.logger}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries 实现 orderflow.Repository；db 可能是连接池也可能是事务
type queries struct {
	db     outbox.Querier
	tx     pgx.Tx
	outbox *outbox.Repository
	logger *zap.Logger
}

// AppendEvent 写入 outbox_events，必须在 WithinTx 中调用
func (q *queries) AppendEvent(ctx context.Context, aggregateID int, routingKey string, payload any) error {
	if q.tx == nil {
		return ErrTxRequired
	}
	id := int64(aggregateID)
	return outbox.InsertEventInTx(ctx, q.tx, q.outbox, "order", &id, routingKey, payload)
}
