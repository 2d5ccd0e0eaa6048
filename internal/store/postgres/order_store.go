package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// OrderStore implements domain.OrderStore. Executions live in their own
// table and are attached to every order read.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

var orderCols = []string{
	"id", "account_id", "position_id", "source_wallet", "chain",
	"source_asset", "target_token", "total_amount::text", "remaining_amount::text",
	"end_time", "interval_ms", "exit_thresholds", "status",
	"created_at", "updated_at", "last_execution_at", "next_execution_at",
}

const orderReturning = ` RETURNING id, account_id, position_id, source_wallet, chain,
	source_asset, target_token, total_amount::text, remaining_amount::text,
	end_time, interval_ms, exit_thresholds, status,
	created_at, updated_at, last_execution_at, next_execution_at`

// Create inserts a new order together with any executions it already has.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	thresholds, err := marshalThresholds(o.ExitThresholds)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}

	sql, args, err := psql.Insert("twap_orders").
		Columns(
			"id", "account_id", "position_id", "source_wallet", "chain",
			"source_asset", "target_token", "total_amount", "remaining_amount",
			"end_time", "interval_ms", "exit_thresholds", "status",
			"created_at", "updated_at", "last_execution_at", "next_execution_at",
		).
		Values(
			o.ID, o.AccountID, o.PositionID, o.SourceWallet, o.Chain,
			o.SourceAsset, o.TargetToken, o.TotalAmount.String(), o.RemainingAmount.String(),
			o.EndTime, o.Interval.Milliseconds(), thresholds, string(o.Status),
			o.CreatedAt, o.UpdatedAt, o.LastExecutionAt, o.NextExecutionAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build create order: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}
		for _, e := range o.Executions {
			if err := insertExecution(ctx, tx, o.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with its full execution history.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	sql, args, err := psql.Select(orderCols...).From("twap_orders").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: build get order: %w", err)
	}
	o, err := scanOrder(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	orders := []domain.Order{o}
	if err := attachExecutions(ctx, s.pool, orders); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return orders[0], nil
}

// UpdateSchedule sets status and next execution time. A terminal stored
// status is kept and its next execution stays cleared.
func (s *OrderStore) UpdateSchedule(ctx context.Context, id string, status domain.OrderStatus, next *time.Time, at time.Time) (domain.Order, error) {
	const query = `
		UPDATE twap_orders SET
			status = CASE WHEN status IN ('completed', 'cancelled') THEN status ELSE $2 END,
			next_execution_at = CASE WHEN status IN ('completed', 'cancelled') THEN NULL ELSE $3::timestamptz END,
			updated_at = $4
		WHERE id = $1` + orderReturning

	var o domain.Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		o, err = scanOrder(tx.QueryRow(ctx, query, id, string(status), next, at))
		if err != nil {
			return err
		}
		orders := []domain.Order{o}
		if err := attachExecutions(ctx, tx, orders); err != nil {
			return err
		}
		o = orders[0]
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("postgres: update order %s: %w", id, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("postgres: update order %s: %w", id, err)
	}
	return o, nil
}

// AppendExecution inserts exec and writes the order's remaining amount and
// schedule in one transaction. The sequence number is the primary key, so a
// replayed append fails instead of duplicating the history.
func (s *OrderStore) AppendExecution(ctx context.Context, o domain.Order, exec domain.Execution) (domain.Order, error) {
	const query = `
		UPDATE twap_orders SET
			remaining_amount = $2::numeric,
			last_execution_at = $3,
			updated_at = $4,
			status = CASE WHEN status IN ('completed', 'cancelled') THEN status ELSE $5 END,
			next_execution_at = CASE WHEN status IN ('completed', 'cancelled') THEN NULL ELSE $6::timestamptz END
		WHERE id = $1` + orderReturning

	var out domain.Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertExecution(ctx, tx, o.ID, exec); err != nil {
			return err
		}
		stored, err := scanOrder(tx.QueryRow(ctx, query,
			o.ID, o.RemainingAmount.String(), o.LastExecutionAt, o.UpdatedAt,
			string(o.Status), o.NextExecutionAt,
		))
		if err != nil {
			return err
		}
		orders := []domain.Order{stored}
		if err := attachExecutions(ctx, tx, orders); err != nil {
			return err
		}
		out = orders[0]
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.Order{}, fmt.Errorf("postgres: append execution %s: %w", o.ID, domain.ErrNotFound)
		case isUniqueViolation(err):
			return domain.Order{}, fmt.Errorf("postgres: append execution %s#%d: %w", o.ID, exec.Seq, domain.ErrAlreadyExists)
		}
		return domain.Order{}, fmt.Errorf("postgres: append execution %s: %w", o.ID, err)
	}
	return out, nil
}

// ListDue returns non-terminal orders whose next execution is at or before
// now, earliest first.
func (s *OrderStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	q := psql.Select(orderCols...).From("twap_orders").
		Where(squirrel.Eq{"status": []string{string(domain.OrderStatusPending), string(domain.OrderStatusActive)}}).
		Where(squirrel.LtOrEq{"next_execution_at": now}).
		OrderBy("next_execution_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.query(ctx, "list due orders", q)
}

// List returns orders matching filter, newest first.
func (s *OrderStore) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	q := psql.Select(orderCols...).From("twap_orders").OrderBy("created_at DESC")
	if filter.AccountID != "" {
		q = q.Where(squirrel.Eq{"account_id": filter.AccountID})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Since != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.Since})
	}
	if filter.Until != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.Until})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return s.query(ctx, "list orders", q)
}

// ListTerminalBefore returns completed and cancelled orders last updated
// before the cutoff.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	q := psql.Select(orderCols...).From("twap_orders").
		Where(squirrel.Eq{"status": []string{string(domain.OrderStatusCompleted), string(domain.OrderStatusCancelled)}}).
		Where(squirrel.Lt{"updated_at": before}).
		OrderBy("updated_at ASC")
	return s.query(ctx, "list terminal orders", q)
}

// Delete removes orders and, through the foreign key, their executions.
func (s *OrderStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sql, args, err := psql.Delete("twap_orders").Where(squirrel.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build delete orders: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OrderStore) query(ctx context.Context, op string, q squirrel.SelectBuilder) ([]domain.Order, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build %s: %w", op, err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	if err := attachExecutions(ctx, s.pool, orders); err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return orders, nil
}

func insertExecution(ctx context.Context, q querier, orderID string, e domain.Execution) error {
	const query = `
		INSERT INTO twap_executions (
			order_id, seq, executed_at, amount_attempted, success,
			transaction_id, filled_amount, error
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8)`
	_, err := q.Exec(ctx, query,
		orderID, e.Seq, e.Timestamp, e.AmountAttempted.String(), e.Success,
		e.TransactionID, e.FilledAmount.String(), e.Error,
	)
	return err
}

// attachExecutions loads the history of every order in one query.
func attachExecutions(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[string]int, len(orders))
	ids := make([]string, len(orders))
	for i := range orders {
		index[orders[i].ID] = i
		ids[i] = orders[i].ID
		orders[i].Executions = []domain.Execution{}
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, seq, executed_at, amount_attempted::text, success,
			transaction_id, filled_amount::text, error
		FROM twap_executions
		WHERE order_id = ANY($1)
		ORDER BY order_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("load executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID, attempted, filled string
			e                          domain.Execution
		)
		if err := rows.Scan(&orderID, &e.Seq, &e.Timestamp, &attempted, &e.Success,
			&e.TransactionID, &filled, &e.Error); err != nil {
			return fmt.Errorf("scan execution: %w", err)
		}
		if e.AmountAttempted, err = decimal.NewFromString(attempted); err != nil {
			return fmt.Errorf("execution %s#%d amount: %w", orderID, e.Seq, err)
		}
		if e.FilledAmount, err = decimal.NewFromString(filled); err != nil {
			return fmt.Errorf("execution %s#%d filled: %w", orderID, e.Seq, err)
		}
		e.Timestamp = e.Timestamp.UTC()
		if i, ok := index[orderID]; ok {
			orders[i].Executions = append(orders[i].Executions, e)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                 domain.Order
		total, remaining  string
		intervalMs        int64
		thresholds        []byte
		status            string
		lastExec, nextRun *time.Time
	)
	err := row.Scan(
		&o.ID, &o.AccountID, &o.PositionID, &o.SourceWallet, &o.Chain,
		&o.SourceAsset, &o.TargetToken, &total, &remaining,
		&o.EndTime, &intervalMs, &thresholds, &status,
		&o.CreatedAt, &o.UpdatedAt, &lastExec, &nextRun,
	)
	if err != nil {
		return domain.Order{}, err
	}

	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	if o.RemainingAmount, err = decimal.NewFromString(remaining); err != nil {
		return domain.Order{}, fmt.Errorf("order %s remaining: %w", o.ID, err)
	}
	if len(thresholds) > 0 {
		var et domain.ExitThresholds
		if err := json.Unmarshal(thresholds, &et); err != nil {
			return domain.Order{}, fmt.Errorf("order %s exit thresholds: %w", o.ID, err)
		}
		o.ExitThresholds = &et
	}
	o.Interval = time.Duration(intervalMs) * time.Millisecond
	o.Status = domain.OrderStatus(status)
	o.EndTime = o.EndTime.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if lastExec != nil {
		t := lastExec.UTC()
		o.LastExecutionAt = &t
	}
	if nextRun != nil {
		t := nextRun.UTC()
		o.NextExecutionAt = &t
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func marshalThresholds(et *domain.ExitThresholds) ([]byte, error) {
	if et == nil {
		return nil, nil
	}
	b, err := json.Marshal(et)
	if err != nil {
		return nil, fmt.Errorf("marshal exit thresholds: %w", err)
	}
	return b, nil
}
