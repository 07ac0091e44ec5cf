package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"

	"github.com/shopspring/decimal"
)

const orderColumns = `order_id, customer_id, product_id, product_name, amount, price, status, archived, order_date, execution_date, version`

// OrderRepository stores one row per line item. Status and archived are
// written to every row of an order in one transaction.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	o.Version = 1
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, l := range o.Lines {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				o.ID, o.CustomerID, l.ProductID, l.ProductName, l.Amount, l.Price,
				string(o.Status), o.Archived, o.OrderDate, o.ExecutionDate, o.Version,
			)
			if err != nil {
				return fmt.Errorf("postgres: insert order %s: %w", o.ID, mapError(err))
			}
		}
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}
	return orders[0], nil
}

func (r *OrderRepository) FindByCustomer(ctx context.Context, customerID string, archived bool) ([]*domain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 AND archived = $2
		 ORDER BY order_date DESC, order_id, product_id`, customerID, archived)
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC, order_id, product_id`)
}

// Update writes every line only while the rows still carry o.Version. A
// stale line rolls back the whole order.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, l := range o.Lines {
			res, err := tx.ExecContext(ctx,
				`UPDATE orders SET status = $1, archived = $2, execution_date = $3, price = $4, version = version + 1
				 WHERE order_id = $5 AND product_id = $6 AND version = $7`,
				string(o.Status), o.Archived, o.ExecutionDate, l.Price, o.ID, l.ProductID, o.Version,
			)
			if err != nil {
				return fmt.Errorf("postgres: update order %s: %w", o.ID, mapError(err))
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
			}
			if n == 0 {
				return r.staleOrMissing(ctx, tx, o.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *OrderRepository) staleOrMissing(ctx context.Context, tx *sql.Tx, id string) error {
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM orders WHERE order_id = $1 LIMIT 1`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: check order %s: %w", id, err)
	}
	return domain.ErrConflict
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE order_id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete order %s: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete order %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// query folds line rows into aggregates, preserving row order.
func (r *OrderRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query orders: %w", mapError(err))
	}
	defer rows.Close()

	var out []*domain.Order
	byID := make(map[string]*domain.Order)
	for rows.Next() {
		var (
			orderID, customerID, productID, productName, status string
			amount                                              int
			price                                               decimal.NullDecimal
			archived                                            bool
			orderDate                                           time.Time
			executionDate                                       sql.NullTime
			version                                             int64
		)
		if err := rows.Scan(&orderID, &customerID, &productID, &productName, &amount, &price,
			&status, &archived, &orderDate, &executionDate, &version); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o, ok := byID[orderID]
		if !ok {
			o = &domain.Order{
				ID:         orderID,
				CustomerID: customerID,
				Status:     domain.Status(status),
				Archived:   archived,
				OrderDate:  orderDate.UTC(),
				Version:    version,
			}
			if executionDate.Valid {
				t := executionDate.Time.UTC()
				o.ExecutionDate = &t
			}
			byID[orderID] = o
			out = append(out, o)
		}
		o.Lines = append(o.Lines, domain.LineItem{
			ProductID:   productID,
			ProductName: productName,
			Amount:      amount,
			Price:       price,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return out, nil
}
