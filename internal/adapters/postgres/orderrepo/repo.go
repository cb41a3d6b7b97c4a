package orderrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mealwave/delivery-api/internal/adapters/postgres"
	"github.com/mealwave/delivery-api/internal/domain"
	"github.com/mealwave/delivery-api/internal/ports/out/orderrepo"
)

// Repo is a Postgres implementation of orderrepo.Repository. Items are
// stored as a jsonb document; the listing index covers the customer feed.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Schema is the DDL the repository expects. Applied by deployment
// migrations; exported so test harnesses can create the table directly.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id        text PRIMARY KEY,
	customer_subject text NOT NULL,
	partner_subject text,
	status          text NOT NULL,
	items           jsonb NOT NULL DEFAULT '[]',
	total           bigint NOT NULL DEFAULT 0,
	created_at      timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_customer_created_idx ON orders (customer_subject, created_at DESC);
`

type itemDoc struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

func (r *Repo) Create(ctx context.Context, o orderrepo.Order) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	items, err := marshalItems(o.Items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, customer_subject, partner_subject, status,
			items, total, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		string(o.ID),
		string(o.Customer),
		nullIfEmpty(string(o.Partner)),
		string(o.Status),
		items,
		o.Total,
		o.CreatedAt.UTC(),
		o.UpdatedAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			return orderrepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.OrderID) (orderrepo.Order, error) {
	if r.pool == nil {
		return orderrepo.Order{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT order_id, customer_subject, partner_subject, status,
		       items, total, created_at, updated_at
		FROM orders
		WHERE order_id = $1
	`, string(id))

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orderrepo.Order{}, orderrepo.ErrNotFound
		}
		return orderrepo.Order{}, err
	}
	return o, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id domain.OrderID, from, to domain.OrderStatus, at time.Time) (orderrepo.Order, error) {
	if r.pool == nil {
		return orderrepo.Order{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, updated_at = $4
		WHERE order_id = $1 AND status = $2
		RETURNING order_id, customer_subject, partner_subject, status,
		          items, total, created_at, updated_at
	`, string(id), string(from), string(to), at.UTC())

	o, err := scanOrder(row)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return orderrepo.Order{}, err
	}

	// No row matched: distinguish an absent order from a lost race.
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)
	`, string(id)).Scan(&exists); err != nil {
		return orderrepo.Order{}, err
	}
	if !exists {
		return orderrepo.Order{}, orderrepo.ErrNotFound
	}
	return orderrepo.Order{}, orderrepo.ErrStaleStatus
}

func (r *Repo) ListByCustomer(ctx context.Context, customer domain.SubjectID) ([]orderrepo.Order, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, customer_subject, partner_subject, status,
		       items, total, created_at, updated_at
		FROM orders
		WHERE customer_subject = $1
		ORDER BY created_at DESC
	`, string(customer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orderrepo.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (orderrepo.Order, error) {
	var (
		o       orderrepo.Order
		id      string
		cust    string
		partner *string
		status  string
		items   []byte
	)
	if err := row.Scan(&id, &cust, &partner, &status, &items, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return orderrepo.Order{}, err
	}
	o.ID = domain.OrderID(id)
	o.Customer = domain.SubjectID(cust)
	if partner != nil {
		o.Partner = domain.SubjectID(*partner)
	}
	o.Status = domain.OrderStatus(status)
	if len(items) > 0 {
		var docs []itemDoc
		if err := json.Unmarshal(items, &docs); err != nil {
			return orderrepo.Order{}, err
		}
		o.Items = make([]domain.OrderItem, 0, len(docs))
		for _, d := range docs {
			o.Items = append(o.Items, domain.OrderItem{Name: d.Name, Quantity: d.Quantity, Price: d.Price})
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func marshalItems(items []domain.OrderItem) ([]byte, error) {
	docs := make([]itemDoc, 0, len(items))
	for _, it := range items {
		docs = append(docs, itemDoc{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return json.Marshal(docs)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
