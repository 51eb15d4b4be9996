// Package postgres implements the storage interfaces on a directly attached
// PostgreSQL database, for self-hosted deployments that bypass the gateway.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/storage"
)

// Store is a PostgreSQL-backed implementation of every storage interface.
type Store struct {
	db *sql.DB
}

var _ storage.CatalogStore = (*Store)(nil)
var _ storage.FavoriteStore = (*Store)(nil)
var _ storage.SearchHistoryStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.PrescriptionStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)

// New opens a connection pool for the given DSN and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func notFoundErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CatalogStore implementation -------------------------------------------------

const productColumns = `id, category_id, name, slug, coalesce(description, ''), price,
	requires_prescription, stock_quantity, low_stock_threshold, coalesce(image_url, ''),
	created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description, &p.Price,
		&p.RequiresPrescription, &p.StockQuantity, &p.LowStockThreshold, &p.ImageURL,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, coalesce(description, ''), created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if len(filter.CategoryIDs) > 0 {
		query += fmt.Sprintf(" AND category_id = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(filter.CategoryIDs))
	}
	if filter.MaxPrice > 0 {
		query += fmt.Sprintf(" AND price <= $%d", len(args)+1)
		args = append(args, filter.MaxPrice)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return catalog.Product{}, notFoundErr("get product", err)
	}
	return p, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE name ILIKE $1 OR description ILIKE $1 ORDER BY name`,
		"%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]catalog.Product, error) {
	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (id, name, slug, description) VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		c.ID, c.Name, c.Slug, c.Description).Scan(&c.CreatedAt)
	if err != nil {
		return catalog.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO products (id, category_id, name, slug, description, price,
		   requires_prescription, stock_quantity, low_stock_threshold, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price,
		p.RequiresPrescription, p.StockQuantity, p.LowStockThreshold, p.ImageURL).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	err := s.db.QueryRowContext(ctx,
		`UPDATE products SET category_id = $2, name = $3, slug = $4, description = $5,
		   price = $6, requires_prescription = $7, stock_quantity = $8,
		   low_stock_threshold = $9, image_url = $10, updated_at = now()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price,
		p.RequiresPrescription, p.StockQuantity, p.LowStockThreshold, p.ImageURL).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, notFoundErr("update product", err)
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete product: %w", storage.ErrNotFound)
	}
	return nil
}

// FavoriteStore implementation ------------------------------------------------

func (s *Store) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id FROM favorites WHERE user_id = $1 ORDER BY product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) AddFavorite(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO favorites (user_id, product_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		userID, productID)
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// SearchHistoryStore implementation -------------------------------------------

func (s *Store) RecordSearch(ctx context.Context, userID, query string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (id, user_id, query) VALUES ($1, $2, $3)`,
		uuid.NewString(), userID, query)
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func (s *Store) RecentSearches(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM search_history WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ProfileStore implementation -------------------------------------------------

const profileColumns = `id, role, coalesce(first_name, ''), coalesce(last_name, ''),
	coalesce(phone, ''), coalesce(address, ''), created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(&p.ID, &p.Role, &p.FirstName, &p.LastName, &p.Phone, &p.Address,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return profile.Profile{}, notFoundErr("get profile", err)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	err := s.db.QueryRowContext(ctx,
		`UPDATE profiles SET first_name = $2, last_name = $3, phone = $4, address = $5,
		   role = coalesce(nullif($6, ''), role), updated_at = now()
		 WHERE id = $1
		 RETURNING role, created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.Address, string(p.Role)).
		Scan(&p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, notFoundErr("update profile", err)
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PrescriptionStore implementation --------------------------------------------

const prescriptionColumns = `id, user_id, file_url, status, coalesce(validated_by, ''),
	valid_until, coalesce(notes, ''), created_at, updated_at`

func scanPrescription(row interface{ Scan(...any) error }) (prescription.Prescription, error) {
	var p prescription.Prescription
	var validUntil sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.FileURL, &p.Status, &p.ValidatedBy,
		&validUntil, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if validUntil.Valid {
		t := validUntil.Time
		p.ValidUntil = &t
	}
	return p, err
}

func (s *Store) CreatePrescription(ctx context.Context, p prescription.Prescription) (prescription.Prescription, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = prescription.StatusPending
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO prescriptions (id, user_id, file_url, status) VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FileURL, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return prescription.Prescription{}, fmt.Errorf("create prescription: %w", err)
	}
	return p, nil
}

func (s *Store) GetPrescription(ctx context.Context, id string) (prescription.Prescription, error) {
	p, err := scanPrescription(s.db.QueryRowContext(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
	if err != nil {
		return prescription.Prescription{}, notFoundErr("get prescription", err)
	}
	return p, nil
}

func (s *Store) UpdatePrescription(ctx context.Context, p prescription.Prescription) (prescription.Prescription, error) {
	var validUntil any
	if p.ValidUntil != nil {
		validUntil = *p.ValidUntil
	}
	err := s.db.QueryRowContext(ctx,
		`UPDATE prescriptions SET status = $2, validated_by = nullif($3, ''),
		   valid_until = $4, notes = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		p.ID, p.Status, p.ValidatedBy, validUntil, p.Notes).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return prescription.Prescription{}, notFoundErr("update prescription", err)
	}
	return p, nil
}

func (s *Store) ListPrescriptionsForUser(ctx context.Context, userID string) ([]prescription.Prescription, error) {
	return s.queryPrescriptions(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
}

func (s *Store) ListUsablePrescriptions(ctx context.Context, userID string, now time.Time) ([]prescription.Prescription, error) {
	return s.queryPrescriptions(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions
		 WHERE user_id = $1 AND status = 'validated' AND valid_until >= $2
		 ORDER BY created_at DESC`, userID, now.UTC())
}

func (s *Store) ListPrescriptionsByStatus(ctx context.Context, status prescription.Status) ([]prescription.Prescription, error) {
	return s.queryPrescriptions(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE status = $1
		 ORDER BY created_at DESC`, string(status))
}

func (s *Store) queryPrescriptions(ctx context.Context, query string, args ...any) ([]prescription.Prescription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var out []prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OrderStore implementation ---------------------------------------------------

func (s *Store) CreateOrderWithItems(ctx context.Context, o order.Order, items []order.Item) (order.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return order.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ClientReference == "" {
		o.ClientReference = uuid.NewString()
	}
	o.Status = order.StatusPending

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount, prescription_id,
		   shipping_address, client_reference)
		 VALUES ($1, $2, $3, $4, nullif($5, ''), $6, $7)
		 RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Status, o.TotalAmount, o.PrescriptionID,
		o.ShippingAddress, o.ClientReference).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return order.Order{}, fmt.Errorf("insert order: %w", err)
	}

	o.Items = make([]order.Item, 0, len(items))
	for _, item := range items {
		item.ID = uuid.NewString()
		item.OrderID = o.ID
		err = tx.QueryRowContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice).
			Scan(&item.CreatedAt)
		if err != nil {
			return order.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return order.Order{}, fmt.Errorf("commit order: %w", err)
	}
	return o, nil
}

const orderColumns = `id, user_id, status, total_amount, coalesce(prescription_id, ''),
	shipping_address, coalesce(client_reference, ''), created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.PrescriptionID,
		&o.ShippingAddress, &o.ClientReference, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return order.Order{}, notFoundErr("get order", err)
	}
	if o.Items, err = s.itemsFor(ctx, o.ID); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) ListOrdersForUser(ctx context.Context, userID string) ([]order.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
}

func (s *Store) ListOrders(ctx context.Context) ([]order.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = s.itemsFor(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) itemsFor(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price, created_at
		 FROM order_items WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var out []order.Item
	for rows.Next() {
		var item order.Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status order.Status) (order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
		 RETURNING `+orderColumns, id, status))
	if err != nil {
		return order.Order{}, notFoundErr("update order status", err)
	}
	if o.Items, err = s.itemsFor(ctx, o.ID); err != nil {
		return order.Order{}, err
	}
	return o, nil
}
