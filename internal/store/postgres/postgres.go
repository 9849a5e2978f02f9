package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"provisionpos/backend/internal/domain"
	"provisionpos/backend/internal/store"
	"provisionpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for schema migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	threshold, err := s.lowStockThreshold(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price_cents, quantity, is_bottled, COALESCE(barcode, '')
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPriceCents, &p.Quantity, &p.IsBottled, &p.Barcode); err != nil {
			return nil, err
		}
		p.LowStock = p.Quantity < threshold
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.UnitPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price_cents, quantity, is_bottled, barcode, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.ID, product.Name, product.UnitPriceCents, product.Quantity, product.IsBottled, nullIfEmpty(product.Barcode))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, `id = $1`, id)
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	return s.getProduct(ctx, `lower(name) = lower($1)`, name)
}

func (s *Store) getProduct(ctx context.Context, where string, arg any) (*domain.Product, error) {
	threshold, err := s.lowStockThreshold(ctx)
	if err != nil {
		return nil, err
	}

	var product domain.Product
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, unit_price_cents, quantity, is_bottled, COALESCE(barcode, '')
		FROM products
		WHERE `+where,
		arg).Scan(&product.ID, &product.Name, &product.UnitPriceCents, &product.Quantity, &product.IsBottled, &product.Barcode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.LowStock = product.Quantity < threshold
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.UnitPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, unit_price_cents = $3, quantity = $4, is_bottled = $5, barcode = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.UnitPriceCents, product.Quantity, product.IsBottled, nullIfEmpty(product.Barcode))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(sale.Items)
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, unit_price_cents, quantity, is_bottled
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, mapConflict(err)
	}
	productMap := make(map[string]domain.Product, len(productIDs))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Name, &p.UnitPriceCents, &p.Quantity, &p.IsBottled); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	needed := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, exists := productMap[line.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		needed[line.ProductID] += line.Qty
	}
	for productID, qty := range needed {
		if productMap[productID].Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for productID, qty := range needed {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $2, updated_at = now()
			WHERE id = $1 AND quantity >= $2
		`, productID, qty)
		if err != nil {
			return nil, mapConflict(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	total := int64(0)
	items := make([]domain.SaleLine, len(sale.Items))
	for i, line := range sale.Items {
		product := productMap[line.ProductID]
		line.ProductName = product.Name
		line.UnitPriceCents = product.UnitPriceCents
		line.TotalCents = product.UnitPriceCents * int64(line.Qty)
		line.BottleTaken = line.BottleTaken && product.IsBottled
		total += line.TotalCents
		items[i] = line
	}
	sale.Items = items
	sale.TotalCents = total

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, sold_by, payment_method, customer_id, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.SoldBy, sale.PaymentMethod, nullIfEmpty(sale.CustomerID), sale.TotalCents, sale.CreatedAt)
	if err != nil {
		return nil, mapConflict(err)
	}

	for _, line := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, qty, unit_price_cents, total_cents, bottle_taken)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, line.ProductID, line.ProductName, line.Qty, line.UnitPriceCents, line.TotalCents, line.BottleTaken)
		if err != nil {
			return nil, err
		}
		if line.BottleTaken {
			_, err = pgTx.ExecContext(ctx, `
				INSERT INTO bottle_accounts (product_id, bottles_taken, bottles_returned)
				VALUES ($1,$2,0)
				ON CONFLICT (product_id)
				DO UPDATE SET bottles_taken = bottle_accounts.bottles_taken + EXCLUDED.bottles_taken
			`, line.ProductID, line.Qty)
			if err != nil {
				return nil, err
			}
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO undo_entries (sale_id, created_at)
		VALUES ($1,$2)
	`, sale.ID, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sold_by, payment_method, customer_id, total_cents, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.SoldBy, &sale.PaymentMethod, &customerID, &sale.TotalCents, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, qty, unit_price_cents, total_cents, bottle_taken
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Qty, &line.UnitPriceCents, &line.TotalCents, &line.BottleTaken); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleListItem, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		conditions = append(conditions, "s.created_at >= $"+strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		conditions = append(conditions, "s.created_at < $"+strconv.Itoa(len(args)))
	}
	if filter.Seller != "" {
		args = append(args, filter.Seller)
		conditions = append(conditions, "s.sold_by ILIKE '%' || $"+strconv.Itoa(len(args))+" || '%'")
	}
	if filter.ProductName != "" {
		args = append(args, filter.ProductName)
		conditions = append(conditions, "i.product_name ILIKE '%' || $"+strconv.Itoa(len(args))+" || '%'")
	}

	query := `
		SELECT s.id, i.product_id, i.product_name, i.qty, i.unit_price_cents, i.total_cents,
		       i.bottle_taken, s.sold_by, s.payment_method, COALESCE(s.customer_id, ''), s.created_at
		FROM sales s
		JOIN sale_items i ON i.sale_id = s.id
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.created_at DESC, s.id DESC, i.product_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleListItem, 0, 64)
	for rows.Next() {
		var item domain.SaleListItem
		if err := rows.Scan(&item.SaleID, &item.ProductID, &item.ProductName, &item.Qty, &item.UnitPriceCents,
			&item.TotalCents, &item.BottleTaken, &item.SoldBy, &item.PaymentMethod, &item.CustomerID, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) UndoLatestSale(ctx context.Context, cutoff time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT sale_id
		FROM undo_entries
		WHERE created_at >= $1
		ORDER BY created_at DESC, sale_id DESC
		LIMIT 1
		FOR UPDATE
	`, cutoff.UTC()).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoEligibleUndo
		}
		return nil, mapConflict(err)
	}

	// The entry is the single-use guard: whoever deletes it owns the undo.
	res, err := pgTx.ExecContext(ctx, `DELETE FROM undo_entries WHERE sale_id = $1`, saleID)
	if err != nil {
		return nil, mapConflict(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNoEligibleUndo
	}

	var sale domain.Sale
	var customerID sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, sold_by, payment_method, customer_id, total_cents, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&sale.ID, &sale.SoldBy, &sale.PaymentMethod, &customerID, &sale.TotalCents, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoEligibleUndo
		}
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.CreatedAt = sale.CreatedAt.UTC()

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, product_name, qty, unit_price_cents, total_cents, bottle_taken
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var line domain.SaleLine
		if err := itemRows.Scan(&line.ProductID, &line.ProductName, &line.Qty, &line.UnitPriceCents, &line.TotalCents, &line.BottleTaken); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		sale.Items = append(sale.Items, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, line := range sale.Items {
		// Restock skips products deleted since the sale.
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $2, updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Qty)
		if err != nil {
			return nil, mapConflict(err)
		}
		if line.BottleTaken {
			_, err = pgTx.ExecContext(ctx, `
				UPDATE bottle_accounts
				SET bottles_taken = bottles_taken - $2
				WHERE product_id = $1
			`, line.ProductID, line.Qty)
			if err != nil {
				return nil, err
			}
		}
	}

	_, err = pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}

	return &sale, nil
}

func (s *Store) PurgeExpiredUndoEntries(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM undo_entries WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) RecordBottleReturn(ctx context.Context, ret domain.BottleReturn) (*domain.BottleReturn, error) {
	if ret.ProductID == "" || ret.Qty < 1 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var name string
	var isBottled bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT name, is_bottled
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, ret.ProductID).Scan(&name, &isBottled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapConflict(err)
	}
	if !isBottled {
		return nil, store.ErrInvalidProduct
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.ProductName = name

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO bottle_accounts (product_id, bottles_taken, bottles_returned)
		VALUES ($1,0,$2)
		ON CONFLICT (product_id)
		DO UPDATE SET bottles_returned = bottle_accounts.bottles_returned + EXCLUDED.bottles_returned
	`, ret.ProductID, ret.Qty)
	if err != nil {
		return nil, mapConflict(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO bottle_returns (id, product_id, product_name, qty, customer_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ret.ID, ret.ProductID, ret.ProductName, ret.Qty, ret.CustomerName, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}

	return &ret, nil
}

func (s *Store) GetBottleAccount(ctx context.Context, productID string) (*domain.BottleAccount, error) {
	var account domain.BottleAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, bottles_taken, bottles_returned
		FROM bottle_accounts
		WHERE product_id = $1
	`, productID).Scan(&account.ProductID, &account.BottlesTaken, &account.BottlesReturned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Store) ListBottleAccounts(ctx context.Context) ([]domain.BottleAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, bottles_taken, bottles_returned
		FROM bottle_accounts
		ORDER BY product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.BottleAccount, 0, 16)
	for rows.Next() {
		var a domain.BottleAccount
		if err := rows.Scan(&a.ProductID, &a.BottlesTaken, &a.BottlesReturned); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) ListBottleReturns(ctx context.Context, limit int) ([]domain.BottleReturn, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, qty, customer_name, created_at
		FROM bottle_returns
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.BottleReturn, 0, limit)
	for rows.Next() {
		var r domain.BottleReturn
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.Qty, &r.CustomerName, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		returns = append(returns, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returns, nil
}

func (s *Store) GetDailySummary(ctx context.Context, from time.Time, to time.Time, lowStockThreshold int) (*domain.DailySummary, error) {
	// Repeatable read keeps the sales totals, bottle snapshot, and low-stock
	// scan on one consistent snapshot.
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	summary := domain.DailySummary{
		Date:             from.UTC().Format("2006-01-02"),
		SalesBySeller:    make(map[string]int64),
		LowStockProducts: []domain.Product{},
	}

	sellerRows, err := pgTx.QueryContext(ctx, `
		SELECT sold_by, COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY sold_by
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	for sellerRows.Next() {
		var seller string
		var total int64
		if err := sellerRows.Scan(&seller, &total); err != nil {
			_ = sellerRows.Close()
			return nil, err
		}
		summary.SalesBySeller[seller] = total
		summary.TotalSalesCents += total
	}
	if err := sellerRows.Err(); err != nil {
		_ = sellerRows.Close()
		return nil, err
	}
	_ = sellerRows.Close()

	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(bottles_taken), 0), COALESCE(SUM(bottles_returned), 0)
		FROM bottle_accounts
	`).Scan(&summary.BottlesTaken, &summary.BottlesReturned)
	if err != nil {
		return nil, err
	}
	summary.OutstandingBottles = summary.BottlesTaken - summary.BottlesReturned

	lowRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, unit_price_cents, quantity, is_bottled, COALESCE(barcode, '')
		FROM products
		WHERE quantity < $1
		ORDER BY name
	`, lowStockThreshold)
	if err != nil {
		return nil, err
	}
	for lowRows.Next() {
		var p domain.Product
		if err := lowRows.Scan(&p.ID, &p.Name, &p.UnitPriceCents, &p.Quantity, &p.IsBottled, &p.Barcode); err != nil {
			_ = lowRows.Close()
			return nil, err
		}
		p.LowStock = true
		summary.LowStockProducts = append(summary.LowStockProducts, p)
	}
	if err := lowRows.Err(); err != nil {
		_ = lowRows.Close()
		return nil, err
	}
	_ = lowRows.Close()

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &summary, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, '')
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, '')
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomerCreditCents(ctx context.Context, customerID string) (int64, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, customerID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	var total int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE customer_id = $1 AND payment_method = $2
	`, customerID, domain.PaymentCredit).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.StoreSettings, error) {
	var settings domain.StoreSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT pin_hash, low_stock_threshold
		FROM store_settings
		WHERE id = 1
	`).Scan(&settings.PINHash, &settings.LowStockThreshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) UpdatePINHash(ctx context.Context, pinHash string) error {
	if pinHash == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE store_settings
		SET pin_hash = $1, updated_at = now()
		WHERE id = 1
	`, pinHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// EnsureSettings inserts the settings row on first boot. Existing settings
// are left untouched.
func (s *Store) EnsureSettings(ctx context.Context, pinHash string, lowStockThreshold int) error {
	if pinHash == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_settings (id, pin_hash, low_stock_threshold)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, pinHash, lowStockThreshold)
	return err
}

func (s *Store) lowStockThreshold(ctx context.Context) (int, error) {
	var threshold int
	err := s.db.QueryRowContext(ctx, `SELECT low_stock_threshold FROM store_settings WHERE id = 1`).Scan(&threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 5, nil
		}
		return 0, err
	}
	return threshold, nil
}

func uniqueProductIDs(items []domain.SaleLine) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapConflict translates serialization failures and deadlocks into
// store.ErrConflict so the service layer can retry.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return store.ErrConflict
		}
	}
	return err
}
