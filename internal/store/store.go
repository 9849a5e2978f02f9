package store

import (
	"context"
	"errors"
	"time"

	"provisionpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidPayment     = errors.New("invalid payment method")
	ErrNoEligibleUndo     = errors.New("no sale eligible for undo")
	ErrConflict           = errors.New("write conflict")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// CreateSale commits a sale atomically: it snapshots product names and
	// prices, decrements stock (failing with ErrInsufficientStock when any
	// line would drive quantity negative), increments bottles-taken counters
	// for bottled lines, and records the undo entry. A line referencing an
	// unknown product fails with ErrNotFound. Either every effect lands or
	// none do.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleListItem, error)

	// UndoLatestSale reverts the most recent sale whose undo entry was
	// created at or after cutoff: stock and bottle counters are restored and
	// the sale and its entry are removed. The consumed entry guards against
	// concurrent double undo. Returns ErrNoEligibleUndo when no entry
	// qualifies.
	UndoLatestSale(ctx context.Context, cutoff time.Time) (*domain.Sale, error)
	PurgeExpiredUndoEntries(ctx context.Context, cutoff time.Time) (int, error)

	RecordBottleReturn(ctx context.Context, ret domain.BottleReturn) (*domain.BottleReturn, error)
	GetBottleAccount(ctx context.Context, productID string) (*domain.BottleAccount, error)
	ListBottleAccounts(ctx context.Context) ([]domain.BottleAccount, error)
	ListBottleReturns(ctx context.Context, limit int) ([]domain.BottleReturn, error)

	GetDailySummary(ctx context.Context, from time.Time, to time.Time, lowStockThreshold int) (*domain.DailySummary, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	// GetCustomerCreditCents sums the totals of surviving credit sales for
	// the customer. Undone sales no longer contribute.
	GetCustomerCreditCents(ctx context.Context, customerID string) (int64, error)

	GetSettings(ctx context.Context) (*domain.StoreSettings, error)
	UpdatePINHash(ctx context.Context, pinHash string) error
}
