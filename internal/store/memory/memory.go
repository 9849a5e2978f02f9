package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"provisionpos/backend/internal/domain"
	"provisionpos/backend/internal/store"
	"provisionpos/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	salesByID      map[string]domain.Sale
	undoEntries    map[string]domain.UndoEntry
	bottleAccounts map[string]domain.BottleAccount
	bottleReturns  []domain.BottleReturn
	customersByID  map[string]domain.Customer
	settings       domain.StoreSettings
}

// seedPIN builds the initial operator PIN hash for dev/demo mode. The PIN is
// read from SEED_OPERATOR_PIN; if unset, a hardcoded dev default is used with
// a warning printed to stdout. This seed is never used in production (the
// backend uses PostgreSQL when DATABASE_URL is set).
func seedPIN() string {
	pin := os.Getenv("SEED_OPERATOR_PIN")
	if pin == "" {
		pin = "1234"
		log.Println("[memory-store] WARNING: using default dev PIN. Set SEED_OPERATOR_PIN to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed PIN: %v", err)
	}
	return string(hash)
}

func NewSeeded(lowStockThreshold int) *Store {
	products := []domain.Product{
		{ID: "prod-water-50cl", Name: "Water 50cl", UnitPriceCents: 10000, Quantity: 48, IsBottled: true, Barcode: "6151100230011"},
		{ID: "prod-cola-60cl", Name: "Cola 60cl", UnitPriceCents: 25000, Quantity: 36, IsBottled: true, Barcode: "6151100230028"},
		{ID: "prod-malt-33cl", Name: "Malt Drink 33cl", UnitPriceCents: 40000, Quantity: 24, IsBottled: true, Barcode: "6151100230035"},
		{ID: "prod-bread-loaf", Name: "Sliced Bread", UnitPriceCents: 90000, Quantity: 12, IsBottled: false},
		{ID: "prod-milk-tin", Name: "Evaporated Milk Tin", UnitPriceCents: 55000, Quantity: 30, IsBottled: false, Barcode: "6151100230059"},
		{ID: "prod-sugar-1kg", Name: "Sugar 1kg", UnitPriceCents: 120000, Quantity: 15, IsBottled: false},
		{ID: "prod-detergent", Name: "Detergent Sachet", UnitPriceCents: 15000, Quantity: 60, IsBottled: false, Barcode: "6151100230073"},
		{ID: "prod-candle-pack", Name: "Candle Pack", UnitPriceCents: 35000, Quantity: 4, IsBottled: false},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:       productMap,
		salesByID:      make(map[string]domain.Sale),
		undoEntries:    make(map[string]domain.UndoEntry),
		bottleAccounts: make(map[string]domain.BottleAccount),
		bottleReturns:  make([]domain.BottleReturn, 0, 32),
		customersByID:  make(map[string]domain.Customer),
		settings: domain.StoreSettings{
			PINHash:           seedPIN(),
			LowStockThreshold: lowStockThreshold,
		},
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, s.withLowStock(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.UnitPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrInvalidTransaction
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}

	s.products[product.ID] = product
	created := s.withLowStock(product)
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := s.withLowStock(product)
	return &copyProduct, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			copyProduct := s.withLowStock(p)
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.UnitPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.products {
		if id != product.ID && strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrInvalidTransaction
		}
	}

	s.products[product.ID] = product
	updated := s.withLowStock(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	delete(s.bottleAccounts, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Aggregate demand per product first so a sale listing the same product
	// on two lines cannot slip past the stock check.
	needed := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, exists := s.products[line.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		needed[line.ProductID] += line.Qty
	}
	for productID, qty := range needed {
		if s.products[productID].Quantity < qty {
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
		product := s.products[line.ProductID]
		product.Quantity -= line.Qty
		s.products[line.ProductID] = product

		line.ProductName = product.Name
		line.UnitPriceCents = product.UnitPriceCents
		line.TotalCents = product.UnitPriceCents * int64(line.Qty)
		line.BottleTaken = line.BottleTaken && product.IsBottled
		if line.BottleTaken {
			account := s.bottleAccounts[line.ProductID]
			account.ProductID = line.ProductID
			account.BottlesTaken += line.Qty
			s.bottleAccounts[line.ProductID] = account
		}
		total += line.TotalCents
		items[i] = line
	}
	sale.Items = items
	sale.TotalCents = total

	s.salesByID[sale.ID] = sale
	s.undoEntries[sale.ID] = domain.UndoEntry{SaleID: sale.ID, CreatedAt: sale.CreatedAt}

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.SaleListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seller := strings.ToLower(filter.Seller)
	productName := strings.ToLower(filter.ProductName)

	items := make([]domain.SaleListItem, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		if seller != "" && !strings.Contains(strings.ToLower(sale.SoldBy), seller) {
			continue
		}
		for _, line := range sale.Items {
			if productName != "" && !strings.Contains(strings.ToLower(line.ProductName), productName) {
				continue
			}
			items = append(items, domain.SaleListItem{
				SaleID:         sale.ID,
				ProductID:      line.ProductID,
				ProductName:    line.ProductName,
				Qty:            line.Qty,
				UnitPriceCents: line.UnitPriceCents,
				TotalCents:     line.TotalCents,
				BottleTaken:    line.BottleTaken,
				SoldBy:         sale.SoldBy,
				PaymentMethod:  sale.PaymentMethod,
				CustomerID:     sale.CustomerID,
				CreatedAt:      sale.CreatedAt,
			})
		}
	}

	slices.SortFunc(items, func(a, b domain.SaleListItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.SaleID, a.SaleID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return items, nil
}

func (s *Store) UndoLatestSale(_ context.Context, cutoff time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *domain.UndoEntry
	for _, entry := range s.undoEntries {
		if entry.CreatedAt.Before(cutoff) {
			continue
		}
		if latest == nil || entry.CreatedAt.After(latest.CreatedAt) ||
			(entry.CreatedAt.Equal(latest.CreatedAt) && entry.SaleID > latest.SaleID) {
			e := entry
			latest = &e
		}
	}
	if latest == nil {
		return nil, store.ErrNoEligibleUndo
	}

	sale, exists := s.salesByID[latest.SaleID]
	if !exists {
		// Entry without a sale should not happen; drop it and report.
		delete(s.undoEntries, latest.SaleID)
		return nil, store.ErrNoEligibleUndo
	}

	for _, line := range sale.Items {
		if product, ok := s.products[line.ProductID]; ok {
			product.Quantity += line.Qty
			s.products[line.ProductID] = product
		}
		if line.BottleTaken {
			account := s.bottleAccounts[line.ProductID]
			account.ProductID = line.ProductID
			account.BottlesTaken -= line.Qty
			s.bottleAccounts[line.ProductID] = account
		}
	}

	delete(s.salesByID, sale.ID)
	delete(s.undoEntries, sale.ID)

	reverted := cloneSale(sale)
	return &reverted, nil
}

func (s *Store) PurgeExpiredUndoEntries(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for saleID, entry := range s.undoEntries {
		if entry.CreatedAt.Before(cutoff) {
			delete(s.undoEntries, saleID)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) RecordBottleReturn(_ context.Context, ret domain.BottleReturn) (*domain.BottleReturn, error) {
	if ret.ProductID == "" || ret.Qty < 1 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[ret.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !product.IsBottled {
		return nil, store.ErrInvalidProduct
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.ProductName = product.Name

	account := s.bottleAccounts[ret.ProductID]
	account.ProductID = ret.ProductID
	account.BottlesReturned += ret.Qty
	s.bottleAccounts[ret.ProductID] = account

	s.bottleReturns = append(s.bottleReturns, ret)

	created := ret
	return &created, nil
}

func (s *Store) GetBottleAccount(_ context.Context, productID string) (*domain.BottleAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.bottleAccounts[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyAccount := account
	return &copyAccount, nil
}

func (s *Store) ListBottleAccounts(_ context.Context) ([]domain.BottleAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.BottleAccount, 0, len(s.bottleAccounts))
	for _, a := range s.bottleAccounts {
		accounts = append(accounts, a)
	}
	slices.SortFunc(accounts, func(a, b domain.BottleAccount) int {
		return cmpString(a.ProductID, b.ProductID)
	})
	return accounts, nil
}

func (s *Store) ListBottleReturns(_ context.Context, limit int) ([]domain.BottleReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BottleReturn, len(s.bottleReturns))
	copy(result, s.bottleReturns)
	slices.SortFunc(result, func(a, b domain.BottleReturn) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetDailySummary(_ context.Context, from time.Time, to time.Time, lowStockThreshold int) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DailySummary{
		Date:             from.Format("2006-01-02"),
		SalesBySeller:    make(map[string]int64),
		LowStockProducts: []domain.Product{},
	}

	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		summary.TotalSalesCents += sale.TotalCents
		summary.SalesBySeller[sale.SoldBy] += sale.TotalCents
	}

	// Bottle totals are a point-in-time snapshot, not date-scoped.
	for _, account := range s.bottleAccounts {
		summary.BottlesTaken += account.BottlesTaken
		summary.BottlesReturned += account.BottlesReturned
	}
	summary.OutstandingBottles = summary.BottlesTaken - summary.BottlesReturned

	for _, p := range s.products {
		if p.Quantity < lowStockThreshold {
			summary.LowStockProducts = append(summary.LowStockProducts, s.withLowStock(p))
		}
	}
	slices.SortFunc(summary.LowStockProducts, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})

	return &summary, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}

	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) GetCustomerCreditCents(_ context.Context, customerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.customersByID[customerID]; !exists {
		return 0, store.ErrNotFound
	}

	total := int64(0)
	for _, sale := range s.salesByID {
		if sale.CustomerID == customerID && sale.PaymentMethod == domain.PaymentCredit {
			total += sale.TotalCents
		}
	}
	return total, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.StoreSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	return &settings, nil
}

func (s *Store) UpdatePINHash(_ context.Context, pinHash string) error {
	if pinHash == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.PINHash = pinHash
	return nil
}

// withLowStock derives the LowStock flag from the configured threshold.
// Callers must hold at least the read lock.
func (s *Store) withLowStock(p domain.Product) domain.Product {
	p.LowStock = p.Quantity < s.settings.LowStockThreshold
	return p
}

func cloneSale(sale domain.Sale) domain.Sale {
	items := make([]domain.SaleLine, len(sale.Items))
	copy(items, sale.Items)
	sale.Items = items
	return sale
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
