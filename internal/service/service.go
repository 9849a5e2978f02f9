package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"provisionpos/backend/internal/cache"
	"provisionpos/backend/internal/clock"
	"provisionpos/backend/internal/domain"
	"provisionpos/backend/internal/store"
	"provisionpos/backend/internal/xid"
)

type Service struct {
	repo              store.Repository
	clock             clock.Clock
	summaries         cache.SummaryCache
	undoWindow        time.Duration
	lowStockThreshold int
	summaryTTL        time.Duration
}

func New(repo store.Repository, clk clock.Clock, summaries cache.SummaryCache, undoWindow time.Duration, lowStockThreshold int, summaryTTL time.Duration) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if undoWindow <= 0 {
		undoWindow = 5 * time.Minute
	}
	if lowStockThreshold < 1 {
		lowStockThreshold = 5
	}
	if summaryTTL <= 0 {
		summaryTTL = 20 * time.Second
	}

	return &Service{
		repo:              repo,
		clock:             clk,
		summaries:         summaries,
		undoWindow:        undoWindow,
		lowStockThreshold: lowStockThreshold,
		summaryTTL:        summaryTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.Name == "" || req.UnitPriceCents < 0 || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	product := domain.Product{
		ID:             xid.New("prod"),
		Name:           req.Name,
		UnitPriceCents: req.UnitPriceCents,
		Quantity:       req.Quantity,
		IsBottled:      req.IsBottled,
		Barcode:        req.Barcode,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.UnitPriceCents = *req.UnitPriceCents
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.Quantity = *req.Quantity
	}
	if req.IsBottled != nil {
		updated.IsBottled = *req.IsBottled
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidTransaction
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	if req.Qty < 1 {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := s.buildSale(ctx, []domain.MultiSaleItem{{
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		BottleTaken: req.BottleTaken,
	}}, req.SoldBy, req.PaymentMethod, req.CustomerID)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.commitSale(ctx, sale)
}

func (s *Service) RecordMultiSale(ctx context.Context, req domain.MultiSaleRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := s.buildSale(ctx, req.Items, req.SoldBy, req.PaymentMethod, req.CustomerID)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.commitSale(ctx, sale)
}

func (s *Service) buildSale(ctx context.Context, items []domain.MultiSaleItem, soldBy string, paymentMethod string, customerID string) (domain.Sale, error) {
	soldBy = strings.TrimSpace(soldBy)
	paymentMethod = strings.ToLower(strings.TrimSpace(paymentMethod))
	customerID = strings.TrimSpace(customerID)

	if soldBy == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	if !isSupportedPaymentMethod(paymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: %q", store.ErrInvalidPayment, paymentMethod)
	}
	if paymentMethod == domain.PaymentCredit && customerID == "" {
		return domain.Sale{}, fmt.Errorf("%w: credit sale requires customer", store.ErrInvalidTransaction)
	}
	if customerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, customerID); err != nil {
			return domain.Sale{}, err
		}
	}

	lines := make([]domain.SaleLine, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Qty < 1 {
			return domain.Sale{}, store.ErrInvalidTransaction
		}
		lines = append(lines, domain.SaleLine{
			ProductID:   item.ProductID,
			Qty:         item.Qty,
			BottleTaken: item.BottleTaken,
		})
	}

	return domain.Sale{
		ID:            xid.New("sale"),
		Items:         lines,
		SoldBy:        soldBy,
		PaymentMethod: paymentMethod,
		CustomerID:    customerID,
		CreatedAt:     s.clock.Now(),
	}, nil
}

func (s *Service) commitSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	created, err := s.repo.CreateSale(ctx, sale)
	if errors.Is(err, store.ErrConflict) {
		created, err = s.repo.CreateSale(ctx, sale)
	}
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateSummary(ctx, created.CreatedAt)
	return *created, nil
}

func (s *Service) UndoLastSale(ctx context.Context) (domain.Sale, error) {
	cutoff := s.clock.Now().Add(-s.undoWindow)

	reverted, err := s.repo.UndoLatestSale(ctx, cutoff)
	if errors.Is(err, store.ErrConflict) {
		reverted, err = s.repo.UndoLatestSale(ctx, cutoff)
	}
	if err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] sale %s undone (total=%d, seller=%s)", reverted.ID, reverted.TotalCents, reverted.SoldBy)
	s.invalidateSummary(ctx, reverted.CreatedAt)
	return *reverted, nil
}

// SweepExpiredUndoEntries discards entries older than the undo window. Safe
// to run concurrently with sales: the cutoff guarantees no live entry is
// removed.
func (s *Service) SweepExpiredUndoEntries(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.undoWindow)
	purged, err := s.repo.PurgeExpiredUndoEntries(ctx, cutoff)
	if err != nil {
		log.Printf("[service] WARN: undo sweep failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[service] swept %d expired undo entries", purged)
	}
}

func (s *Service) ListSales(ctx context.Context, date string, productName string, seller string) ([]domain.SaleListItem, error) {
	filter := domain.SaleFilter{
		ProductName: strings.TrimSpace(productName),
		Seller:      strings.TrimSpace(seller),
	}
	if strings.TrimSpace(date) != "" {
		from, to, err := dayBounds(date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		filter.From = &from
		filter.To = &to
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ReturnBottles(ctx context.Context, req domain.BottleReturnRequest) (domain.BottleReturn, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ProductName == "" || req.Qty < 1 {
		return domain.BottleReturn{}, store.ErrInvalidTransaction
	}

	product, err := s.repo.GetProductByName(ctx, req.ProductName)
	if err != nil {
		return domain.BottleReturn{}, err
	}
	if !product.IsBottled {
		return domain.BottleReturn{}, store.ErrInvalidProduct
	}

	ret := domain.BottleReturn{
		ID:           xid.New("ret"),
		ProductID:    product.ID,
		ProductName:  product.Name,
		Qty:          req.Qty,
		CustomerName: req.CustomerName,
		CreatedAt:    s.clock.Now(),
	}

	created, err := s.repo.RecordBottleReturn(ctx, ret)
	if err != nil {
		return domain.BottleReturn{}, err
	}

	// Returns beyond recorded takes are accepted but flagged for follow-up.
	if account, err := s.repo.GetBottleAccount(ctx, product.ID); err == nil && account.Outstanding() < 0 {
		log.Printf("[service] WARN: bottle account %s went negative (taken=%d, returned=%d)", product.Name, account.BottlesTaken, account.BottlesReturned)
	}

	s.invalidateSummary(ctx, created.CreatedAt)
	return *created, nil
}

// BottleStatus reports counters for every bottled product in the catalog.
// Products that never took part in a sale or return show zeros.
func (s *Service) BottleStatus(ctx context.Context) ([]domain.BottleStatus, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListBottleAccounts(ctx)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]domain.BottleAccount, len(accounts))
	for _, account := range accounts {
		byProduct[account.ProductID] = account
	}

	statuses := make([]domain.BottleStatus, 0, len(products))
	for _, product := range products {
		if !product.IsBottled {
			continue
		}
		account := byProduct[product.ID]
		statuses = append(statuses, domain.BottleStatus{
			ProductName:        product.Name,
			BottlesTaken:       account.BottlesTaken,
			BottlesReturned:    account.BottlesReturned,
			OutstandingBottles: account.Outstanding(),
		})
	}
	return statuses, nil
}

func (s *Service) ListBottleReturns(ctx context.Context, limit int) ([]domain.BottleReturn, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListBottleReturns(ctx, limit)
}

// DailySummary reports the day's sales totals plus a point-in-time snapshot
// of bottle counters and low-stock products. The snapshot fields are not
// scoped to the requested date.
func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		now := s.clock.Now()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		to = from.Add(24 * time.Hour)
	} else {
		var err error
		from, to, err = dayBounds(date)
		if err != nil {
			return domain.DailySummary{}, store.ErrInvalidTransaction
		}
	}

	cacheKey := summaryCacheKey(from)
	if cached, found, err := s.summaries.Get(ctx, cacheKey); err == nil && found {
		return *cached, nil
	}

	summary, err := s.repo.GetDailySummary(ctx, from, to, s.lowStockThreshold)
	if err != nil {
		return domain.DailySummary{}, err
	}

	if err := s.summaries.Set(ctx, cacheKey, summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: failed to cache daily summary: %v", err)
	}

	return *summary, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidTransaction
	}

	customer := domain.Customer{
		ID:    xid.New("cust"),
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.TrimSpace(req.Email),
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CustomerBalance(ctx context.Context, customerID string) (domain.CustomerBalance, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CustomerBalance{}, store.ErrInvalidTransaction
	}

	total, err := s.repo.GetCustomerCreditCents(ctx, customerID)
	if err != nil {
		return domain.CustomerBalance{}, err
	}

	return domain.CustomerBalance{
		CustomerID:       customerID,
		OutstandingCents: total,
	}, nil
}

func (s *Service) BuildReceipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.ReceiptResponse{}, store.ErrInvalidTransaction
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	lines := []string{
		"Provision POS",
		"========================",
		"Sale: " + sale.ID,
		"Seller: " + sale.SoldBy,
		"Date: " + sale.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.ProductName, item.Qty))
		lines = append(lines, fmt.Sprintf("  %d", item.TotalCents))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Total   : %d", sale.TotalCents),
		fmt.Sprintf("Payment : %s", sale.PaymentMethod),
		"========================",
		"Thank you",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		SaleID:       sale.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}, nil
}

func (s *Service) OpenCashDrawer(_ context.Context, req domain.CashDrawerOpenRequest) (domain.CashDrawerOpenResponse, error) {
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		terminalID = "main-terminal"
	}
	// Standard ESC/POS pulse command for drawer kick on pin2.
	command := []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
	return domain.CashDrawerOpenResponse{
		TerminalID:    terminalID,
		CommandBase64: base64.StdEncoding.EncodeToString(command),
		Note:          "Send this ESC/POS pulse command via local printer bridge to open cash drawer.",
	}, nil
}

func (s *Service) invalidateSummary(ctx context.Context, at time.Time) {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	if err := s.summaries.Invalidate(ctx, summaryCacheKey(day)); err != nil {
		log.Printf("[service] WARN: failed to invalidate summary cache: %v", err)
	}
}

func summaryCacheKey(day time.Time) string {
	return "summary:daily:" + day.Format("2006-01-02")
}

func dayBounds(date string) (time.Time, time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentPOS, domain.PaymentTransfer, domain.PaymentCredit:
		return true
	default:
		return false
	}
}
