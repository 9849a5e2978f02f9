package domain

import "time"

type Product struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	IsBottled      bool   `json:"is_bottled"`
	Barcode        string `json:"barcode,omitempty"`
	LowStock       bool   `json:"low_stock"`
}

type ProductCreateRequest struct {
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	IsBottled      bool   `json:"is_bottled"`
	Barcode        string `json:"barcode,omitempty"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	UnitPriceCents *int64  `json:"unit_price_cents,omitempty"`
	Quantity       *int    `json:"quantity,omitempty"`
	IsBottled      *bool   `json:"is_bottled,omitempty"`
	Barcode        *string `json:"barcode,omitempty"`
}

// SaleLine snapshots the product at commit time. UnitPriceCents and
// TotalCents never change afterwards, even if the catalog price does.
type SaleLine struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
	BottleTaken    bool   `json:"bottle_taken"`
}

type Sale struct {
	ID            string     `json:"id"`
	Items         []SaleLine `json:"items"`
	SoldBy        string     `json:"sold_by"`
	PaymentMethod string     `json:"payment_method"`
	CustomerID    string     `json:"customer_id,omitempty"`
	TotalCents    int64      `json:"total_cents"`
	CreatedAt     time.Time  `json:"created_at"`
}

type SaleRequest struct {
	ProductID     string `json:"product_id"`
	Qty           int    `json:"qty"`
	BottleTaken   bool   `json:"bottle_taken"`
	SoldBy        string `json:"sold_by"`
	PaymentMethod string `json:"payment_method"`
	CustomerID    string `json:"customer_id,omitempty"`
}

type MultiSaleItem struct {
	ProductID   string `json:"product_id"`
	Qty         int    `json:"qty"`
	BottleTaken bool   `json:"bottle_taken"`
}

type MultiSaleRequest struct {
	Items         []MultiSaleItem `json:"items"`
	SoldBy        string          `json:"sold_by"`
	PaymentMethod string          `json:"payment_method"`
	CustomerID    string          `json:"customer_id,omitempty"`
}

// SaleFilter narrows sale listings. Zero-value fields are ignored.
type SaleFilter struct {
	From        *time.Time
	To          *time.Time
	ProductName string
	Seller      string
}

// SaleListItem is one flattened row of a sale listing: multi-item sales
// contribute one row per line.
type SaleListItem struct {
	SaleID         string    `json:"sale_id"`
	ProductID      string    `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	BottleTaken    bool      `json:"bottle_taken"`
	SoldBy         string    `json:"sold_by"`
	PaymentMethod  string    `json:"payment_method"`
	CustomerID     string    `json:"customer_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type BottleAccount struct {
	ProductID       string `json:"product_id"`
	BottlesTaken    int    `json:"bottles_taken"`
	BottlesReturned int    `json:"bottles_returned"`
}

// Outstanding may be negative when recorded returns exceed recorded takes.
func (a BottleAccount) Outstanding() int {
	return a.BottlesTaken - a.BottlesReturned
}

type BottleReturn struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	Qty          int       `json:"qty"`
	CustomerName string    `json:"customer_name"`
	CreatedAt    time.Time `json:"created_at"`
}

type BottleReturnRequest struct {
	ProductName  string `json:"product_name"`
	Qty          int    `json:"qty"`
	CustomerName string `json:"customer_name"`
}

type BottleStatus struct {
	ProductName        string `json:"product_name"`
	BottlesTaken       int    `json:"bottles_taken"`
	BottlesReturned    int    `json:"bottles_returned"`
	OutstandingBottles int    `json:"outstanding_bottles"`
}

// UndoEntry marks a sale as reversible until the undo window elapses.
// Consumed by a successful undo, swept after expiry.
type UndoEntry struct {
	SaleID    string    `json:"sale_id"`
	CreatedAt time.Time `json:"created_at"`
}

type DailySummary struct {
	Date               string           `json:"date"`
	TotalSalesCents    int64            `json:"total_sales_cents"`
	SalesBySeller      map[string]int64 `json:"sales_by_seller"`
	BottlesTaken       int              `json:"bottles_taken"`
	BottlesReturned    int              `json:"bottles_returned"`
	OutstandingBottles int              `json:"outstanding_bottles"`
	LowStockProducts   []Product        `json:"low_stock_products"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type CustomerBalance struct {
	CustomerID       string `json:"customer_id"`
	OutstandingCents int64  `json:"outstanding_balance_cents"`
}

// StoreSettings is the persisted per-store configuration: the operator PIN
// hash (bcrypt) and the low-stock report threshold.
type StoreSettings struct {
	PINHash           string
	LowStockThreshold int
}

type LoginRequest struct {
	PIN string `json:"pin"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type ChangePINRequest struct {
	OldPIN string `json:"old_pin"`
	NewPIN string `json:"new_pin"`
}

type ReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type CashDrawerOpenRequest struct {
	TerminalID string `json:"terminal_id"`
}

type CashDrawerOpenResponse struct {
	TerminalID    string `json:"terminal_id"`
	CommandBase64 string `json:"command_base64"`
	Note          string `json:"note"`
}

const (
	PaymentCash     = "cash"
	PaymentPOS      = "pos"
	PaymentTransfer = "transfer"
	PaymentCredit   = "credit"
)
