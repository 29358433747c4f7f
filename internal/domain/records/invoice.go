package records

import (
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/shopspring/decimal"
)

// InvoiceEntity is the entity name invoices are registered under
const InvoiceEntity = "invoices"

// InvoiceStatus represents the lifecycle of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceLine is one billed product
type InvoiceLine struct {
	ProductID offline.ID      `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Amount returns quantity times unit price
func (l InvoiceLine) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Invoice is a sales invoice as exchanged with the ERP API.
// CustomerID may hold a temporary id until the customer is synced.
type Invoice struct {
	ID         offline.ID      `json:"id"`
	Number     string          `json:"number,omitempty"`
	CustomerID offline.ID      `json:"customer_id"`
	IssuedAt   time.Time       `json:"issued_at"`
	DueAt      *time.Time      `json:"due_at,omitempty"`
	Status     InvoiceStatus   `json:"status"`
	Lines      []InvoiceLine   `json:"lines"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Notes      string          `json:"notes,omitempty"`
}

// RecordID implements offline.Record
func (i Invoice) RecordID() offline.ID { return i.ID }

// WithRecordID implements offline.Record. Lines are copied so the result
// shares no backing array with the receiver.
func (i Invoice) WithRecordID(id offline.ID) Invoice {
	i.ID = id
	i.Lines = append([]InvoiceLine(nil), i.Lines...)
	return i
}

// Subtotal sums the line amounts
func (i Invoice) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range i.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Total returns the subtotal plus tax, rounded to cents
func (i Invoice) Total() decimal.Decimal {
	sub := i.Subtotal()
	return sub.Add(sub.Mul(i.TaxRate)).Round(2)
}

// Validate checks the fields the server would reject outright
func (i Invoice) Validate() error {
	if i.CustomerID.IsZero() {
		return offline.NewDomainError("INVALID_CUSTOMER", "Invoice requires a customer")
	}
	if len(i.Lines) == 0 {
		return offline.NewDomainError("INVALID_LINES", "Invoice requires at least one line")
	}
	for _, l := range i.Lines {
		if l.ProductID.IsZero() {
			return offline.NewDomainError("INVALID_LINES", "Invoice line requires a product")
		}
		if !l.Quantity.IsPositive() {
			return offline.NewDomainError("INVALID_LINES", "Invoice line quantity must be positive")
		}
		if l.UnitPrice.IsNegative() {
			return offline.NewDomainError("INVALID_LINES", "Invoice line price cannot be negative")
		}
	}
	if i.TaxRate.IsNegative() || i.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return offline.NewDomainError("INVALID_TAX_RATE", "Tax rate must be between 0 and 1")
	}
	if i.DueAt != nil && i.DueAt.Before(i.IssuedAt) {
		return offline.NewDomainError("INVALID_DUE_DATE", "Due date cannot precede the issue date")
	}
	switch i.Status {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusPaid, InvoiceStatusCancelled:
	default:
		return offline.NewDomainError("INVALID_STATUS", "Unknown invoice status")
	}
	return nil
}
