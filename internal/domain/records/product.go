package records

import (
	"github.com/erp/client/internal/domain/offline"
	"github.com/shopspring/decimal"
)

// ProductEntity is the entity name products are registered under
const ProductEntity = "products"

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Product is a catalog item as exchanged with the ERP API
type Product struct {
	ID            offline.ID      `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Barcode       string          `json:"barcode,omitempty"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Status        ProductStatus   `json:"status,omitempty"`
}

// RecordID implements offline.Record
func (p Product) RecordID() offline.ID { return p.ID }

// WithRecordID implements offline.Record
func (p Product) WithRecordID(id offline.ID) Product {
	p.ID = id
	return p
}

// Validate checks the fields the server would reject outright
func (p Product) Validate() error {
	if err := validateCode("Product", p.Code); err != nil {
		return err
	}
	if err := validateName("Product", p.Name); err != nil {
		return err
	}
	if p.Unit == "" {
		return offline.NewDomainError("INVALID_UNIT", "Product unit cannot be empty")
	}
	if p.PurchasePrice.IsNegative() || p.SellingPrice.IsNegative() {
		return offline.NewDomainError("INVALID_PRICE", "Product prices cannot be negative")
	}
	return nil
}

// Margin returns selling minus purchase price
func (p Product) Margin() decimal.Decimal {
	return p.SellingPrice.Sub(p.PurchasePrice)
}
