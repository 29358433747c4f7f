package records

import (
	"strings"

	"github.com/erp/client/internal/domain/offline"
	"github.com/shopspring/decimal"
)

// CustomerEntity is the entity name customers are registered under
const CustomerEntity = "customers"

// CustomerType represents the type of customer
type CustomerType string

const (
	CustomerTypeIndividual   CustomerType = "individual"
	CustomerTypeOrganization CustomerType = "organization"
)

// CustomerStatus represents the status of a customer
type CustomerStatus string

const (
	CustomerStatusActive    CustomerStatus = "active"
	CustomerStatusInactive  CustomerStatus = "inactive"
	CustomerStatusSuspended CustomerStatus = "suspended"
)

// Customer is a customer as exchanged with the ERP API
type Customer struct {
	ID          offline.ID      `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	ShortName   string          `json:"short_name,omitempty"`
	Type        CustomerType    `json:"type"`
	Status      CustomerStatus  `json:"status,omitempty"`
	ContactName string          `json:"contact_name,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Email       string          `json:"email,omitempty"`
	Address     string          `json:"address,omitempty"`
	TaxID       string          `json:"tax_id,omitempty"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Balance     decimal.Decimal `json:"balance"`
	Notes       string          `json:"notes,omitempty"`
}

// RecordID implements offline.Record
func (c Customer) RecordID() offline.ID { return c.ID }

// WithRecordID implements offline.Record
func (c Customer) WithRecordID(id offline.ID) Customer {
	c.ID = id
	return c
}

// Validate checks the fields the server would reject outright
func (c Customer) Validate() error {
	if err := validateCode("Customer", c.Code); err != nil {
		return err
	}
	if err := validateName("Customer", c.Name); err != nil {
		return err
	}
	switch c.Type {
	case CustomerTypeIndividual, CustomerTypeOrganization:
	default:
		return offline.NewDomainError("INVALID_TYPE", "Customer type must be individual or organization")
	}
	if c.CreditLimit.IsNegative() {
		return offline.NewDomainError("INVALID_CREDIT_LIMIT", "Credit limit cannot be negative")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return offline.NewDomainError("INVALID_EMAIL", "Email address is invalid")
	}
	return nil
}

// AvailableCredit returns the credit limit left after the outstanding balance
func (c Customer) AvailableCredit() decimal.Decimal {
	return c.CreditLimit.Add(c.Balance)
}
