package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LineType classifies transaction lines
type LineType string

const (
	LineProduct   LineType = "PRODUCT"
	LineDiscount  LineType = "DISCOUNT"
	LineTax       LineType = "TAX"
	LineExtension LineType = "EXTENSION"
)

// IsValid checks if the line type is known
func (t LineType) IsValid() bool {
	switch t {
	case LineProduct, LineDiscount, LineTax, LineExtension:
		return true
	default:
		return false
	}
}

// TransactionLine is one line of a transaction document
type TransactionLine struct {
	ID                 string     `bson:"id" json:"id"`
	LineNumber         int        `bson:"lineNumber" json:"lineNumber"`
	LineType           LineType   `bson:"lineType" json:"lineType"`
	SKUID              string     `bson:"skuId,omitempty" json:"skuId,omitempty"`
	Description        string     `bson:"description,omitempty" json:"description,omitempty"`
	UnitIDs            []string   `bson:"unitIds,omitempty" json:"unitIds,omitempty"`
	Quantity           int        `bson:"quantity" json:"quantity"`
	UnitPrice          Money      `bson:"unitPrice" json:"unitPrice"`
	DailyRate          Money      `bson:"dailyRate" json:"dailyRate"`
	DiscountPercentage Percentage `bson:"discountPercentage" json:"discountPercentage"`
	DiscountAmount     Money      `bson:"discountAmount" json:"discountAmount"`
	TaxRate            Percentage `bson:"taxRate" json:"taxRate"`
	TaxAmount          Money      `bson:"taxAmount" json:"taxAmount"`
	LineTotal          Money      `bson:"lineTotal" json:"lineTotal"`
	ReturnedQuantity   int        `bson:"returnedQuantity" json:"returnedQuantity"`
	RentalStartDate    *time.Time `bson:"rentalStartDate,omitempty" json:"rentalStartDate,omitempty"`
	RentalEndDate      *time.Time `bson:"rentalEndDate,omitempty" json:"rentalEndDate,omitempty"`
	RentalDays         int        `bson:"rentalDays,omitempty" json:"rentalDays,omitempty"`
	LastReturnDate     *time.Time `bson:"lastReturnDate,omitempty" json:"lastReturnDate,omitempty"`
	Notes              string     `bson:"notes,omitempty" json:"notes,omitempty"`
}

// ProductLineParams describes a product line before it is priced
type ProductLineParams struct {
	SKUID              string
	Description        string
	Quantity           int
	UnitPrice          Money
	DailyRate          Money
	DiscountPercentage Percentage
	DiscountAmount     Money
	TaxRate            Percentage
	RentalStartDate    *time.Time
	RentalEndDate      *time.Time
	UnitIDs            []string
}

// NewProductLine validates and prices a product line
func NewProductLine(lineNumber int, p ProductLineParams) (*TransactionLine, error) {
	if p.SKUID == "" {
		return nil, NewLineValidationError(lineNumber, "skuId", "is required for product lines")
	}
	if p.Quantity <= 0 {
		return nil, NewLineValidationError(lineNumber, "quantity", "must be positive")
	}
	if p.UnitPrice.IsNegative() {
		return nil, NewLineValidationError(lineNumber, "unitPrice", "cannot be negative")
	}
	if !p.DiscountPercentage.InRange() {
		return nil, NewLineValidationError(lineNumber, "discountPercentage", "must be between 0 and 100")
	}
	if !p.DiscountPercentage.IsZero() && !p.DiscountAmount.IsZero() {
		return nil, NewLineValidationError(lineNumber, "discount", "use either a percentage or an amount")
	}
	if p.DiscountAmount.IsNegative() {
		return nil, NewLineValidationError(lineNumber, "discountAmount", "cannot be negative")
	}
	if !p.TaxRate.InRange() {
		return nil, NewLineValidationError(lineNumber, "taxRate", "must be between 0 and 100")
	}
	if len(p.UnitIDs) > p.Quantity {
		return nil, NewLineValidationError(lineNumber, "unitIds", fmt.Sprintf("%d units named for quantity %d", len(p.UnitIDs), p.Quantity))
	}

	line := &TransactionLine{
		ID:                 NewID(),
		LineNumber:         lineNumber,
		LineType:           LineProduct,
		SKUID:              p.SKUID,
		Description:        p.Description,
		UnitIDs:            p.UnitIDs,
		Quantity:           p.Quantity,
		UnitPrice:          p.UnitPrice,
		DailyRate:          p.DailyRate,
		DiscountPercentage: p.DiscountPercentage,
		DiscountAmount:     p.DiscountAmount,
		TaxRate:            p.TaxRate,
	}
	if p.RentalStartDate != nil && p.RentalEndDate != nil {
		if p.RentalEndDate.Before(*p.RentalStartDate) {
			return nil, NewLineValidationError(lineNumber, "rentalEndDate", "must not be before the start date")
		}
		line.RentalStartDate = p.RentalStartDate
		line.RentalEndDate = p.RentalEndDate
		line.RentalDays = RentalDays(*p.RentalStartDate, *p.RentalEndDate)
	}
	if gross := line.Gross(); line.DiscountAmount.GreaterThan(gross) {
		return nil, NewLineValidationError(lineNumber, "discountAmount", "exceeds the line amount")
	}
	line.Calculate()
	return line, nil
}

// NewAdjustmentLine creates a DISCOUNT, TAX or EXTENSION line carrying a single amount.
// Discount amounts are stored as a negative unit price.
func NewAdjustmentLine(lineNumber int, lineType LineType, description string, amount Money) (*TransactionLine, error) {
	if lineType == LineProduct || !lineType.IsValid() {
		return nil, NewLineValidationError(lineNumber, "lineType", "must be DISCOUNT, TAX or EXTENSION")
	}
	if amount.IsNegative() {
		return nil, NewLineValidationError(lineNumber, "amount", "cannot be negative")
	}
	price := amount
	if lineType == LineDiscount {
		price = amount.Neg()
	}
	line := &TransactionLine{
		ID:          NewID(),
		LineNumber:  lineNumber,
		LineType:    lineType,
		Description: description,
		Quantity:    1,
		UnitPrice:   price,
	}
	line.Calculate()
	return line, nil
}

// Gross is quantity times unit price before discount and tax
func (l *TransactionLine) Gross() Money {
	return l.UnitPrice.MulInt(l.Quantity)
}

// Calculate derives discount, tax and line total. Percentages are applied
// to the unrounded gross and each derived amount is rounded once.
func (l *TransactionLine) Calculate() {
	gross := l.Gross()
	if l.LineType != LineProduct {
		l.DiscountAmount = ZeroMoney()
		l.TaxAmount = ZeroMoney()
		l.LineTotal = NewMoney(gross.Decimal())
		return
	}
	if !l.DiscountPercentage.IsZero() {
		l.DiscountAmount = gross.Percent(l.DiscountPercentage.Decimal())
	}
	taxable := gross.Sub(l.DiscountAmount)
	l.TaxAmount = taxable.Percent(l.TaxRate.Decimal())
	l.LineTotal = NewMoney(taxable.Add(l.TaxAmount).Decimal())
}

// ApplyDiscount replaces the line discount with either a percentage or a fixed amount
func (l *TransactionLine) ApplyDiscount(pct Percentage, amount Money) error {
	if l.LineType != LineProduct {
		return NewLineValidationError(l.LineNumber, "lineType", "discounts apply to product lines only")
	}
	if !pct.IsZero() && !amount.IsZero() {
		return NewLineValidationError(l.LineNumber, "discount", "use either a percentage or an amount")
	}
	if !pct.InRange() {
		return NewLineValidationError(l.LineNumber, "discountPercentage", "must be between 0 and 100")
	}
	if amount.IsNegative() || amount.GreaterThan(l.Gross()) {
		return NewLineValidationError(l.LineNumber, "discountAmount", "must be between 0 and the line amount")
	}
	l.DiscountPercentage = pct
	l.DiscountAmount = amount
	l.Calculate()
	return nil
}

// EffectiveUnitPrice is the discounted price per unit
func (l *TransactionLine) EffectiveUnitPrice() Money {
	if l.Quantity == 0 {
		return ZeroMoney()
	}
	net := l.Gross().Sub(l.DiscountAmount)
	return NewMoney(net.Decimal().Div(decimal.NewFromInt(int64(l.Quantity))))
}

// RemainingQuantity is what is still out with the customer
func (l *TransactionLine) RemainingQuantity() int {
	return l.Quantity - l.ReturnedQuantity
}

func (l *TransactionLine) IsFullyReturned() bool {
	return l.ReturnedQuantity >= l.Quantity
}

func (l *TransactionLine) IsPartiallyReturned() bool {
	return l.ReturnedQuantity > 0 && l.ReturnedQuantity < l.Quantity
}

// ProcessReturn adds q to the returned quantity. The line is unchanged on error.
func (l *TransactionLine) ProcessReturn(q int, returnedAt time.Time) error {
	if q < 0 {
		return NewLineValidationError(l.LineNumber, "returnedQuantity", "cannot be negative")
	}
	if q > l.RemainingQuantity() {
		return NewLineValidationError(l.LineNumber, "returnedQuantity",
			fmt.Sprintf("return of %d exceeds remaining quantity %d", q, l.RemainingQuantity()))
	}
	if q == 0 {
		return nil
	}
	l.ReturnedQuantity += q
	l.LastReturnDate = &returnedAt
	return nil
}

// RentalDays counts inclusive calendar days from start to end
func RentalDays(start, end time.Time) int {
	return DaysBetween(start, end) + 1
}
