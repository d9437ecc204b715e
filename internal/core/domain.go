package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Shopping      Category = "Shopping"
	Entertainment Category = "Entertainment"
	Utilities     Category = "Utilities"
	Health        Category = "Health"
	Finance       Category = "Finance"
	Other         Category = "Other"
)

// DateLayout is the wire and storage format of an expense date.
const DateLayout = "2006-01-02"

const (
	maxVendorLength      = 200
	maxDescriptionLength = 500
)

type (
	// Category is one of a closed set of spending classes.
	Category string

	// Date is a calendar date without a time component. The wrapped time is
	// always midnight UTC.
	Date struct {
		time.Time
	}

	// Expense is one recorded transaction. Category and IsAnomaly are derived
	// once at ingestion and never recomputed.
	Expense struct {
		ID          int64     `json:"id"`
		Date        Date      `json:"date"`
		Amount      Money     `json:"amount"`
		VendorName  string    `json:"vendorName"`
		Description string    `json:"description"`
		Category    Category  `json:"category"`
		IsAnomaly   bool      `json:"isAnomaly"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// NewExpense is the caller-supplied part of an expense, before
	// classification and persistence.
	NewExpense struct {
		Date        Date   `json:"date"`
		Amount      Money  `json:"amount"`
		VendorName  string `json:"vendorName"`
		Description string `json:"description,omitempty"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyVendor        = errors.New("vendor name required")
	ErrVendorTooLong      = fmt.Errorf("vendor name too long (max %d characters)", maxVendorLength)
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
	ErrUnknownCategory    = errors.New("unknown category")
)

// Categories lists every category in display order.
var Categories = []Category{Food, Transport, Shopping, Entertainment, Utilities, Health, Finance, Other}

// ValidationError reports which field of a NewExpense was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// MonthKey returns the YYYY-MM bucket of the date.
func (d Date) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month()))
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Normalize trims the free-text fields.
func (n NewExpense) Normalize() NewExpense {
	n.VendorName = strings.TrimSpace(n.VendorName)
	n.Description = strings.TrimSpace(n.Description)
	return n
}

// Validate checks the fields in the order a caller would fix them: date,
// amount, vendor, description.
func (n NewExpense) Validate() error {
	if err := n.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	if err := n.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	vendor := strings.TrimSpace(n.VendorName)
	if vendor == "" {
		return &ValidationError{Field: "vendorName", Err: ErrEmptyVendor}
	}
	if len(vendor) > maxVendorLength {
		return &ValidationError{Field: "vendorName", Err: ErrVendorTooLong}
	}
	if len(strings.TrimSpace(n.Description)) > maxDescriptionLength {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	return nil
}
