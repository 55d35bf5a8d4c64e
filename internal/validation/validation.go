// Package validation checks mutation input before it reaches the store.
// Every check returns an *Error carrying the user-facing message.
package validation

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"crmcore/internal/money"
)

// User-facing messages. Callers and tests compare against these verbatim.
const (
	MsgInvalidPhone      = "Invalid phone format. Use +1234567890 or 123-456-7890."
	MsgEmailExists       = "Email already exists."
	MsgEmailRequired     = "Email is required."
	MsgPriceRequired     = "Price is required."
	MsgPriceInvalid      = "Invalid price value."
	MsgPriceNotPositive  = "Price must be positive."
	MsgStockNegative     = "Stock must be non-negative."
	MsgNoProducts        = "At least one product must be selected."
	MsgInvalidProductID  = "Invalid product ID in productIds."
	MsgInvalidCustomerID = "Invalid customer ID."
	MsgNoCustomers       = "At least one customer record is required."
)

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\+\d{10,15}$`),
	regexp.MustCompile(`^\d{3}-\d{3}-\d{4}$`),
}

// EmailChecker reports whether a customer already holds an email.
type EmailChecker interface {
	CustomerEmailExists(email string) (bool, error)
}

// Phone accepts an empty phone or one matching +DDDDDDDDDD (10-15 digits) or
// DDD-DDD-DDDD. No normalisation is applied.
func Phone(phone string) error {
	if phone == "" {
		return nil
	}
	for _, p := range phonePatterns {
		if p.MatchString(phone) {
			return nil
		}
	}
	return Invalid("phone", MsgInvalidPhone)
}

// UniqueEmail fails with a conflict when checker already holds email. The
// store's unique constraint remains the authoritative guard; this check only
// produces the friendly error early. Lookup failures are returned unchanged.
func UniqueEmail(checker EmailChecker, email string) error {
	if strings.TrimSpace(email) == "" {
		return Invalid("email", MsgEmailRequired)
	}
	exists, err := checker.CustomerEmailExists(email)
	if err != nil {
		return err
	}
	if exists {
		return Conflict("email", MsgEmailExists)
	}
	return nil
}

// Required rejects blank values for field, reporting label in the message.
func Required(field, label, value string) error {
	if strings.TrimSpace(value) == "" {
		return Invalidf(field, "%s is required.", label)
	}
	return nil
}

// Price limits: at most MaxPriceDigits digits in total, of which
// money.Scale are fractional.
const (
	MaxPriceDigits = 12
	maxPriceText   = 32
)

var maxPrice = decimal.New(1, MaxPriceDigits-money.Scale)

// Price parses raw into an exact decimal and requires it to be positive and
// to fit MaxPriceDigits digits with at most money.Scale decimal places.
// The exponent is bounded before any arithmetic on the value.
func Price(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, Invalid("price", MsgPriceRequired)
	}
	if len(raw) > maxPriceText {
		return decimal.Decimal{}, Invalid("price", MsgPriceInvalid)
	}
	price, err := money.Parse(raw)
	if err != nil {
		return decimal.Decimal{}, Invalid("price", MsgPriceInvalid)
	}
	if exp := price.Exponent(); exp > MaxPriceDigits || exp < -(MaxPriceDigits+maxPriceText) {
		return decimal.Decimal{}, Invalid("price", MsgPriceInvalid)
	}
	if price.Abs().GreaterThanOrEqual(maxPrice) || !price.Equal(price.Truncate(money.Scale)) {
		return decimal.Decimal{}, Invalid("price", MsgPriceInvalid)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, Invalid("price", MsgPriceNotPositive)
	}
	return price, nil
}

// Stock defaults a missing stock to zero and rejects negative values.
func Stock(stock *int) (int, error) {
	if stock == nil {
		return 0, nil
	}
	if *stock < 0 {
		return 0, Invalid("stock", MsgStockNegative)
	}
	return *stock, nil
}

// ProductIDs rejects an empty list and a list that repeats an id. Whether the
// ids resolve is checked against the store by the caller.
func ProductIDs(ids []string) error {
	if len(ids) == 0 {
		return Invalid("productIds", MsgNoProducts)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return Reference("productIds", MsgInvalidProductID)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != len(ids) {
		return Invalid("productIds", MsgInvalidProductID)
	}
	return nil
}
