package api

import (
	"fmt"
	"regexp"
	"strings"

	"keyledger/internal/core"
)

var (
	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s-]{10,}$`)
)

// ValidationError reports a request rejected before the store is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func validateProductKey(k core.ProductKey) error {
	if err := required("key", k.Key); err != nil {
		return err
	}
	if k.Status != "" && !k.Status.Valid() {
		return ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", k.Status)}
	}
	return nil
}

func validateCategory(c core.Category) error {
	if err := required("name", c.Name); err != nil {
		return err
	}
	return required("color", c.Color)
}

func validateCustomer(c core.Customer) error {
	if err := required("name", c.Name); err != nil {
		return err
	}
	if err := required("email", c.Email); err != nil {
		return err
	}
	if !emailPattern.MatchString(c.Email) {
		return ValidationError{Field: "email", Message: "is not a valid email address"}
	}
	if c.Phone != nil && strings.TrimSpace(*c.Phone) != "" && !phonePattern.MatchString(*c.Phone) {
		return ValidationError{Field: "phone", Message: "is not a valid phone number"}
	}
	return nil
}

func validateAllocation(req core.AllocationRequest) error {
	if err := required("productKeyId", req.ProductKeyID); err != nil {
		return err
	}
	return required("customerId", req.CustomerID)
}

func validateInventoryItem(item core.InventoryItem) error {
	if err := required("name", item.Name); err != nil {
		return err
	}
	if err := required("sku", item.SKU); err != nil {
		return err
	}
	if item.StockLevel < 0 || item.ReorderPoint < 0 {
		return ValidationError{Field: "stockLevel", Message: "must not be negative"}
	}
	if item.Price.IsNegative() {
		return ValidationError{Field: "price", Message: "must not be negative"}
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}
	return nil
}

func duplicateKey(existing []core.ProductKey, key string) error {
	for _, k := range existing {
		if strings.EqualFold(strings.TrimSpace(k.Key), strings.TrimSpace(key)) {
			return ValidationError{Field: "key", Message: "already exists"}
		}
	}
	return nil
}

func duplicateEmail(existing []core.Customer, email string) error {
	for _, c := range existing {
		if strings.EqualFold(strings.TrimSpace(c.Email), strings.TrimSpace(email)) {
			return ValidationError{Field: "email", Message: "already exists"}
		}
	}
	return nil
}

func duplicateCategoryName(existing []core.Category, name string) error {
	for _, c := range existing {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return ValidationError{Field: "name", Message: "a category with this name already exists"}
		}
	}
	return nil
}
