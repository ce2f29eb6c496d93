package models

import (
	"strings"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/utils"
	"github.com/shopspring/decimal"
)

// validateInput runs struct-tag rules and reports the first failing field.
func validateInput(input any) error {
	fieldErrs, err := utils.ValidateStruct(input)
	if err != nil {
		return err
	}
	if len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field, Reason: fe.Reason()}
	}
	return nil
}

func requireNonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return newValidationError(field, "must not be negative")
	}
	return nil
}

// Column shapes of the decimal fields.
const (
	moneyPrecision = 20
	moneyScale     = 4
	daysPrecision  = 10
	daysScale      = 2
)

// fitsColumn reports whether v, rounded to scale, fits a decimal(precision, scale) column.
func fitsColumn(v decimal.Decimal, precision int32, scale int32) bool {
	return v.Round(scale).Abs().Cmp(decimal.New(1, precision-scale)) < 0
}

func requireFits(field string, v decimal.Decimal, precision int32, scale int32) error {
	if !fitsColumn(v, precision, scale) {
		return newValidationError(field, "must be less than 10^%d", precision-scale)
	}
	return nil
}

func requireMoney(field string, v decimal.Decimal) error {
	if err := requireNonNegative(field, v); err != nil {
		return err
	}
	return requireFits(field, v, moneyPrecision, moneyScale)
}

func requireMoneyPtr(field string, v *decimal.Decimal) error {
	if v == nil {
		return nil
	}
	return requireMoney(field, *v)
}

// normalizePhone returns "" for blank input and the E.164 form otherwise.
func normalizePhone(field string, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	formatted, err := utils.ValidatePhoneNumber(phone, config.DefaultPhoneRegion())
	if err != nil {
		return "", newValidationError(field, "%v", err)
	}
	return formatted, nil
}
