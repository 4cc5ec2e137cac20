package validator

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
)

// maxAmountScale is the number of fractional digits a payment amount may carry.
const maxAmountScale = 2

func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	for tag, fn := range map[string]validator.Func{
		"seat":   validateSeat,
		"amount": validateAmount,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %q validation: %v", tag, err))
		}
	}

	return v
}

func validateSeat(fl validator.FieldLevel) bool {
	_, err := domain.ParseSeatID(fl.Field().String())
	return err == nil
}

func validateAmount(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}

	return amount.IsPositive() && amount.Exponent() >= -maxAmountScale
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		if isCollection(err.Kind()) {
			return fmt.Sprintf("must contain at least %s item(s)", err.Param())
		}
		return fmt.Sprintf("must be at least %s characters long", err.Param())
	case "max":
		if isCollection(err.Kind()) {
			return fmt.Sprintf("must contain at most %s item(s)", err.Param())
		}
		return fmt.Sprintf("must be at most %s characters long", err.Param())
	case "seat":
		return "must be a seat label such as A1"
	case "amount":
		return fmt.Sprintf("must be a positive amount with at most %d decimal places", maxAmountScale)
	default:
		return "is invalid"
	}
}

func isCollection(kind reflect.Kind) bool {
	return kind == reflect.Slice || kind == reflect.Array || kind == reflect.Map
}
