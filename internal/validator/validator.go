// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tradedesk/internal/models"
)

var tickerRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("order_action", validateOrderAction)
		_ = v.RegisterValidation("order_type", validateOrderType)
		_ = v.RegisterValidation("order_status", validateOrderStatus)
		_ = v.RegisterValidation("security_kind", validateSecurityKind)
		_ = v.RegisterValidation("ticker", validateTicker)
	}
}

func validateOrderAction(fl validator.FieldLevel) bool {
	_, err := models.ParseOrderAction(fl.Field().String())
	return err == nil
}

func validateOrderType(fl validator.FieldLevel) bool {
	_, err := models.ParseOrderType(fl.Field().String())
	return err == nil
}

func validateOrderStatus(fl validator.FieldLevel) bool {
	_, err := models.ParseOrderStatus(fl.Field().String())
	return err == nil
}

func validateSecurityKind(fl validator.FieldLevel) bool {
	return models.SecurityKind(fl.Field().String()).Valid()
}

func validateTicker(fl validator.FieldLevel) bool {
	return tickerRegex.MatchString(fl.Field().String())
}
