package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed struct rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// StructError collects every failed rule of one struct.
type StructError struct {
	Fields []FieldError
}

func (e *StructError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var (
	structValidator *validator.Validate
	structOnce      sync.Once
)

func instance() *validator.Validate {
	structOnce.Do(func() {
		v := validator.New()
		registerRules(v)

		// Report JSON names so messages match the wire payload.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Struct validates s against its `validate` tags. Besides the built-in
// go-playground rules it understands cp_amount, cp_currency, btc_address,
// eth_address, crypto_address and cp_email.
func Struct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &StructError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "cp_amount":
		return fmt.Sprintf("field '%s' must be a positive decimal amount", fe.Field())
	case "cp_currency":
		return fmt.Sprintf("field '%s' must be a currency id", fe.Field())
	case "btc_address":
		return fmt.Sprintf("field '%s' must be a Bitcoin address", fe.Field())
	case "eth_address":
		return fmt.Sprintf("field '%s' must be an Ethereum address", fe.Field())
	case "eth_checksum":
		return fmt.Sprintf("field '%s' must be an EIP-55 checksummed Ethereum address", fe.Field())
	case "crypto_address":
		return fmt.Sprintf("field '%s' must be a wallet address", fe.Field())
	case "cp_email":
		return fmt.Sprintf("field '%s' must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", fe.Field(), fe.Tag())
	}
}

func registerRules(v *validator.Validate) {
	v.RegisterValidation("cp_amount", func(fl validator.FieldLevel) bool {
		return IsValidAmount(fl.Field().String())
	})

	v.RegisterValidation("cp_currency", func(fl validator.FieldLevel) bool {
		return IsValidCurrencyID(fl.Field().String())
	})

	v.RegisterValidation("btc_address", func(fl validator.FieldLevel) bool {
		return IsValidBitcoinAddress(fl.Field().String())
	})

	v.RegisterValidation("eth_address", func(fl validator.FieldLevel) bool {
		return IsValidEthereumAddress(fl.Field().String())
	})

	// Mixed-case input must carry a correct EIP-55 checksum.
	v.RegisterValidation("eth_checksum", func(fl validator.FieldLevel) bool {
		return ValidateEthereumAddress(fl.Field().String()).Valid
	})

	// Wallet addresses span many chains; only reject strings that look like
	// an Ethereum address but are not 40 hex digits. Checksums are not
	// enforced here since the provider's casing is not guaranteed.
	v.RegisterValidation("crypto_address", func(fl validator.FieldLevel) bool {
		addr := strings.TrimSpace(fl.Field().String())
		if addr == "" || strings.ContainsAny(addr, " \t\r\n") {
			return false
		}
		if strings.HasPrefix(addr, "0x") && len(addr) == 42 {
			return IsValidEthereumAddress(addr)
		}
		return true
	})

	v.RegisterValidation("cp_email", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	})
}
