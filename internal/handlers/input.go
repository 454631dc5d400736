package handlers

import (
	"errors"

	"github.com/go-playground/validator"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// ErrIDRequired is returned when an operation that targets a record receives
// no id. The message is caller-visible.
var ErrIDRequired = errors.New("id is required")

var validate = validator.New()

// DecodeInput maps the untyped data payload onto a typed input struct and
// validates it. Decoding is weakly typed so JSON numbers and numeric strings
// both work for integer fields.
func DecodeInput(data map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return err
	}
	return validate.Struct(out)
}

// RequireID extracts the target record id from the payload.
func RequireID(data map[string]any) (int, error) {
	return RequireIntField(data, "id")
}

// RequireIntField extracts a named integer field, tolerating the numeric
// representations JSON decoding produces.
func RequireIntField(data map[string]any, field string) (int, error) {
	value, ok := data[field]
	if !ok || value == nil {
		if field == "id" {
			return 0, ErrIDRequired
		}
		return 0, errors.New(field + " is required")
	}
	id, err := cast.ToIntE(value)
	if err != nil {
		if field == "id" {
			return 0, ErrIDRequired
		}
		return 0, errors.New(field + " is required")
	}
	return id, nil
}
