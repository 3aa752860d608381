package adapthttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// fieldError describes one rejected request field.
type fieldError struct {
	Location string `json:"location"`
	Message  string `json:"message"`
	Type     string `json:"type"`
}

// requestError is a request that failed shape or rule checks.
type requestError struct {
	fields []fieldError
}

func (e *requestError) Error() string {
	if len(e.fields) == 0 {
		return "validation error"
	}
	return e.fields[0].Location + ": " + e.fields[0].Message
}

func newRequestError(fields ...fieldError) *requestError {
	return &requestError{fields: fields}
}

func writeValidationError(w http.ResponseWriter, fields ...fieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": "Validation error",
		"errors": fields,
	})
}

// decodeJSON reads the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return newRequestError(fieldError{Location: "body", Message: "field required", Type: "value_error.missing"})
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return newRequestError(fieldError{Location: "body", Message: "value is not a valid object", Type: "type_error.dict"})
		}
		return newRequestError(fieldError{
			Location: "body -> " + typeErr.Field,
			Message:  "value is not a valid " + typeErr.Type.String(),
			Type:     "type_error." + typeErr.Type.Kind().String(),
		})
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return newRequestError(fieldError{Location: "body", Message: "invalid JSON", Type: "value_error.jsondecode"})
	}
	return newRequestError(fieldError{Location: "body", Message: err.Error(), Type: "value_error"})
}

// parseDecimal reads a JSON number or numeric string. An absent or null
// value yields nil.
func parseDecimal(raw json.RawMessage, field string) (*decimal.Decimal, *fieldError) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return nil, &fieldError{Location: "body -> " + field, Message: "value is not a valid decimal", Type: "type_error.decimal"}
	}
	return &d, nil
}

// fieldErrors flattens ozzo validation errors in field order.
func fieldErrors(err error) []fieldError {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return []fieldError{{Location: "body", Message: err.Error(), Type: "value_error"}}
	}

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]fieldError, 0, len(keys))
	for _, k := range keys {
		e := errs[k]
		code := "value_error"
		var eo validation.Error
		if errors.As(e, &eo) {
			code = eo.Code()
		}
		out = append(out, fieldError{Location: "body -> " + k, Message: e.Error(), Type: code})
	}
	return out
}

var positiveDecimal = validation.By(func(v any) error {
	d, _ := v.(*decimal.Decimal)
	if d == nil || d.IsPositive() {
		return nil
	}
	return validation.NewError("validation_greater_than", "must be greater than 0")
})

// productBody is the payload of product create and update requests.
type productBody struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Price       json.RawMessage `json:"price"`
	Stock       *int            `json:"stock"`

	price *decimal.Decimal
}

// parse decodes the request and checks it. Every field is required when
// create is set.
func (b *productBody) parse(r *http.Request, create bool) error {
	if err := decodeJSON(r, b); err != nil {
		return err
	}
	price, fe := parseDecimal(b.Price, "price")
	if fe != nil {
		return newRequestError(*fe)
	}
	b.price = price

	nameRules := []validation.Rule{validation.NilOrNotEmpty, validation.Length(1, 100)}
	priceRules := []validation.Rule{positiveDecimal}
	stockRules := []validation.Rule{validation.Min(0)}
	if create {
		nameRules = []validation.Rule{validation.Required, validation.Length(1, 100)}
		priceRules = append([]validation.Rule{validation.NotNil}, priceRules...)
		stockRules = append([]validation.Rule{validation.NotNil}, stockRules...)
	}

	err := validation.Errors{
		"name":        validation.Validate(b.Name, nameRules...),
		"description": validation.Validate(b.Description, validation.Length(0, 1000)),
		"price":       validation.Validate(b.price, priceRules...),
		"stock":       validation.Validate(b.Stock, stockRules...),
	}.Filter()
	if err != nil {
		return newRequestError(fieldErrors(err)...)
	}
	return nil
}

// userBody is the payload of the registration request.
type userBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *userBody) parse(r *http.Request) error {
	if err := decodeJSON(r, b); err != nil {
		return err
	}
	err := validation.Errors{
		"username": validation.Validate(b.Username, validation.Required, validation.Length(3, 50)),
		"email":    validation.Validate(b.Email, validation.Required, is.EmailFormat),
		"password": validation.Validate(b.Password, validation.Required, validation.Length(6, 0)),
	}.Filter()
	if err != nil {
		return newRequestError(fieldErrors(err)...)
	}
	return nil
}
