package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
)

// MaxBodyBytes caps JSON request bodies. The largest legitimate payload is a
// 20-item batch submission.
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	// notblank rejects strings that are only whitespace.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return true
		}
		return strings.TrimSpace(field.String()) != ""
	})
	return v
}

// DecodeJSONBody decodes exactly one JSON object into dest and validates it.
// Unknown fields, trailing data and oversized bodies are validation errors.
func DecodeJSONBody(r *http.Request, dest any) error {
	return decodeBody(r, dest, false)
}

// DecodeOptionalJSONBody behaves like DecodeJSONBody but leaves dest at its
// zero value when the body is empty.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	return decodeBody(r, dest, true)
}

func decodeBody(r *http.Request, dest any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is empty")
	}
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is empty")
	case errors.As(err, &tooLarge):
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &syntaxErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed JSON").
			WithDetails(map[string]any{"offset": syntaxErr.Offset})
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{typeErr.Field: "must be a " + typeErr.Type.String()})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{field: "is not a recognised field"})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
		WithDetails(map[string]any{"error": err.Error()})
}

func validationError(err error) *pkgerrors.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the struct name so batch errors read items[2].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok && strings.Contains(rest, ".") {
		return rest
	}
	return fe.Field()
}

var fixedMessages = map[string]string{
	"required": "is required",
	"notblank": "must not be blank",
	"uuid":     "must be a valid uuid",
	"uuid4":    "must be a valid uuid",
	"url":      "must be a valid url",
}

var paramMessages = map[string]string{
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"gte":      "must be greater than or equal to %s",
	"oneof":    "must be one of: %s",
	"datetime": "must be a date formatted as %s",
}

func describe(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.Tag()]; ok {
		return msg
	}
	if format, ok := paramMessages[fe.Tag()]; ok {
		return fmt.Sprintf(format, fe.Param())
	}
	return "is invalid"
}
