package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Limits applied to request payloads.
const (
	MaxSlugLength        = 200
	MaxEmailLength       = 255
	MaxContactIDLength   = 50
	MaxStringLength      = 1000
	MaxPayloadProperties = 50
	MaxPayloadSizeBytes  = 10000
	MaxQuizAnswers       = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// refiner is implemented by schemas with cross-field rules.
type refiner interface {
	refine() []string
}

// CheckPayloadSize reports whether raw fits in max bytes (MaxPayloadSizeBytes when max <= 0).
func CheckPayloadSize(raw []byte, max int) bool {
	if max <= 0 {
		max = MaxPayloadSizeBytes
	}
	return len(raw) <= max
}

// Decode parses raw JSON into v and validates it. what names the payload in messages.
func Decode(raw []byte, v any, what string) *Error {
	if !CheckPayloadSize(raw, MaxPayloadSizeBytes) {
		return NewError(PayloadTooLarge, fmt.Sprintf("Request payload exceeds maximum size of %dKB", MaxPayloadSizeBytes/1000))
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			field := te.Field
			if field == "" {
				field = "root"
			}
			return NewError(SchemaValidationFailed, "Invalid "+what,
				fmt.Sprintf("%s: Expected %s, received %s", field, kindName(te.Type), te.Value))
		}
		return NewError(InvalidJSON, "Request body is not valid JSON")
	}
	return Validate(v, what)
}

// Validate runs field rules and cross-field refinements, collecting every problem.
func Validate(v any, what string) *Error {
	var details []string
	if err := validate.Struct(v); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return NewError(SchemaValidationFailed, "Invalid "+what, "root: "+err.Error())
		}
		for _, fe := range ves {
			details = append(details, fieldPath(fe)+": "+message(fe))
		}
	}
	if r, ok := v.(refiner); ok {
		details = append(details, r.refine()...)
	}
	if len(details) == 0 {
		return nil
	}
	return NewError(SchemaValidationFailed, "Invalid "+what, details...)
}

// fieldPath drops the struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "oneof":
		opts := strings.Fields(fe.Param())
		return fmt.Sprintf("Invalid enum value. Expected '%s', received '%v'", strings.Join(opts, "' | '"), fe.Value())
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		switch kind {
		case reflect.String:
			return fmt.Sprintf("String must contain %s %s character(s)", bound, fe.Param())
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("Array must contain %s %s element(s)", bound, fe.Param())
		case reflect.Map:
			return fmt.Sprintf("Object must contain %s %s propert(ies)", bound, fe.Param())
		}
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

func kindName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Bool:
		return "boolean"
	case reflect.Ptr:
		return kindName(t.Elem())
	default:
		if t.Kind() >= reflect.Int && t.Kind() <= reflect.Float64 {
			return "number"
		}
		return t.String()
	}
}
