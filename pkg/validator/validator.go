// Package validator wraps go-playground/validator with JSON field names and a
// flattened error type the API can render.
package validator

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
})

// ValidationError is one failed rule.
type ValidationError struct {
	Field string `json:"field"`
	// Path locates the field from the request root, e.g. "recipients[1]".
	Path  string `json:"path"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

func (e ValidationError) String() string {
	name := e.Path
	if name == "" {
		name = e.Field
	}
	if e.Param == "" {
		return name + " failed on " + e.Tag
	}
	return name + " failed on " + e.Tag + "=" + e.Param
}

// ValidationErrors is every rule a value failed.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, failure := range v {
		parts[i] = failure.String()
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct checks s against its validate tags. Rule failures come back
// as ValidationErrors; anything else, such as a non-struct argument, is
// returned unchanged.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failures := make(ValidationErrors, len(fieldErrs))
	for i, fe := range fieldErrs {
		failures[i] = ValidationError{
			Field: fe.Field(),
			Path:  trimRoot(fe.Namespace()),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		}
	}
	return failures
}

// RegisterValidation adds a custom rule under tag.
func RegisterValidation(tag string, fn validator.Func) error {
	return engine().RegisterValidation(tag, fn)
}

// RegisterOneOf adds a rule accepting only the given values, compared
// case-sensitively after trimming whitespace.
func RegisterOneOf(tag string, values ...string) error {
	allowed := slices.Clone(values)
	slices.Sort(allowed)

	return RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, found := slices.BinarySearch(allowed, strings.TrimSpace(fl.Field().String()))
		return found
	})
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// trimRoot drops the struct type name validator puts in front of every
// namespace.
func trimRoot(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
