package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/Michael--/modular-runtime/errors"
)

var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	return v
})

// fieldName reports a struct field the way it is spelled in config files.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"yaml", "json"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return snake(f.Name)
}

// Struct checks s against its validate tags.
func Struct(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !stderrors.As(err, &fes) {
		return errors.Validation(err.Error())
	}

	vs := make([]Violation, len(fes))
	for i, fe := range fes {
		vs[i] = Violation{Field: fe.Field(), Message: describe(fe)}
	}
	return failure(vs)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "hostname_port":
		return "must be host:port"
	case "url", "http_url":
		return "must be a valid URL"
	default:
		return "fails " + fe.Tag()
	}
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
