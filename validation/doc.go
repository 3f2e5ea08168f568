// Package validation reports configuration and descriptor problems as a
// single *errors.AppError whose "fields" detail lists every violation.
//
// Structs are checked through go-playground/validator tags:
//
//	type Descriptor struct {
//	    ServiceName string      `yaml:"name" validate:"required"`
//	    Kind        ServiceKind `yaml:"kind" validate:"required,oneof=client server hybrid"`
//	}
//	err := validation.Struct(d)
//
// Config sections with cross-field rules use a Checker instead:
//
//	err := validation.New().
//	    Required("address", c.Address).
//	    HostPort("address", c.Address).
//	    Err()
package validation
