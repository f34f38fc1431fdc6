// Package validation provides input validation utilities for request
// handlers and configuration.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection.
//
// # Struct Tag Validation
//
//	type submitCmd struct {
//	    Model string `validate:"required,min=2"`
//	}
//	err := validation.Validate(cmd)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("model", model)
//	err := v.Validate()
package validation
