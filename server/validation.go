package server

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// modelIDPattern matches model identifiers like "gpt-4o-transcribe" or
// "local-whisper-base".
var modelIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,63}$`)

var registerOnce sync.Once

// registerValidators installs custom binding validators on Gin's validator
// engine. Safe to call from every route registration.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("modelid", func(fl validator.FieldLevel) bool {
			return modelIDPattern.MatchString(fl.Field().String())
		})
	})
}
