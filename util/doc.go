// Package util provides small shared helpers: size parsing, secret masking
// and string sanitization.
package util
