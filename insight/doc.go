// Package insight defines the provider interface and common types for
// turning meeting audio into transcripts and structured insights. Concrete
// backends live in subpackages and register against a Router that maps model
// identifiers to providers.
package insight
