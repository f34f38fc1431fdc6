// Package component defines the core interfaces for lifecycle-managed
// infrastructure services.
//
// Components represent services that require startup, shutdown, and health
// monitoring. The daemon registers its store, cache, server and janitor as
// components so they start in dependency order and stop in reverse.
package component
