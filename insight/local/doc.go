// Package local implements the on-device insight provider. A process-wide
// model cache downloads the speech model once under single-flight, a
// dedicated worker goroutine runs transcriptions with correlated
// request/response messages, and insights are extracted heuristically from
// the transcript without any network calls.
package local
