// Package job orchestrates meeting recordings through the processing
// pipeline: upload and compression, credit checks, the atomic claim of a job
// by one submission, the provider call, and terminal bookkeeping. The status
// state machine is pending → processing → {completed, failed}, processing →
// cancelled, completed → processing on reprocess; every transition into and
// out of processing is a conditional store update so concurrent submissions,
// cancels and late provider results cannot corrupt a job.
package job
