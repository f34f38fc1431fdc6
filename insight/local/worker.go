package local

import (
	"context"

	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/logger"
)

// Message types exchanged with the transcription worker.
const (
	MsgTranscribe = "transcribe"
	MsgStatus     = "status"
	MsgResult     = "result"
	MsgError      = "error"
)

// Processing phases reported on status messages.
const (
	PhaseLoadingModel = "loading model"
	PhaseTranscribing = "transcribing"
)

// workRequest asks the worker to transcribe one file.
type workRequest struct {
	// ID correlates every message emitted for this request.
	ID        string
	AudioPath string
	Model     *ModelHandle
	// ctx carries the submitter's cancellation.
	ctx context.Context
	// out receives status messages and exactly one terminal message.
	out chan WorkerMessage
}

// WorkerMessage is one message from the worker. Type is status, result or
// error; result and error are terminal and at most one is sent per id.
type WorkerMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	// Status is a human-readable phase for status messages.
	Status string `json:"status,omitempty"`
	// Progress is a monotonic percentage in [0,100] on status messages.
	Progress float64 `json:"progress,omitempty"`
	// Text is the transcript on result messages.
	Text string `json:"text,omitempty"`
	// Err is set on error messages.
	Err error `json:"-"`
}

// transcribeFunc runs the actual speech-to-text engine. Swappable for tests.
type transcribeFunc func(ctx context.Context, model *ModelHandle, audioPath string, onProgress func(pct float64)) (string, error)

// Worker serializes on-device transcriptions on one goroutine. The local
// engine holds the whole model in memory, so running requests one at a time
// bounds peak usage.
type Worker struct {
	requests   chan workRequest
	transcribe transcribeFunc
	log        *logger.Logger
}

// NewWorker creates a worker and starts its goroutine. Close stops it.
func NewWorker() *Worker {
	w := &Worker{
		requests:   make(chan workRequest),
		transcribe: runWhisper,
		log:        logger.Get("local"),
	}
	go w.loop()
	return w
}

// Close stops the worker goroutine. Pending Submit calls return an error.
func (w *Worker) Close() {
	close(w.requests)
}

func (w *Worker) loop() {
	for req := range w.requests {
		w.handle(req)
	}
}

func (w *Worker) handle(req workRequest) {
	defer close(req.out)

	send := func(m WorkerMessage) {
		m.ID = req.ID
		select {
		case req.out <- m:
		case <-req.ctx.Done():
		}
	}

	if err := req.ctx.Err(); err != nil {
		send(WorkerMessage{Type: MsgError, Err: err})
		return
	}

	send(WorkerMessage{Type: MsgStatus, Status: PhaseTranscribing, Progress: 0})

	last := 0.0
	text, err := w.transcribe(req.ctx, req.Model, req.AudioPath, func(pct float64) {
		if pct <= last || pct > 100 {
			return
		}
		last = pct
		send(WorkerMessage{Type: MsgStatus, Status: PhaseTranscribing, Progress: pct})
	})
	if err != nil {
		w.log.Warn("transcription failed", logger.Fields(
			logger.FieldJobID, req.ID,
			logger.FieldError, err.Error(),
		))
		send(WorkerMessage{Type: MsgError, Err: err})
		return
	}
	send(WorkerMessage{Type: MsgResult, Text: text})
}

// Submit queues a transcription and blocks until its terminal message.
// Status messages are forwarded to onStatus as they arrive, phase name and
// progress both.
func (w *Worker) Submit(ctx context.Context, id string, model *ModelHandle, audioPath string, onStatus func(status string, pct float64)) (string, error) {
	req := workRequest{
		ID:        id,
		AudioPath: audioPath,
		Model:     model,
		ctx:       ctx,
		out:       make(chan WorkerMessage, 8),
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg, ok := <-req.out:
			if !ok {
				return "", errors.Internal(nil).WithDetail("reason", "worker closed before terminal message")
			}
			switch msg.Type {
			case MsgStatus:
				if onStatus != nil {
					onStatus(msg.Status, msg.Progress)
				}
			case MsgResult:
				return msg.Text, nil
			case MsgError:
				return "", msg.Err
			}
		}
	}
}
