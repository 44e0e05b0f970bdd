// Package jobs is the asynchronous file pipeline: transform an uploaded
// temp file, push the durable copy to object storage, and publish the
// resulting URL back onto the owning content record. Delivery is
// at-least-once, so every handler is written to be idempotent: object keys
// are derived from the job id and the URL write-back sets the same columns
// to the same values on redelivery.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

// Job type names as stored in the queue.
const (
	TypeImage = "image"
	TypePDF   = "pdf"
)

// FilePayload describes one unit of file work.
type FilePayload struct {
	SourcePath string `json:"source_path"`
	ActorID    string `json:"actor_id"`
	ContentID  string `json:"content_id"`
}

// decodePayload unwraps a queue job's payload.
func decodePayload(job *taskqueue.Job) (FilePayload, error) {
	var p FilePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, apperr.TerminalJob(fmt.Sprintf("undecodable payload: %v", err))
	}
	if p.SourcePath == "" || p.ContentID == "" {
		return p, apperr.TerminalJob("payload missing source path or content id")
	}
	return p, nil
}

// removeTemp deletes the uploaded temp file. Called after success and
// after terminal failure; a file already gone is fine (redelivery).
func removeTemp(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// Handler executes one job type. Returning an error wrapped as
// TERMINAL_JOB stops retrying immediately.
type Handler interface {
	Handle(ctx context.Context, job *taskqueue.Job) (result interface{}, err error)
}
