package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kilodelta8/StarTrack/internal/metrics"
)

// writeGrace is how long a single SSE write may take before the
// connection is considered dead.
const writeGrace = 30 * time.Second

// eventWriter frames outgoing SSE traffic for one connection.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger
}

// push marshals v and emits it as one "data:" event.
func (ew *eventWriter) push(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	ew.extendDeadline()

	n, err := fmt.Fprintf(ew.w, "data: %s\n\n", payload)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	ew.flusher.Flush()

	metrics.IncStreamMessages()
	metrics.AddStreamBytes(n)
	return nil
}

// comment emits an SSE comment line (":\n\n"), which proxies and
// browsers ignore but which keeps idle connections open.
func (ew *eventWriter) comment() error {
	ew.extendDeadline()

	n, err := fmt.Fprint(ew.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	ew.flusher.Flush()

	metrics.AddStreamBytes(n)
	return nil
}

// extendDeadline pushes the write deadline forward so the server's
// WriteTimeout does not kill a healthy long-lived connection.
func (ew *eventWriter) extendDeadline() {
	if err := ew.rc.SetWriteDeadline(time.Now().Add(writeGrace)); err != nil {
		ew.logger.Debug("could not set write deadline", "error", err)
	}
}
