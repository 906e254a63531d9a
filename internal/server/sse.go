package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/papapumpkin/xployt/internal/pipeline"
	"github.com/papapumpkin/xployt/internal/telemetry"
)

// previewChars caps stage output echoed in stage_done events.
const previewChars = 300

// SSE event names.
const (
	sseStart      = "start"
	sseStageStart = "stage_start"
	sseStageDone  = "stage_done"
	ssePairDone   = "pair_done"
	sseComplete   = "complete"
	sseError      = "error"
)

type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseWriter) send(event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		b = []byte(`{}`)
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b)
	s.f.Flush()
}

func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRun(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, runResponse{Message: "streaming unsupported"})
		return
	}
	if !s.acquire(req.ID) {
		writeJSON(w, http.StatusConflict, runResponse{Message: errBusy.Error()})
		return
	}
	defer s.release(req.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	out := sseWriter{w: w, f: flusher}

	terminal := false
	res, err := s.run(r.Context(), req.ID, req.Path, 0, func(ev pipeline.Event) {
		name, data := sseEvent(ev)
		if name == "" {
			return
		}
		if name == sseComplete || name == sseError {
			terminal = true
		}
		out.send(name, data)
	})
	if terminal {
		return
	}
	if err != nil {
		out.send(sseError, failure(res, err))
		return
	}
	out.send(sseComplete, success(res))
}

// sseEvent maps a run event to its SSE name and payload.
func sseEvent(ev pipeline.Event) (string, any) {
	switch ev.Kind {
	case telemetry.KindRunStart:
		return sseStart, map[string]string{"run_id": ev.RunID}
	case telemetry.KindStageStart:
		return sseStageStart, map[string]string{"stage": ev.Stage}
	case telemetry.KindStageDone:
		return sseStageDone, map[string]any{
			"stage":       ev.Stage,
			"preview":     preview(ev.Output),
			"duration_ms": ev.Duration.Milliseconds(),
		}
	case telemetry.KindPairDone:
		return ssePairDone, ev.Pair
	case telemetry.KindRunDone:
		return sseComplete, success(ev.Result)
	case telemetry.KindRunError:
		if ev.Err == nil {
			return sseError, runResponse{Message: "run failed"}
		}
		return sseError, failure(ev.Result, ev.Err)
	}
	return "", nil
}

// preview truncates s to previewChars runes.
func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewChars {
		return s
	}
	return string(r[:previewChars])
}
