// Package interaction writes one JSON audit record per gateway call.
package interaction

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"
)

// Event types written by the services.
const (
	TypeAPICall  = "api.call"
	TypeAPIError = "api.error"
	TypeWriteErr = "logger.write_error"
)

// maxRawEvent caps the raw event dump in fallback records.
const maxRawEvent = 5000

// Event is one audited interaction. Request, Response and Error may hold any
// value; values that do not marshal are converted to a best-effort form.
type Event struct {
	Type           string
	API            string
	ConversationID string
	Model          string
	Request        any
	Response       any
	Error          any
	Latency        time.Duration
	At             time.Time
}

// Recorder records interaction events. Record never fails; it returns the
// location the event was (or was meant to be) written to.
type Recorder interface {
	Record(ctx context.Context, ev Event) string
}

// FileLog writes each event to its own file in dir.
type FileLog struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileLog creates a FileLog writing to dir.
func NewFileLog(dir string, logger *slog.Logger) (*FileLog, error) {
	if dir == "" {
		dir = "logs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("interaction: create log directory: %w", err)
	}
	return &FileLog{dir: dir, logger: logger, now: time.Now}, nil
}

// Record writes ev and returns the file path.
func (l *FileLog) Record(_ context.Context, ev Event) string {
	if ev.At.IsZero() {
		ev.At = l.now()
	}
	at := ev.At.UTC()
	path := filepath.Join(l.dir, fileName(at))

	data, err := json.MarshalIndent(toRecord(ev, at), "", "  ")
	if err == nil {
		err = writeOnce(path, data)
	}
	if err == nil {
		return path
	}

	l.logger.Warn("interaction log write failed, writing fallback record",
		slog.String("path", path),
		slog.String("type", ev.Type),
		slog.String("error", err.Error()),
	)

	fallback := fallbackRecord(ev, at, err)
	data, ferr := json.MarshalIndent(fallback, "", "  ")
	if ferr == nil {
		ferr = writeOnce(path, data)
	}
	if ferr != nil {
		l.logger.Error("interaction log fallback write failed",
			slog.String("path", path),
			slog.String("error", ferr.Error()),
		)
	}
	return path
}

// fallbackRecord replaces a record that could not be written.
func fallbackRecord(ev Event, at time.Time, err error) map[string]any {
	return map[string]any{
		"type": TypeWriteErr,
		"at":   at.Format(time.RFC3339Nano),
		"error": map[string]string{
			"type":    fmt.Sprintf("%T", err),
			"message": err.Error(),
		},
		"raw_event_str": truncate(fmt.Sprintf("%+v", ev), maxRawEvent),
	}
}

func toRecord(ev Event, at time.Time) map[string]any {
	rec := map[string]any{
		"type":       ev.Type,
		"at":         at.Format(time.RFC3339Nano),
		"latency_ms": ev.Latency.Milliseconds(),
	}
	if ev.API != "" {
		rec["api"] = ev.API
	}
	if ev.ConversationID != "" {
		rec["conversation_id"] = ev.ConversationID
	}
	if ev.Model != "" {
		rec["model"] = ev.Model
	}
	if ev.Request != nil {
		rec["request"] = jsonable(ev.Request)
	}
	if ev.Response != nil {
		rec["response"] = jsonable(ev.Response)
	}
	if ev.Error != nil {
		rec["error"] = jsonable(ev.Error)
	}
	return rec
}

// jsonable converts v into something encoding/json can write.
func jsonable(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64:
		return x
	case float64:
		return jsonFloat(x, 64)
	case float32:
		return jsonFloat(float64(x), 32)
	case json.RawMessage:
		if json.Valid(x) {
			return x
		}
		return string(x)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case error:
		return map[string]string{
			"error_type": fmt.Sprintf("%T", x),
			"message":    x.Error(),
		}
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = jsonable(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = jsonable(val)
		}
		return out
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return json.RawMessage(data)
}

// jsonFloat keeps finite floats and writes NaN and Inf as strings.
func jsonFloat(f float64, bits int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	if bits == 32 {
		return float32(f)
	}
	return f
}

// fileName is a UTC nanosecond timestamp plus a random suffix.
func fileName(at time.Time) string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return at.Format("2006-01-02T15-04-05.000000000Z") + "-" + hex.EncodeToString(suffix[:]) + ".json"
}

func writeOnce(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - path is built from the log dir
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Discard is a Recorder that drops every event.
type Discard struct{}

// Record implements Recorder.
func (Discard) Record(context.Context, Event) string { return "" }

var (
	_ Recorder = (*FileLog)(nil)
	_ Recorder = Discard{}
)
