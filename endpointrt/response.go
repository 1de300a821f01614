package endpointrt

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	jsonv2 "github.com/go-json-experiment/json"
)

// writeResponse encodes a handler's return value per §4.2 Return
// analysis: Empty writes a bare status with no body and no
// Content-Type, SSEStream/Stream take over the connection directly,
// a union picks its encoder from whichever variant field is set, and
// everything else is encoded as a single JSON document.
func writeResponse(w http.ResponseWriter, outVal reflect.Value, opts Options) {
	out := outVal.Interface()

	baseVal := outVal
	for baseVal.Kind() == reflect.Ptr {
		if baseVal.IsNil() {
			w.WriteHeader(statusOr(opts, out))
			return
		}
		baseVal = baseVal.Elem()
	}

	if baseVal.Type() == emptyType {
		w.WriteHeader(statusOr(opts, out))
		return
	}

	if sse, ok := baseVal.Interface().(SSEStream); ok {
		writeSSE(w, sse)
		return
	}

	if stream, ok := baseVal.Interface().(Stream); ok {
		writeStream(w, stream, statusOr(opts, out))
		return
	}

	if baseVal.Type().Implements(respUnion) {
		writeUnionVariant(w, baseVal, opts)
		return
	}

	encodeJSON(w, statusOr(opts, out), baseVal.Interface())
}

func statusOr(opts Options, _ any) int {
	if opts.StatusCode != 0 {
		return opts.StatusCode
	}
	return http.StatusOK
}

// writeUnionVariant finds the one non-nil variant field (A/B/C) of a
// response union and encodes it with the status opts.VariantStatus
// declares for its concrete type, falling back to opts.StatusCode
// (§3 Invariants: "status travels with the returned variant").
func writeUnionVariant(w http.ResponseWriter, v reflect.Value, opts Options) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		fv := v.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		payload := fv.Elem().Interface()
		status := opts.StatusCode
		if s, ok := opts.VariantStatus[fv.Type().Elem()]; ok {
			status = s
		}
		if status == 0 {
			status = http.StatusOK
		}
		encodeJSON(w, status, payload)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = jsonv2.MarshalWrite(w, v)
}

// writeSSE frames each Event per §6's wire format until the channel
// closes or the client disconnects, flushing after every record so
// the client sees events as they are produced.
func writeSSE(w http.ResponseWriter, s SSEStream) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	var notify <-chan bool
	if cn, ok := w.(http.CloseNotifier); ok { //nolint:staticcheck // SSE needs disconnect detection
		notify = cn.CloseNotify()
	}

	for {
		select {
		case ev, ok := <-s.Events:
			if !ok {
				return
			}
			writeSSEEvent(w, ev)
			if flusher != nil {
				flusher.Flush()
			}
		case <-notify:
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev Event) {
	var b strings.Builder
	if ev.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Name)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Retry != 0 {
		fmt.Fprintf(&b, "retry: %s\n", strconv.Itoa(ev.Retry))
	}
	if ev.Data != nil {
		data := sseData(ev.Data)
		for _, line := range strings.Split(data, "\n") {
			fmt.Fprintf(&b, "data: %s\n", line)
		}
	}
	b.WriteString("\n")
	_, _ = w.Write([]byte(b.String()))
}

func sseData(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := jsonv2.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func writeStream(w http.ResponseWriter, s Stream, status int) {
	h := w.Header()
	if s.ContentType != "" {
		h.Set("Content-Type", s.ContentType)
	}
	w.WriteHeader(status)
	if s.Write != nil {
		_ = s.Write(w)
	}
}
