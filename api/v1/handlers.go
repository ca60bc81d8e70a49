package v1

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tinoosan/debrix/internal/creds"
	"github.com/tinoosan/debrix/internal/data"
	"github.com/tinoosan/debrix/internal/metrics"
	"github.com/tinoosan/debrix/internal/service"
	"github.com/tinoosan/debrix/internal/tracker"
)

type DownloadHandler struct {
	l   *slog.Logger
	svc service.Download
	trk *tracker.Tracker
}

func NewDownloadHandler(l *slog.Logger, svc service.Download, trk *tracker.Tracker) *DownloadHandler {
	return &DownloadHandler{l: l, svc: svc, trk: trk}
}

type downloadBody struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Password string `json:"password,omitempty"`
}

type browseBody struct {
	URL      string `json:"url"`
	Password string `json:"password,omitempty"`
}

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Flush forwards to the wrapped writer so the relay's chunks leave the
// process as they arrive.
func (w *rwLogger) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the wrapped writer; the events endpoint upgrades the
// connection to a websocket.
func (w *rwLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

// Download resolves the link through a provider and relays the file bytes as
// the response body. Bytes already flushed before a stream failure cannot be
// retracted; the client sees a short body and must treat it as failed.
func (dh *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := dh.decode(w, r, &body); err != nil {
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		markErr(w, ErrURLRequired)
		http.Error(w, ErrURLRequired.Error(), http.StatusBadRequest)
		return
	}

	t, res, err := dh.svc.Resolve(r.Context(), body.URL, body.Filename, body.Password)
	if err != nil {
		markErr(w, err)
		http.Error(w, "resolve failed: "+err.Error(), resolveStatus(err))
		return
	}

	metrics.ActiveRelays.Inc()
	defer metrics.ActiveRelays.Dec()

	stream := dh.svc.Stream(r.Context(), res)
	defer func() { _ = stream.Close() }()

	quoted := strings.ReplaceAll(res.Filename, `"`, `\"`)
	w.Header().Set("Content-Disposition", `attachment; filename="`+quoted+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")

	pw := &progressWriter{w: w, svc: dh.svc, t: t}
	if f, ok := w.(http.Flusher); ok {
		pw.f = f
	}

	written, err := stream.WriteTo(pw)
	dh.svc.Finish(t, stream.BytesDelivered(), err)
	if err != nil {
		markErr(w, err)
		if written == 0 {
			http.Error(w, "download failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		dh.l.Error("stream aborted mid-transfer",
			"transfer", t.ID,
			"bytes", stream.BytesDelivered(),
			"err", err)
	}
}

func (dh *DownloadHandler) Browse(w http.ResponseWriter, r *http.Request) {
	var body browseBody
	if err := dh.decode(w, r, &body); err != nil {
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		markErr(w, ErrURLRequired)
		http.Error(w, ErrURLRequired.Error(), http.StatusBadRequest)
		return
	}

	listing, err := dh.svc.Browse(r.Context(), body.URL, body.Password)
	if err != nil {
		markErr(w, err)
		http.Error(w, "browse failed: "+err.Error(), resolveStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(listing); err != nil {
		markErr(w, err)
	}
}

func (dh *DownloadHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dh.svc.Status(r.Context())); err != nil {
		markErr(w, err)
	}
}

func (dh *DownloadHandler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	ts, err := dh.svc.Transfers(r.Context())
	if err != nil {
		markErr(w, err)
		http.Error(w, "unable to list transfers", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = ts.ToJSON(w)
}

func (dh *DownloadHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, err := dh.svc.Transfer(r.Context(), vars["id"])
	if err != nil {
		markErr(w, err)
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = t.ToJSON(w)
}

func (dh *DownloadHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	err := decodeJSONStrict(w, r, dst, 1<<20, "application/json")
	if err == nil {
		return nil
	}
	markErr(w, err)
	if errors.Is(err, ErrContentType) {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return err
	}
	http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
	return err
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, data.ErrInvalidSource), errors.Is(err, data.ErrIsFolder):
		return http.StatusBadRequest
	case errors.Is(err, creds.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// progressWriter forwards chunks downstream, flushing each one, and reports
// the cursor to the tracker every progressStride bytes.
const progressStride = 1 << 20

type progressWriter struct {
	w   io.Writer
	f   http.Flusher
	svc service.Download
	t   *data.Transfer

	n        int64
	reported int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.n += int64(n)
	if pw.f != nil {
		pw.f.Flush()
	}
	if pw.n-pw.reported >= progressStride {
		pw.svc.Progress(pw.t, pw.n)
		pw.reported = pw.n
	}
	return n, err
}
