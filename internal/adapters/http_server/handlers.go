// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"pnr_quality/internal/app"
	"pnr_quality/internal/domain"
)

type Handlers struct {
	Q *app.QueryService
	I *app.ImportService

	MaxUploadBytes int64 // 0 means 32MB
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.Timeout))
		r.Get("/v1/imports/latest", h.latestImport)
		r.Get("/v1/stats", h.stats)
		r.Get("/v1/stats/groups", h.groups)
		r.Get("/v1/pnrs", h.listPNRs)
		r.Get("/v1/pnrs/{controlNumber}", h.getPNR)
		r.Get("/v1/contacts/classify", h.classify)
	})
	s.mux.Group(func(r chi.Router) {
		r.Use(RateLimit(s.importLimiter()))
		r.Use(Timeout(s.opts.ImportTimeout))
		r.Post("/v1/imports", h.createImport)
		r.Delete("/v1/pnrs", h.clear)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, app.ErrInvalidArgument), errors.Is(err, domain.ErrForeignSource):
		writeProblem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, domain.ErrEmptyTable), errors.Is(err, domain.ErrMissingColumn):
		writeProblem(w, http.StatusUnprocessableEntity, "Unprocessable Table", err.Error())
	case errors.As(err, &tooBig):
		writeProblem(w, http.StatusRequestEntityTooLarge, "Upload Too Large", err.Error())
	case errors.Is(err, app.ErrNoSource):
		writeProblem(w, http.StatusNotImplemented, "Not Implemented", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeJSON answers 304 when the client already holds this version.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

// splitParam accepts repeated and comma-separated values: ?office=A&office=B,C
func splitParam(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseFilter(r *http.Request) (domain.PNRFilter, error) {
	f := domain.PNRFilter{
		Offices:         splitParam(r, "office"),
		DeliverySystems: splitParam(r, "delivery_system"),
	}
	var err error
	if f.From, err = parseDay(r.URL.Query().Get("from")); err != nil {
		return f, errors.New("from must be YYYY-MM-DD")
	}
	if f.To, err = parseDay(r.URL.Query().Get("to")); err != nil {
		return f, errors.New("to must be YYYY-MM-DD")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, errors.New("to must not be before from")
	}
	return f, nil
}

func intParam(r *http.Request, key string, def, lo, hi int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	st, err := h.Q.Stats(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (h *Handlers) groups(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	by := r.URL.Query().Get("by")
	gs, err := h.Q.Groups(r.Context(), f, by)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"by": by, "groups": gs})
}

func (h *Handlers) listPNRs(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	limit, ok := intParam(r, "limit", 50, 1, 500)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 500")
		return
	}
	offset, ok := intParam(r, "offset", 0, 0, 1<<31-1)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid offset", "offset must be a non-negative integer")
		return
	}
	pg, err := h.Q.ListPNRs(r.Context(), f, r.URL.Query().Get("flag"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pg)
}

func (h *Handlers) getPNR(w http.ResponseWriter, r *http.Request) {
	cn := strings.TrimSpace(chi.URLParam(r, "controlNumber"))
	if cn == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid control number", "control number is required")
		return
	}
	p, err := h.Q.GetPNR(r.Context(), cn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (h *Handlers) classify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, r, http.StatusOK, h.Q.Classify(q.Get("type"), q.Get("detail")))
}

func (h *Handlers) latestImport(w http.ResponseWriter, r *http.Request) {
	run, err := h.Q.LatestImport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// createImport takes ?url= (a path or URL on the configured feed), a
// multipart "file" field, or the raw CSV body.
func (h *Handlers) createImport(w http.ResponseWriter, r *http.Request) {
	if u := r.URL.Query().Get("url"); u != "" {
		h.finishImport(w, r)(h.I.ImportURL(r.Context(), u))
		return
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	name := "upload"
	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, err)
				return
			}
			writeProblem(w, http.StatusBadRequest, "Invalid Upload", `multipart field "file" is required`)
			return
		}
		defer file.Close()
		name, body = hdr.Filename, file
	}
	h.finishImport(w, r)(h.I.ImportReader(r.Context(), name, body))
}

func (h *Handlers) finishImport(w http.ResponseWriter, r *http.Request) func(domain.ImportRun, error) {
	return func(run domain.ImportRun, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, run)
	}
}

func (h *Handlers) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.I.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
