package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/bulk"
	"github.com/vitalregistry/linkage/internal/bulk/records"
)

// mappingRequest is the transport shape of a field mapping; the separator is
// a one-character string rather than a code point.
type mappingRequest struct {
	Separator  string   `json:"separator"`
	Charset    string   `json:"charset"`
	Header     bool     `json:"header"`
	DateFormat string   `json:"dateFormat"`
	Fields     []string `json:"fields"`
}

func (m mappingRequest) toMapping() records.Mapping {
	out := records.Mapping{
		Charset:    m.Charset,
		Header:     m.Header,
		DateFormat: m.DateFormat,
		Fields:     m.Fields,
	}
	for _, r := range m.Separator {
		out.Separator = r
		break
	}
	return out
}

// SubmitBulk handles POST /api/v1/bulk. The request is multipart form data
// with a "mapping" JSON part followed by the "file" part; the file part is
// streamed into the pipeline without buffering, so mapping must come first.
func (s *Server) SubmitBulk(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "multipart form data expected: "+err.Error())
		return
	}

	var mapping records.Mapping
	haveMapping := false
	for {
		part, perr := mr.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "read multipart: "+perr.Error())
			return
		}

		switch part.FormName() {
		case "mapping":
			var req mappingRequest
			if err := json.NewDecoder(part).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "invalid mapping part: "+err.Error())
				return
			}
			mapping = req.toMapping()
			haveMapping = true
		case "file":
			if !haveMapping {
				writeError(w, http.StatusBadRequest, "bad_request", "mapping part must precede the file part")
				return
			}
			j, err := s.jobs.Submit(r.Context(), ownerID(r), part, mapping)
			if err != nil {
				s.handleDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, j)
			return
		}
	}
	writeError(w, http.StatusBadRequest, "bad_request", "missing file part")
}

// JobStatus handles GET /api/v1/bulk/{jobID}.
func (s *Server) JobStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Status(ownerID(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// JobResult handles GET /api/v1/bulk/{jobID}/result.
func (s *Server) JobResult(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = bulk.FormatJSONL
	}

	out, err := s.jobs.Result(ownerID(r), chi.URLParam(r, "jobID"), format)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer out.Close()

	if format == bulk.FormatJSONL {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, out); err != nil {
		s.logger.Warn("result stream interrupted", zap.Error(err))
	}
}

// CancelJob handles DELETE /api/v1/bulk/{jobID}.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Cancel(ownerID(r), chi.URLParam(r, "jobID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
