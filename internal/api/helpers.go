package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// clientIP is the remote host with any port stripped. RealIP middleware has
// already substituted proxy headers when they are present; a direct
// connection arrives as host:port and must lose the port, or no two sessions
// would ever share an IP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the failure shape shared by every endpoint.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeAppError maps an error kind onto an HTTP status. Internal details are
// not leaked to the caller.
func writeAppError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidationFailed:
		writeError(w, http.StatusBadRequest, err.Error())
	case apperr.KindSessionNotFound, apperr.KindHierarchyNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case apperr.KindCapExceeded:
		writeError(w, http.StatusConflict, err.Error())
	case apperr.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case apperr.KindBusy:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// limitOffset parses pagination parameters: limit defaults to 100, caps at
// 1000; offset defaults to 0.
func limitOffset(r *http.Request) (limit, offset int) {
	limit = 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// dateRange parses optional date_from/date_to ISO-8601 parameters. The bool
// result is false when either parameter is malformed.
func dateRange(r *http.Request) (from, to *time.Time, ok bool) {
	if v := r.URL.Query().Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, false
		}
		t = t.UTC()
		from = &t
	}
	if v := r.URL.Query().Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, false
		}
		t = t.UTC()
		to = &t
	}
	return from, to, true
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidationFailed, "malformed request body", err)
	}
	return nil
}
