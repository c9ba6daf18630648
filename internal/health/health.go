package health

import (
	"io"
	"net/http"

	"github.com/kilodelta8/StarTrack/internal/tle"
)

func probe(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	io.WriteString(w, body)
}

// Healthz answers 200 whenever the process is up.
func Healthz(w http.ResponseWriter, r *http.Request) {
	probe(w, http.StatusOK, "ok\n")
}

// Readyz reports ready once a TLE dataset is loaded. A process that cannot
// resolve any satellite has nothing to serve.
func Readyz(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store.Count() == 0 {
			probe(w, http.StatusServiceUnavailable, "no TLE dataset loaded\n")
			return
		}
		probe(w, http.StatusOK, "ready\n")
	}
}
