package cache

import (
	"bytes"
	"net/http"
)

// recordingWriter tees the response body so a 200 can be stored.
type recordingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// CacheMiddleware caches successful GET responses in c, keyed by path and
// query. Hits are served as JSON with X-Cache: HIT; misses reach the handler
// with X-Cache: MISS. Only 200 responses are stored.
func CacheMiddleware(c *LRUCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if body, ok := c.Get(key); ok {
				h := w.Header()
				h.Set("Content-Type", "application/json")
				h.Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}

			rw := &recordingWriter{ResponseWriter: w}
			rw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rw, r)
			if rw.status == http.StatusOK {
				c.Set(key, bytes.Clone(rw.buf.Bytes()))
			}
		})
	}
}
