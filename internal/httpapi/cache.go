package httpapi

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (w *bodyCacheWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// cached serves repeated public catalog reads from memory. Only 2xx responses
// are kept; catalog writes flush everything.
func (h *Handler) cached(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cacheTTL <= 0 || r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if value, found := h.catalogCache.Get(key); found {
			cached := value.(cachedResponse)
			for k, v := range cached.headers {
				if k == middleware.RequestIDHeader {
					continue
				}
				w.Header()[k] = v
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		}

		writer := &bodyCacheWriter{ResponseWriter: w, status: http.StatusOK, body: bytes.NewBuffer(nil)}
		next.ServeHTTP(writer, r)

		if writer.status >= 200 && writer.status < 300 {
			h.catalogCache.Set(key, cachedResponse{
				status:  writer.status,
				headers: writer.Header().Clone(),
				body:    writer.body.Bytes(),
			}, h.cacheTTL)
		}
	})
}

func (h *Handler) flushCatalog() {
	h.catalogCache.Flush()
}
