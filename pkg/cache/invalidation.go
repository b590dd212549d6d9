package cache

import (
	"net/http"
)

// CacheManager holds one cache for reference lists and one for counters.
// A nil *CacheManager is valid and caches nothing.
type CacheManager struct {
	reference *LRUCache
	stats     *LRUCache
}

// NewCacheManager creates a CacheManager from the given configuration.
// If cfg is nil or disabled, it returns nil.
func NewCacheManager(cfg *CacheConfig) *CacheManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &CacheManager{
		reference: NewLRUCache(cfg.MaxSize, cfg.ReferenceTTL),
		stats:     NewLRUCache(cfg.MaxSize, cfg.StatsTTL),
	}
}

// InvalidateStats clears the counters after any pallet write.
func (cm *CacheManager) InvalidateStats() {
	if cm == nil {
		return
	}
	cm.stats.InvalidateAll()
}

// InvalidateAll clears both caches. Registration, purge and restore change
// the set of clients and articles.
func (cm *CacheManager) InvalidateAll() {
	if cm == nil {
		return
	}
	cm.reference.InvalidateAll()
	cm.stats.InvalidateAll()
}

// ReferenceMiddleware caches the client and article lists.
func (cm *CacheManager) ReferenceMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return CacheMiddleware(cm.reference)
}

// StatsMiddleware caches the dashboard counters.
func (cm *CacheManager) StatsMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return CacheMiddleware(cm.stats)
}

// InvalidateOnWrite clears the caches after every successful non-GET
// request: all of them when reference is true, only the counters otherwise.
func (cm *CacheManager) InvalidateOnWrite(reference bool) func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)
			if sw.statusCode < 300 {
				if reference {
					cm.InvalidateAll()
				} else {
					cm.InvalidateStats()
				}
			}
		})
	}
}

func passThrough(next http.Handler) http.Handler { return next }

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}
