package mw

import (
	"bytes"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedStatus struct {
	status      int
	contentType string
	body        []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// StatusCache absorbs bursts of identical anonymous status polls. Responses
// for an identified viewer carry per-user fields and are never cached, so the
// middleware must run after Identity.
type StatusCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

// NewStatusCache creates a cache whose entries live for ttl.
func NewStatusCache(ttl time.Duration) *StatusCache {
	return &StatusCache{entries: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Middleware serves a cached body when one exists and records successful
// responses otherwise.
func (s *StatusCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, identified := UserID(c); identified || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := statusKey(c.Request.URL)
		if v, found := s.entries.Get(key); found {
			hit := v.(cachedStatus)
			c.Header("X-Cache", "HIT")
			c.Data(hit.status, hit.contentType, hit.body)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Header("X-Cache", "MISS")

		c.Next()

		if code := rw.Status(); code >= 200 && code < 300 {
			s.entries.Set(key, cachedStatus{
				status:      code,
				contentType: rw.Header().Get("Content-Type"),
				body:        rw.body.Bytes(),
			}, s.ttl)
		}
	}
}

// Len returns the number of cached responses.
func (s *StatusCache) Len() int {
	return s.entries.ItemCount()
}

// statusKey normalizes the id list so "ids=2,1" and "ids=1,2" share an entry.
func statusKey(u *url.URL) string {
	q := u.Query()
	if raw := q.Get("ids"); raw != "" {
		ids := strings.Split(raw, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
		slices.Sort(ids)
		q.Set("ids", strings.Join(slices.Compact(ids), ","))
	}
	return u.Path + "?" + q.Encode()
}
