package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/edusmart-auth/internal/config"
)

// NewRedisCache caches 200 responses of the configured methods in Redis,
// headers included, and replays them with X-Cache: HIT.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	rc := &responseCache{cfg: cfg, rdb: rdb}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			key := cacheKey(cfg, c)
			if rc.replay(c, key) {
				return nil
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status == http.StatusOK && !cw.truncated() {
				rc.store(key, cw.status, c.Response().Header(), cw.buf.Bytes())
			}
			return nil
		}
	}
}

type responseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

func (rc *responseCache) replay(c echo.Context, key string) bool {
	bs, err := rc.rdb.Get(c.Request().Context(), key).Bytes()
	if err != nil {
		return false
	}
	status, hdr, body, ok := decodePayload(bs)
	if !ok {
		return false
	}
	out := c.Response().Header()
	for k, vals := range hdr {
		if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "X-Cache") {
			continue
		}
		for _, v := range vals {
			out.Add(k, v)
		}
	}
	out.Set("X-Cache", "HIT")
	c.Response().WriteHeader(status)
	_, _ = c.Response().Write(body)
	return true
}

func (rc *responseCache) store(key string, status int, header http.Header, body []byte) {
	payload, err := encodePayload(status, header.Clone(), body)
	if err != nil {
		return
	}
	// Detached from the request context, which may already be done.
	_ = rc.rdb.SetEx(context.Background(), key, payload, rc.cfg.TTL).Err()
}

// captureWriter tees the body into buf, up to limit bytes.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size+int64(len(b)) <= cw.limit {
		cw.buf.Write(b)
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) truncated() bool {
	return cw.limit > 0 && cw.size > cw.limit
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var tail []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		tail = []string{"route", c.Path()}
	case "method_route":
		tail = []string{"method", r.Method, "route", c.Path()}
	case "method_route_query":
		tail = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
	default:
		tail = []string{"route", c.Path(), "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(tail, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	copy(out[8:], hdr)
	copy(out[8+len(hdr):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	n := int(binary.BigEndian.Uint32(bs[4:8]))
	if n < 0 || 8+n > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if n > 0 {
		if err := json.Unmarshal(bs[8:8+n], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+n:], true
}
