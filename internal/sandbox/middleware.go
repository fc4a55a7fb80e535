package sandbox

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loom/internal/proto"
)

// LoggingMiddleware logs every request.
func LoggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", lw.status, "duration", time.Since(start))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (lw *loggingResponseWriter) WriteHeader(status int) {
	lw.status = status
	lw.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the logger.
func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	lw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// AuthMiddleware requires "Authorization: Bearer <token>". An empty token
// disables the check.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ZstdMiddleware decompresses zstd request bodies and compresses responses
// larger than proto.CompressThreshold for clients that accept zstd.
func ZstdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if proto.IsZstd(r.Header) {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "reading body", err)
				return
			}
			body, err := proto.Decompress(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid zstd body", err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Del("Content-Encoding")
		}

		if !proto.AcceptsZstd(r.Header) {
			next.ServeHTTP(w, r)
			return
		}

		bw := &bufferedResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(bw, r)

		body := bw.buf.Bytes()
		w.Header().Add("Vary", "Accept-Encoding")
		if len(body) > proto.CompressThreshold {
			if packed, err := proto.Compress(body); err == nil {
				body = packed
				w.Header().Set("Content-Encoding", proto.EncodingZstd)
			}
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(bw.status)
		w.Write(body)
	})
}

type bufferedResponseWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (bw *bufferedResponseWriter) WriteHeader(status int) {
	bw.status = status
}

func (bw *bufferedResponseWriter) Write(p []byte) (int, error) {
	return bw.buf.Write(p)
}
