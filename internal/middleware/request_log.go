package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/quickchat/internal/logger"
)

// RequestLog логирует method, path, статус и время выполнения; медленные запросы — на info.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrap(w)
		start := time.Now()
		next.ServeHTTP(rw, r)
		logger.LogDuration("http "+r.Method+" "+r.URL.Path+" "+strconv.Itoa(rw.status), start)
	})
}
