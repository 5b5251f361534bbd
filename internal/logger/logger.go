// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Запись буферизуется, чтобы не блокировать обработчики; Sync сбрасывает буфер при остановке.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	bufferSize    = 256 * 1024
	flushInterval = time.Second
	slowCall      = 100 * time.Millisecond
)

var (
	prefix string
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  *zap.SugaredLogger
	sink   *zapcore.BufferedWriteSyncer
	once   sync.Once
)

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initLogger() {
	level.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	sink = &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(os.Stderr),
		Size:          bufferSize,
		FlushInterval: flushInterval,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	sugar = zap.New(core).Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(initLogger)
	return sugar
}

// SetPrefix задаёт префикс для всех последующих логов (например "api").
func SetPrefix(p string) {
	prefix = p
}

// SetLevel переключает уровень логирования (debug, info, warn, error).
func SetLevel(s string) {
	once.Do(initLogger)
	level.SetLevel(parseLevel(s))
}

// Sync сбрасывает буфер; вызывается при завершении процесса.
func Sync() {
	once.Do(initLogger)
	_ = sugar.Sync()
	_ = sink.Stop()
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Info пишет в лог с префиксом.
func Info(v ...any) {
	get().Info(tag() + fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом.
func Infof(format string, v ...any) {
	get().Info(tag() + fmt.Sprintf(format, v...))
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	get().Debug(tag() + fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом.
func Error(v ...any) {
	get().Error(tag() + fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом.
func Errorf(format string, v ...any) {
	get().Error(tag() + fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// На уровне info пишутся только вызовы дольше 100ms; на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	msg := fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds())
	if elapsed >= slowCall {
		get().Info(msg)
		return
	}
	get().Debug(msg)
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
