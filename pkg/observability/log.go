package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes every event to a logger at debug level. Item and cache
// events are frequent, so they are only useful with verbose logging.
type LogHooks struct {
	Logger *log.Logger
}

// NewLogHooks returns hooks that log through l, or the default logger.
func NewLogHooks(l *log.Logger) *LogHooks {
	if l == nil {
		l = log.Default()
	}
	return &LogHooks{Logger: l}
}

// Register installs h as the pipeline, cache and HTTP hooks.
func (h *LogHooks) Register() {
	SetPipelineHooks(h)
	SetCacheHooks(h)
	SetHTTPHooks(h)
}

func (h *LogHooks) OnRunStart(_ context.Context, runID string, items int) {
	h.Logger.Debug("run started", "run", runID, "items", items)
}

func (h *LogHooks) OnRunComplete(_ context.Context, runID string, succeeded, failed int, d time.Duration) {
	h.Logger.Debug("run finished", "run", runID, "ok", succeeded, "failed", failed, "took", d.Round(time.Millisecond))
}

func (h *LogHooks) OnItemStart(_ context.Context, index int) {
	h.Logger.Debug("item started", "index", index)
}

func (h *LogHooks) OnItemComplete(_ context.Context, index int, d time.Duration, err error) {
	if err != nil {
		h.Logger.Debug("item failed", "index", index, "took", d.Round(time.Millisecond), "err", err)
		return
	}
	h.Logger.Debug("item written", "index", index, "took", d.Round(time.Millisecond))
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.Logger.Debug("cache hit", "kind", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.Logger.Debug("cache miss", "kind", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.Logger.Debug("cache set", "kind", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.Logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.Logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "took", d.Round(time.Millisecond))
}

func (h *LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.Logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}

var (
	_ PipelineHooks = (*LogHooks)(nil)
	_ CacheHooks    = (*LogHooks)(nil)
	_ HTTPHooks     = (*LogHooks)(nil)
)
