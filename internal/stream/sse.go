// Package stream implements Server-Sent Events (SSE) streaming of live
// tracker status. Clients connect via GET /api/v1/stream/status and the
// server polls the device on their behalf, pushing one message per poll.
//
// SSE message format:
//
//	data: {"type":"device_status","online":true,"status":"TRACKING","epoch_time":1700000000,"az":182.4,"el":45.1}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","poll_interval_ms":2000,"device":"http://192.168.4.1","dataset_epoch":"...","tle_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent
// timeout. Reconnecting clients receive a fresh metadata message on each
// connection.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilodelta8/StarTrack/internal/device"
	"github.com/kilodelta8/StarTrack/internal/httputil"
	"github.com/kilodelta8/StarTrack/internal/metrics"
	"github.com/kilodelta8/StarTrack/internal/tle"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // max concurrent streams per IP (default: 10)
	PollInterval       time.Duration // device poll cadence (default: 2s)
	KeepaliveInterval  time.Duration // keep-alive ping interval (default: 30s)
	TrustProxy         bool          // honor proxy headers for the per-IP limit
}

// Handler manages SSE streaming connections.
type Handler struct {
	dev     *device.Client
	store   *tle.Store
	config  Config
	limiter *connLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler. Zero config fields get
// defaults.
func NewHandler(dev *device.Client, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		dev:     dev,
		store:   store,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// HandleStatus serves the SSE device status stream.
// GET /api/v1/stream/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	// SSE needs per-message flushing; refuse transports that cannot.
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, `{"error":"streaming not supported"}`)
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.reserve(ip) {
		h.rejectOverLimit(w, ip)
		return
	}

	metrics.IncStreamConnections()
	metrics.IncStreamsActive()

	connectedAt := time.Now()
	h.logger.Info("status stream open",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)
	defer func() {
		h.limiter.free(ip)
		metrics.DecStreamsActive()
		h.logger.Info("status stream closed",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(connectedAt).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx would buffer otherwise
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The server's WriteTimeout would sever the stream; lift it for this
	// connection and re-arm a fresh deadline around each write instead.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}
	ew := &eventWriter{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Spread reconnects over 3-7s so a restart does not bring every
	// client back in the same instant.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	if err := ew.push(h.metadata()); err != nil {
		metrics.IncStreamErrors("write")
		h.logger.Warn("metadata write failed", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()

	// First status immediately, then on the poll cadence.
	if err := h.pollAndSend(ctx, ew); err != nil {
		metrics.IncStreamErrors("write")
		h.logger.Warn("status write failed", "remote_ip", ip, "error", err)
		return
	}

	poll := time.NewTicker(h.config.PollInterval)
	defer poll.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			if err := h.pollAndSend(ctx, ew); err != nil {
				metrics.IncStreamErrors("write")
				h.logger.Warn("status write failed", "remote_ip", ip, "error", err)
				return
			}
			// Data just went out, so the keepalive clock restarts.
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := ew.comment(); err != nil {
				metrics.IncStreamErrors("write")
				h.logger.Warn("keepalive write failed", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) rejectOverLimit(w http.ResponseWriter, ip string) {
	metrics.IncStreamErrors("limit")
	h.logger.Warn("concurrent stream cap hit",
		"remote_ip", ip,
		"open_streams", h.limiter.activeFor(ip),
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "30")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintln(w, `{"error":"too many concurrent streams"}`)
}

// metadata builds the first message of every connection.
func (h *Handler) metadata() metadataMessage {
	meta := metadataMessage{
		Type:           "metadata",
		PollIntervalMs: int(h.config.PollInterval.Milliseconds()),
		Device:         h.dev.BaseURL(),
	}
	if ds := h.store.Get(); ds != nil {
		meta.DatasetEpoch = ds.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(time.Since(ds.FetchedAt).Seconds())
	}
	return meta
}

// pollAndSend queries the device once and pushes the result. An offline
// device is a message, not an error; only write failures end the stream.
func (h *Handler) pollAndSend(ctx context.Context, ew *eventWriter) error {
	msg := statusMessage{Type: "device_status"}

	report, err := h.dev.Status(ctx)
	if err != nil {
		metrics.IncStreamErrors("poll")
		msg.Error = "device offline"
	} else {
		msg.Online = true
		msg.Status = report.State
		msg.EpochTime = report.EpochTime
		msg.Azimuth = report.Azimuth
		msg.Elevation = report.Elevation
	}

	return ew.push(msg)
}

// SSE message payload types.

type metadataMessage struct {
	Type           string `json:"type"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	Device         string `json:"device"`
	DatasetEpoch   string `json:"dataset_epoch,omitempty"`
	TLEAge         int    `json:"tle_age_seconds,omitempty"`
}

type statusMessage struct {
	Type      string   `json:"type"`
	Online    bool     `json:"online"`
	Status    string   `json:"status,omitempty"`
	EpochTime int64    `json:"epoch_time,omitempty"`
	Azimuth   *float64 `json:"az,omitempty"`
	Elevation *float64 `json:"el,omitempty"`
	Error     string   `json:"error,omitempty"`
}
