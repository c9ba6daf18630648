package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilodelta8/StarTrack/internal/device"
	"github.com/kilodelta8/StarTrack/internal/metrics"
	"github.com/kilodelta8/StarTrack/internal/planner"
	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/internal/trajectory"
)

type errorResponse struct {
	Error string `json:"error"`
}

type calculateRequest struct {
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	AltitudeM     *float64  `json:"altitude_m"`
	CatalogNumber int       `json:"catalog_number"`
	Start         time.Time `json:"start"`
}

type calculateResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	TrajectoryString string `json:"trajectory_string,omitempty"`
	Samples          int    `json:"samples,omitempty"`
}

type uploadRequest struct {
	TrajectoryString string `json:"trajectory_string"`
}

type commandRequest struct {
	Cmd string `json:"cmd"`
}

// deviceOpResponse is the envelope for endpoints that talk to the tracker.
// DeviceResponse carries the device's own reply body when there is one.
type deviceOpResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	DeviceResponse string `json:"device_response,omitempty"`
}

type tleMetadataResponse struct {
	Source     string  `json:"source"`
	FetchedAt  string  `json:"fetched_at"`
	AgeSeconds float64 `json:"age_seconds"`
	Satellites int     `json:"satellites"`
	EpochMin   string  `json:"epoch_min"`
	EpochMax   string  `json:"epoch_max"`
}

type tleFetchResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Satellites int    `json:"satellites,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleCalculate runs the planner for the requested (or default) observer
// and satellite. A satellite that never clears the elevation cutoff is a
// 400 with success=false, not a server error.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, calculateResponse{Message: "Invalid request body."})
		return
	}

	out, err := s.deps.Planner.Calculate(r.Context(), planner.Request{
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		AltitudeM:     req.AltitudeM,
		CatalogNumber: req.CatalogNumber,
		Start:         req.Start,
	})
	if err != nil {
		metrics.ObserveCalculation("error", time.Since(start).Seconds())
		switch {
		case errors.Is(err, planner.ErrInvalidObserver):
			writeJSON(w, http.StatusBadRequest, calculateResponse{Message: err.Error()})
		case errors.Is(err, planner.ErrNoElements):
			writeJSON(w, http.StatusServiceUnavailable, calculateResponse{Message: err.Error()})
		default:
			s.logger.Error("calculation failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, calculateResponse{Message: "Calculation failed."})
		}
		return
	}

	if !out.Visible {
		metrics.ObserveCalculation("not_visible", time.Since(start).Seconds())
		writeJSON(w, http.StatusBadRequest, calculateResponse{Message: out.Message})
		return
	}

	metrics.ObserveCalculation("visible", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, calculateResponse{
		Success:          true,
		Message:          out.Message,
		TrajectoryString: out.Wire,
		Samples:          out.Samples,
	})
}

// handleUpload validates the wire string locally before any network is
// touched, then forwards it to the tracker.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, deviceOpResponse{Message: "Invalid request body."})
		return
	}
	if strings.TrimSpace(req.TrajectoryString) == "" {
		writeJSON(w, http.StatusBadRequest, deviceOpResponse{Message: "Missing trajectory string."})
		return
	}
	if _, err := (trajectory.Codec{}).Decode(req.TrajectoryString); err != nil {
		writeJSON(w, http.StatusBadRequest, deviceOpResponse{
			Message: fmt.Sprintf("Malformed trajectory: %v.", err),
		})
		return
	}

	start := time.Now()
	ack, err := s.deps.Device.Upload(r.Context(), req.TrajectoryString)
	if err != nil {
		s.writeDeviceError(w, "upload", "Device rejected the trajectory.", err, start)
		return
	}

	metrics.ObserveDeviceRequest("upload", "ok", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, deviceOpResponse{
		Success:        true,
		Message:        "Trajectory successfully uploaded and tracking initiated.",
		DeviceResponse: ack.Body,
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, deviceOpResponse{Message: "Invalid request body."})
		return
	}

	start := time.Now()
	ack, err := s.deps.Device.Command(r.Context(), req.Cmd)
	if err != nil {
		var derr *device.DeviceError
		if !errors.As(err, &derr) {
			// Rejected locally; no request reached the device.
			writeJSON(w, http.StatusBadRequest, deviceOpResponse{
				Message: fmt.Sprintf("Invalid command %q.", req.Cmd),
			})
			return
		}
		s.writeDeviceError(w, "command", fmt.Sprintf("Device rejected command %q.", req.Cmd), err, start)
		return
	}

	metrics.ObserveDeviceRequest("command", "ok", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, deviceOpResponse{
		Success:        true,
		Message:        fmt.Sprintf("Command %q sent successfully.", req.Cmd),
		DeviceResponse: ack.Body,
	})
}

// writeDeviceError maps a *DeviceError to 502 (the device answered with an
// error) or 503 (the device could not be reached) and records the metric.
func (s *Server) writeDeviceError(w http.ResponseWriter, op, rejectedMsg string, err error, start time.Time) {
	var derr *device.DeviceError
	if !errors.As(err, &derr) {
		s.logger.Error("device call failed", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, deviceOpResponse{Message: "Device call failed."})
		return
	}

	if derr.Kind == device.KindRejected {
		metrics.ObserveDeviceRequest(op, "rejected", time.Since(start).Seconds())
		writeJSON(w, http.StatusBadGateway, deviceOpResponse{
			Message:        rejectedMsg,
			DeviceResponse: derr.Detail,
		})
		return
	}

	metrics.ObserveDeviceRequest(op, "unreachable", time.Since(start).Seconds())
	writeJSON(w, http.StatusServiceUnavailable, deviceOpResponse{
		Message: fmt.Sprintf("Device unreachable: %s.", derr.Detail),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	report, err := s.deps.Device.Status(r.Context())
	if err != nil {
		metrics.ObserveDeviceRequest("status", "offline", time.Since(start).Seconds())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "OFFLINE",
			"message": err.Error(),
		})
		return
	}

	metrics.ObserveDeviceRequest("status", "ok", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	if s.deps.Schedule == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "pass schedule is disabled"})
		return
	}
	snap := s.deps.Schedule.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "pass schedule not ready"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTLEMetadata(w http.ResponseWriter, r *http.Request) {
	ds := s.deps.Store.Get()
	if ds == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no TLE dataset loaded"})
		return
	}
	writeJSON(w, http.StatusOK, tleMetadataResponse{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC().Format(time.RFC3339),
		AgeSeconds: time.Since(ds.FetchedAt).Seconds(),
		Satellites: len(ds.Satellites),
		EpochMin:   ds.EpochRange.Min.UTC().Format(time.RFC3339),
		EpochMax:   ds.EpochRange.Max.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTLEFetch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Fetcher == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "TLE fetch is disabled"})
		return
	}

	n, err := tle.Refresh(r.Context(), s.deps.Fetcher, s.deps.Snapshots, s.deps.Store, s.logger)
	if err != nil {
		s.logger.Error("TLE fetch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, tleFetchResponse{Message: err.Error()})
		return
	}

	metrics.SetTLEDatasetCount(n)
	metrics.SetTLEDatasetAge(0)
	writeJSON(w, http.StatusOK, tleFetchResponse{
		Success:    true,
		Message:    fmt.Sprintf("Fetched %d satellites.", n),
		Satellites: n,
	})
}
