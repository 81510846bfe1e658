package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/motionlink/internal/monitoring"
)

const chartSampleLimit = 500

// AttachAdminRoutes attaches debugging endpoints under /debug/. These routes
// are only reachable over localhost or Tailscale.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Server-Sent Events stream of committed controller states.
	debug.HandleSilentFunc("tail", s.tailStates)
	debug.HandleFunc("rotation-chart", "rotation of recent recorded samples", s.rotationChart)
}

func (s *Server) tailStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	hub := s.src.Hub()
	id, c := hub.Subscribe()
	defer hub.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case snap, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				monitoring.Logf("failed to encode snapshot: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) rotationChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "recording is disabled", http.StatusNotFound)
		return
	}
	samples, err := s.store.RecentSamples(chartSampleLimit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load samples: %v", err), http.StatusInternalServerError)
		return
	}
	// RecentSamples is newest first; plot oldest to newest.
	slices.Reverse(samples)

	labels := make([]string, 0, len(samples))
	xs := make([]opts.LineData, 0, len(samples))
	ys := make([]opts.LineData, 0, len(samples))
	zs := make([]opts.LineData, 0, len(samples))
	for _, smp := range samples {
		labels = append(labels, smp.RecordedAt.Format("15:04:05.000"))
		xs = append(xs, opts.LineData{Value: smp.State.Rotation.X})
		ys = append(ys, opts.LineData{Value: smp.State.Rotation.Y})
		zs = append(zs, opts.LineData{Value: smp.State.Rotation.Z})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Controller rotation", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Controller rotation", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("x", xs).
		AddSeries("y", ys).
		AddSeries("z", zs)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
