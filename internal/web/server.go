package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hwmon-ng/internal/daemon"
	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/hwmon"
	"hwmon-ng/internal/objmodel"
)

// ObjectServer is the object tree plus its signal stream.
type ObjectServer interface {
	Objects() []objmodel.ObjectSnapshot
	Subscribe(buffer int) (int, <-chan objmodel.Signal)
	Unsubscribe(id int)
}

// TargetController applies target writes coming from the API.
type TargetController interface {
	SetTarget(path string, kind hwmon.InterfaceKind, value uint32) error
	Snapshot() daemon.Snapshot
}

type FaultLog interface {
	Snapshot() ([]faults.Entry, uint64)
}

type Deps struct {
	Objects  ObjectServer
	Targets  TargetController
	Faults   FaultLog
	Logs     *LogBuffer
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

type targetRequest struct {
	Path      string `json:"path"`
	Interface string `json:"interface"`
	Value     uint32 `json:"value"`
}

type faultsResponse struct {
	NowUTC  string         `json:"now_utc"`
	Dropped uint64         `json:"dropped"`
	Entries []faults.Entry `json:"entries"`
}

func Handler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", getOnly(func(w http.ResponseWriter, r *http.Request) {
		if d.Targets == nil {
			http.Error(w, "targets unavailable", http.StatusNotFound)
			return
		}
		writeJSON(w, d.Targets.Snapshot())
	}))

	mux.HandleFunc("/api/objects", getOnly(func(w http.ResponseWriter, r *http.Request) {
		if d.Objects == nil {
			writeJSON(w, []objmodel.ObjectSnapshot{})
			return
		}
		writeJSON(w, d.Objects.Objects())
	}))

	mux.HandleFunc("/api/faults", getOnly(func(w http.ResponseWriter, r *http.Request) {
		resp := faultsResponse{NowUTC: time.Now().UTC().Format(time.RFC3339Nano), Entries: []faults.Entry{}}
		if d.Faults != nil {
			entries, dropped := d.Faults.Snapshot()
			if entries != nil {
				resp.Entries = entries
			}
			resp.Dropped = dropped
		}
		writeJSON(w, resp)
	}))

	mux.HandleFunc("/api/targets", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.Targets == nil {
			http.Error(w, "targets unavailable", http.StatusNotFound)
			return
		}
		var req targetRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
		kind, err := hwmon.ParseInterfaceKind(req.Interface)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.Targets.SetTarget(req.Path, kind, req.Value); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, daemon.ErrUnknownObject), errors.Is(err, daemon.ErrNoTarget):
				status = http.StatusNotFound
			case errors.Is(err, daemon.ErrNotReady):
				status = http.StatusServiceUnavailable
			}
			d.Log.Warn("target write rejected",
				zap.String("path", req.Path),
				zap.String("interface", kind.Interface()),
				zap.Error(err),
			)
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "value": req.Value})
	})

	if d.Objects != nil {
		mux.Handle("/api/events", EventsHandler(d.Objects, d.Log))
	}
	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	mux.Handle("/api/about", AboutHandler())

	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func getOnly(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
