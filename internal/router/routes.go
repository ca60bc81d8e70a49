package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	v1 "github.com/tinoosan/debrix/api/v1"
	"github.com/tinoosan/debrix/internal/auth"
	"github.com/tinoosan/debrix/internal/service"
	"github.com/tinoosan/debrix/internal/tracker"
)

// New sets up the application routes and required middleware.
func New(logger *slog.Logger, downloadSvc service.Download, trk *tracker.Tracker) *mux.Router {

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, ps := range downloadSvc.Status(r.Context()) {
			if !ps.Authenticated {
				http.Error(w, ps.Service+" not authenticated", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			logger.Error("write readyz response", "err", err)
		}
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	downloadHandler := v1.NewDownloadHandler(logger, downloadSvc, trk)

	r.Use(v1.RequestID)
	r.Use(downloadHandler.Log)
	r.Use(auth.Middleware)

	api := r.PathPrefix("/v1").Subrouter()

	// POSTs
	post := api.Methods("POST").Subrouter()
	post.HandleFunc("/download", downloadHandler.Download)
	post.HandleFunc("/browse", downloadHandler.Browse)

	// GETs
	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/status", downloadHandler.Status)
	get.HandleFunc("/transfers", downloadHandler.GetTransfers)
	get.HandleFunc("/transfers/{id}", downloadHandler.GetTransfer)
	get.HandleFunc("/events", downloadHandler.Events)

	return r
}
