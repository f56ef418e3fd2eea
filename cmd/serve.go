package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/internal/report"
	"github.com/signalscope/report-cli/internal/store"
)

var servePort int

// reportRunner is the slice of *report.Runner the HTTP handlers need.
type reportRunner interface {
	Run(ctx context.Context, params report.Params) (*report.Result, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the report HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		router := newRouter(env.Runner, env.Store)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(runner reportRunner, st store.Store) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-User-ID"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/searches/{searchID}/report", func(w http.ResponseWriter, req *http.Request) {
		userID := req.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "X-User-ID header is required")
			return
		}

		result, err := runner.Run(req.Context(), report.Params{
			SearchID: chi.URLParam(req, "searchID"),
			UserID:   userID,
		})
		if err != nil {
			switch {
			case report.IsNotFound(err):
				writeError(w, http.StatusNotFound, "search not found")
			case report.IsConflict(err):
				writeError(w, http.StatusConflict, "a report for this search is already running")
			default:
				zap.L().Error("report run failed",
					zap.String("search", chi.URLParam(req, "searchID")),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, "report generation failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))

		jobs, err := st.ListJobs(req.Context(), store.JobFilter{
			UserID: q.Get("user"),
			Status: model.JobStatus(q.Get("status")),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "job listing failed")
			return
		}
		if jobs == nil {
			jobs = []model.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	})

	r.Get("/jobs/{jobID}", func(w http.ResponseWriter, req *http.Request) {
		job, err := st.GetJob(req.Context(), chi.URLParam(req, "jobID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "job lookup failed")
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	r.Get("/jobs/{jobID}/insight", func(w http.ResponseWriter, req *http.Request) {
		insight, err := st.GetInsightByJob(req.Context(), chi.URLParam(req, "jobID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "insight lookup failed")
			return
		}
		if insight == nil {
			writeError(w, http.StatusNotFound, "insight not found")
			return
		}
		writeJSON(w, http.StatusOK, insight)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
