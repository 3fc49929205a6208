package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API and processing webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner, err := buildRunner(st)
		if err != nil {
			return err
		}
		run := func(ctx context.Context, email *model.SyncedEmail) (bool, error) {
			return runner.Call(ctx, email, model.TriggerWebhook)
		}

		mux := buildMux(ctx, st, run)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildMux wires the read API and the processing webhook. A nil run func
// disables webhook processing while keeping the route registered.
func buildMux(ctx context.Context, st store.Store, run processFunc) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))

		filter := store.RunFilter{
			Status:  model.RunStatus(q.Get("status")),
			EmailID: q.Get("email_id"),
			UserID:  q.Get("user_id"),
			Limit:   limit,
		}

		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		runRec, err := st.GetRun(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		events, err := st.ListEvents(r.Context(), id)
		if err != nil {
			zap.L().Error("list events failed", zap.String("run_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list events failed"})
			return
		}
		writeJSON(w, http.StatusOK, runDetail{Run: *runRec, Events: events})
	})

	mux.HandleFunc("POST /webhook/process", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EmailID string `json:"email_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.EmailID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email_id is required"})
			return
		}

		email, err := st.GetEmail(r.Context(), req.EmailID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "email not found"})
			return
		}

		// Process asynchronously; the audit trail carries the outcome.
		go func() {
			if run == nil {
				return
			}
			executed, err := run(ctx, email)
			if err != nil {
				zap.L().Error("webhook processing failed",
					zap.String("email_id", email.ID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook processing complete",
				zap.String("email_id", email.ID),
				zap.Bool("executed", executed),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"email_id": req.EmailID,
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
