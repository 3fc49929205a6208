package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/store"
)

var (
	processEmailID string
	processFile    string
	processBatchOn bool
	processLimit   int
	processTrigger string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the decisioning pipeline on synced emails",
	Long:  "Processes a stored email by ID, ingests and processes an email from a JSON file, or sweeps all pending emails in batch. Replaying an already-processed email is safe: handlers are idempotent and each replay records a fresh run.",
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

		trigger := model.Trigger(processTrigger)
		run := func(ctx context.Context, email *model.SyncedEmail) (bool, error) {
			return runner.Call(ctx, email, trigger)
		}

		switch {
		case processBatchOn:
			emails, err := st.ListPendingEmails(ctx, processLimit)
			if err != nil {
				return eris.Wrap(err, "list pending emails")
			}
			return processBatch(ctx, emails, cfg.Batch.MaxConcurrentEmails, run)

		case processFile != "":
			email, err := ingestEmailFile(ctx, st, processFile)
			if err != nil {
				return err
			}
			return processOne(ctx, st, email, run)

		case processEmailID != "":
			email, err := st.GetEmail(ctx, processEmailID)
			if err != nil {
				return eris.Wrap(err, "load email")
			}
			return processOne(ctx, st, email, run)

		default:
			return eris.New("one of --email, --file, or --batch is required")
		}
	},
}

func init() {
	processCmd.Flags().StringVar(&processEmailID, "email", "", "ID of a stored email to process (or replay)")
	processCmd.Flags().StringVar(&processFile, "file", "", "path to a synced-email JSON file to ingest and process")
	processCmd.Flags().BoolVar(&processBatchOn, "batch", false, "process all emails without an execution result")
	processCmd.Flags().IntVar(&processLimit, "limit", 100, "max emails per batch sweep")
	processCmd.Flags().StringVar(&processTrigger, "trigger", string(model.TriggerManual), "trigger recorded on the run (manual, replay, gmail_sync, webhook)")
	rootCmd.AddCommand(processCmd)
}

// processFunc runs the pipeline for one email and reports whether the plan executed.
type processFunc func(ctx context.Context, email *model.SyncedEmail) (bool, error)

func ingestEmailFile(ctx context.Context, st store.Store, path string) (*model.SyncedEmail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read email file")
	}
	var email model.SyncedEmail
	if err := json.Unmarshal(data, &email); err != nil {
		return nil, eris.Wrap(err, "parse email file")
	}
	if err := st.CreateEmail(ctx, &email); err != nil {
		return nil, eris.Wrap(err, "store email")
	}
	return &email, nil
}

// processOne runs a single email and prints its execution tag to stdout.
func processOne(ctx context.Context, st store.Store, email *model.SyncedEmail, run processFunc) error {
	executed, err := run(ctx, email)
	if err != nil {
		return eris.Wrapf(err, "process email %s", email.ID)
	}

	zap.L().Info("email processed",
		zap.String("email_id", email.ID),
		zap.Bool("executed", executed),
	)

	stored, err := st.GetEmail(ctx, email.ID)
	if err != nil {
		return eris.Wrap(err, "reload email")
	}
	tag, ok := stored.ExtractedData[model.ExecutionKey]
	if !ok {
		fmt.Println("{}")
		return nil
	}

	var pretty map[string]any
	if err := json.Unmarshal(tag, &pretty); err != nil {
		return eris.Wrap(err, "decode execution tag")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

// processBatch sweeps emails concurrently. Individual failures are logged
// and counted but never abort the sweep.
func processBatch(ctx context.Context, emails []model.SyncedEmail, concurrency int, run processFunc) error {
	if len(emails) == 0 {
		zap.L().Info("no pending emails")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("emails", len(emails)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var executed, skipped, failed atomic.Int64

	for i := range emails {
		email := &emails[i]
		g.Go(func() error {
			log := zap.L().With(zap.String("email_id", email.ID))

			ok, err := run(gctx, email)
			if err != nil {
				failed.Add(1)
				log.Error("processing failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			if ok {
				executed.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("executed", executed.Load()),
		zap.Int64("not_executed", skipped.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
