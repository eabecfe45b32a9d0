package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/practicos/internal/app"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/profile"
	"github.com/practicos/internal/service"
	"github.com/practicos/internal/store"
)

type Dependencies struct {
	Config  *app.Config
	Profile *profile.Profile
	Pool    *pgxpool.Pool
}

// recorder returns the document store, or nil without a database.
func (d *Dependencies) recorder() service.Recorder {
	if d.Pool == nil {
		return nil
	}
	return store.NewDocumentStore(d.Pool)
}

func (d *Dependencies) requirePool() (*store.DocumentStore, error) {
	if d.Pool == nil {
		return nil, errors.New("DATABASE_URL is required for this command")
	}
	return store.NewDocumentStore(d.Pool), nil
}

func main() {
	config := app.Load()
	dependencies := &Dependencies{Config: config}
	var noAI bool

	var rootCmd = &cobra.Command{
		Use:           "practicos",
		Short:         "Digitize construction-estimate PDFs into Excel workbooks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noAI {
				config.UseAIExtraction = false
			}
			config.Resolve()
			if err := log.Configure(log.Config{Level: config.LogLevel, File: config.LogFile}); err != nil {
				logger := log.WithComponent("main")
				logger.Warn().Err(err).Str("file", config.LogFile).Msg("log file unavailable")
			}
			if err := config.Validate(); err != nil {
				return err
			}
			p, err := profile.Load(config.ProfilePath)
			if err != nil {
				return err
			}
			dependencies.Profile = p

			if dependencies.Pool == nil && config.DatabaseUrl != "" {
				pool, err := store.Open(cmd.Context(), config.DatabaseUrl)
				if err != nil {
					return err
				}
				if err := store.Migrate(cmd.Context(), pool); err != nil {
					pool.Close()
					return err
				}
				dependencies.Pool = pool
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if dependencies.Pool != nil {
				dependencies.Pool.Close()
				dependencies.Pool = nil
			}
			log.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&config.DataRoot, "data-root", config.DataRoot, "Data root directory")
	flags.StringVar(&config.CustomInputDir, "input", config.CustomInputDir, "Input directory (default <data-root>/data/input)")
	flags.StringVar(&config.CustomOutput, "output", config.CustomOutput, "Output directory (default <data-root>/data/output)")
	flags.StringVar(&config.DatabaseUrl, "database-url", config.DatabaseUrl, "Database URL (optional)")
	flags.StringVar(&config.ProfilePath, "profile", config.ProfilePath, "Estimate profile YAML")
	flags.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level")
	flags.StringVar(&config.OCREngine, "ocr-engine", config.OCREngine, "OCR engine: exec or library")
	flags.IntVar(&config.OCRWorkers, "workers", config.OCRWorkers, "Pages OCR'd concurrently")
	flags.BoolVar(&noAI, "no-ai", false, "Disable AI extraction")

	rootCmd.AddCommand(cmdProcess(dependencies))
	rootCmd.AddCommand(cmdWatch(dependencies))
	rootCmd.AddCommand(cmdDocuments(dependencies))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger := log.WithComponent("main")
		logger.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func cmdProcess(dependencies *Dependencies) *cobra.Command {
	var opts service.Options

	cmd := &cobra.Command{
		Use:   "process [file.pdf ...]",
		Short: "Process every PDF in the input folder, or only the given files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.WithComponent("main")
			logger.Info().Msg("starting PDF processing")
			s := service.New(dependencies.Config, dependencies.Profile, dependencies.recorder())

			if len(args) == 0 {
				summary, err := s.Run(cmd.Context(), opts)
				if err != nil {
					return err
				}
				fmt.Printf("processed=%d skipped=%d failed=%d\n", summary.Processed, summary.Skipped, summary.Failed)
				return nil
			}

			var failed int
			for _, path := range args {
				result, err := s.ProcessFile(cmd.Context(), path, opts)
				if err != nil {
					logger.Error().Err(err).Str("file", path).Msg("error processing file")
					failed++
					continue
				}
				if result.Skipped {
					fmt.Printf("%s\tskipped\n", path)
					continue
				}
				fmt.Printf("%s\t%s\n", path, result.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Reprocess files that were already processed")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Also write the extracted data as JSON")
	return cmd
}

func cmdWatch(dependencies *Dependencies) *cobra.Command {
	var opts service.Options
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process the input folder, then keep processing PDFs as they arrive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := service.New(dependencies.Config, dependencies.Profile, dependencies.recorder())
			if _, err := s.Run(cmd.Context(), opts); err != nil {
				return err
			}
			w := service.NewWatcher(s, dependencies.Config.InputPath, debounce, opts)
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Reprocess files that were already processed")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Also write the extracted data as JSON")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Quiet period before a new file is processed")
	return cmd
}

func cmdDocuments(dependencies *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect processed documents (requires DATABASE_URL)",
	}

	var limit int
	cmdList := &cobra.Command{
		Use:   "list",
		Short: "List recently processed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := dependencies.requirePool()
			if err != nil {
				return err
			}
			docs, err := ds.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Printf("%s\t%s\t%s\tpages=%d\titems=%d\t%s\n",
					d.ID, d.ProcessedAt.Format(time.DateTime), d.Status, d.Pages, d.ItemCount, d.Source)
			}
			return nil
		},
	}
	cmdList.Flags().IntVar(&limit, "limit", 50, "Maximum number of documents")

	cmdShow := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document with its items as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := dependencies.requirePool()
			if err != nil {
				return err
			}
			doc, err := ds.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items, err := ds.Items(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*store.Document
				Items []store.Item `json:"items"`
			}{doc, items})
		},
	}

	cmdPurge := &cobra.Command{
		Use:   "purge <id>",
		Short: "Delete a document record and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := dependencies.requirePool()
			if err != nil {
				return err
			}
			return ds.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(cmdList, cmdShow, cmdPurge)
	return cmd
}
