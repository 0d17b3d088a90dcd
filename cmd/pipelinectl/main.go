// Command pipelinectl runs pipeline operations by hand against the configured database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolfman30/lead-pipeline/cmd/mainconfig"
	"github.com/wolfman30/lead-pipeline/internal/app/bootstrap"
	"github.com/wolfman30/lead-pipeline/internal/classifier"
	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Operate the inbound lead pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	cmd.AddCommand(processCmd())
	cmd.AddCommand(scoreCmd())
	cmd.AddCommand(validateCmd())
	cmd.AddCommand(classifyCmd())
	cmd.AddCommand(keywordsCmd())
	return cmd
}

func loadConfig() (*appconfig.Config, *logging.Logger) {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return cfg, logging.New(level)
}

// withRuntime builds the full pipeline. Invocations run inline so no queue is required.
func withRuntime(ctx context.Context, fn func(rt *mainconfig.Runtime) error) error {
	cfg, logger := loadConfig()
	cfg.UseMemoryQueue = true
	rt, err := mainconfig.BuildRuntime(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer rt.Close()
	err = fn(rt)
	if drainErr := rt.Drain(ctx, nil); drainErr != nil && err == nil {
		err = drainErr
	}
	return err
}

func withDatabase(ctx context.Context, fn func(db *bootstrap.Database, logger *logging.Logger) error) error {
	cfg, logger := loadConfig()
	db, err := bootstrap.BuildDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <conversation-id>",
		Short: "Process the open buffer of a conversation now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *mainconfig.Runtime) error {
				res, err := rt.Processor.Process(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <conversation-id>",
		Short: "Recompute and store a lead score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *mainconfig.Runtime) error {
				score, err := rt.Scorer.Score(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), score)
			})
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <conversation-id>",
		Short: "Check the agent assignment of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *mainconfig.Runtime) error {
				report, err := rt.Validator.Validate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func classifyCmd() *cobra.Command {
	var current string
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Dry-run the keyword classifier; nothing is written",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(db *bootstrap.Database, logger *logging.Logger) error {
				c := classifier.New(classifier.NewKeywordRepository(db.Pool), logger)
				return classifyText(cmd.Context(), c, cmd.OutOrStdout(), strings.Join(args, " "), current)
			})
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "category the conversation already has")
	return cmd
}

type textClassifier interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Decision, error)
}

func classifyText(ctx context.Context, c textClassifier, w io.Writer, text, current string) error {
	decision, err := c.Classify(ctx, classifier.Input{Text: text, CurrentCategory: current})
	if err != nil {
		return err
	}
	return printJSON(w, decision)
}

func keywordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Manage the classification keyword table",
	}
	cmd.AddCommand(keywordsImportCmd())
	return cmd
}

func keywordsImportCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert keywords from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open keyword file: %w", err)
			}
			defer f.Close()

			if dryRun {
				n, err := importKeywords(cmd.Context(), nil, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d keywords parsed (dry run)\n", n)
				return nil
			}
			return withDatabase(cmd.Context(), func(db *bootstrap.Database, _ *logging.Logger) error {
				n, err := importKeywords(cmd.Context(), classifier.NewKeywordRepository(db.Pool), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d keywords imported\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	return cmd
}

type keywordUpserter interface {
	Upsert(ctx context.Context, keywords []classifier.Keyword) (int, error)
}

// importKeywords parses r and upserts the result. A nil upserter only parses.
func importKeywords(ctx context.Context, repo keywordUpserter, r io.Reader) (int, error) {
	keywords, err := classifier.ParseKeywordFile(r)
	if err != nil {
		return 0, err
	}
	if repo == nil {
		return len(keywords), nil
	}
	return repo.Upsert(ctx, keywords)
}
