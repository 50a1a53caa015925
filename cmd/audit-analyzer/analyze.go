package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"audit-analyzer/internal/config"
	"audit-analyzer/internal/store"
	"audit-analyzer/internal/workflow"
)

type analyzeResult struct {
	File            string `json:"file" yaml:"file"`
	Variant         string `json:"variant" yaml:"variant"`
	AuditSummary    string `json:"audit_summary" yaml:"audit_summary"`
	Question        string `json:"question,omitempty" yaml:"question,omitempty"`
	SecondaryResult string `json:"follow_up,omitempty" yaml:"follow_up,omitempty"`
}

func newAnalyzeCmd(envFile *string) *cobra.Command {
	var (
		question     string
		variant      string
		outputFormat string
		summaryOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Summarise an audit report from the terminal",
		Long: `Run both analysis steps once against a local audit report.

Examples:
  # Summary plus decision support
  audit-analyzer analyze report.txt

  # Summary plus an answer to a question
  audit-analyzer analyze report.docx --variant qa -q "What is the top risk?"

  # Summary only, as JSON
  audit-analyzer analyze report.html --summary-only -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(*envFile)
			if variant != "" {
				cfg.Variant = variant
			}
			if question != "" && variant == "" {
				cfg.Variant = config.VariantQA
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runAnalyze(cmd, cfg, args[0], question, outputFormat, summaryOnly)
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to ask about the summary (implies --variant qa)")
	cmd.Flags().StringVar(&variant, "variant", "", "Follow-up step: decision_support or qa (overrides APP_VARIANT)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "human", "Output format (human, json, yaml)")
	cmd.Flags().BoolVar(&summaryOnly, "summary-only", false, "Stop after the summary")
	return cmd
}

func runAnalyze(cmd *cobra.Command, cfg config.Config, path, question, format string, summaryOnly bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	// Keep the terminal for results; only problems are logged.
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	flow, err := buildFlow(cfg, logger)
	if err != nil {
		return err
	}
	if flow.Variant() == workflow.VariantQA && question == "" && !summaryOnly {
		return fmt.Errorf("the qa variant needs --question, or use --summary-only")
	}

	ctx := cmd.Context()
	sess := &store.Session{ID: "cli", Step: store.StepAnalyze}
	name := filepath.Base(path)
	if err := flow.SubmitDocument(sess, name, data); err != nil {
		return err
	}

	human := format == "human" || format == ""
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	if human {
		printHeader(cmd.OutOrStdout(), name, string(flow.Variant()))
		s.Suffix = " Analyzing audit report..."
		s.Start()
	}
	err = flow.RequestSummary(ctx, sess)
	s.Stop()
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	res := analyzeResult{File: name, Variant: string(flow.Variant()), AuditSummary: sess.AuditSummary}
	if !summaryOnly {
		if human {
			s.Suffix = " Generating follow-up..."
			s.Start()
		}
		err = flow.RequestFollowUp(ctx, sess, question)
		s.Stop()
		if err != nil {
			return fmt.Errorf("follow-up failed: %w", err)
		}
		if flow.Variant() == workflow.VariantQA {
			res.Question = question
		}
		res.SecondaryResult = sess.SecondaryResult
	}
	return displayResult(cmd.OutOrStdout(), res, format)
}

func displayResult(w io.Writer, res analyzeResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		b, err := yaml.Marshal(res)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "human", "":
		displayHuman(w, res)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (supported: human, json, yaml)", format)
	}
}

func printHeader(w io.Writer, file, variant string) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	cyan.Fprintln(w, "🛡️  Cybersecurity Audit Analyzer")
	fmt.Fprintf(w, "📄 File: %s\n", file)
	fmt.Fprintf(w, "🧭 Follow-up: %s\n\n", variant)
}

func displayHuman(w io.Writer, res analyzeResult) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	green.Fprintln(w, "✓ Audit Summary:")
	fmt.Fprintln(w, res.AuditSummary)
	if res.SecondaryResult == "" {
		return
	}
	fmt.Fprintln(w)
	if res.Question != "" {
		yellow.Fprintf(w, "❓ %s\n", res.Question)
		green.Fprintln(w, "✓ Answer:")
	} else {
		green.Fprintln(w, "✓ Decision Support Insights:")
	}
	fmt.Fprintln(w, res.SecondaryResult)
}
