package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/lamim/copyforge/internal/orchestrator"
	"github.com/lamim/copyforge/internal/server"
	"github.com/lamim/copyforge/internal/writer"
	"github.com/lamim/copyforge/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath   string
	envFile      string
	verbose      bool
	useMock      bool
	templatesDir string

	address     string
	moduleSet   map[string]string
	promptFile  string
	contentFile string
	inputPath   string
	resumeName  string
	outputDir   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "copyforge",
		Short: "CopyForge - Marketing copy prompt composer and rubric checker",
		Long: `CopyForge composes marketing-copy prompts from a library of reusable
modules (style, audience, context), generates copy with an LLM and scores
the result against a four-criterion rubric.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Use the built-in mock backend")
	rootCmd.PersistentFlags().StringVar(&templatesDir, "templates-dir", "", "Directory with module definition files")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&address, "address", "", "Listen address (overrides server.address)")

	composeCmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the prompt composed for a module selection",
		Example: `  copyforge compose --set style=熱血 --set audience=剛畢業的大學生 \
    --set product=線上程式課程 --set cta=立即免費試用`,
		RunE: runCompose,
	}
	composeCmd.Flags().StringToStringVar(&moduleSet, "set", nil, "Module selection as type=name (default: example config)")

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score generated copy against the rubric",
		RunE:  runEvaluate,
	}
	evaluateCmd.Flags().StringVar(&promptFile, "prompt-file", "", "File holding the prompt the copy was generated from")
	evaluateCmd.Flags().StringVar(&contentFile, "content-file", "", "File holding the generated copy")
	_ = evaluateCmd.MarkFlagRequired("prompt-file")
	_ = evaluateCmd.MarkFlagRequired("content-file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and score copy for every config in a JSONL file",
		Long: `Run the full pipeline for each line of a JSONL input file:
1. Compose the prompt from the module selection
2. Generate copy with the generation model
3. Score it with the rubric model
Results are appended to results.jsonl in a session directory.`,
		RunE: runBatch,
	}
	runCmd.Flags().StringVar(&inputPath, "input", "", "JSONL file with one module selection per line")
	runCmd.Flags().StringVar(&resumeName, "resume", "", "Session directory name to resume (e.g. session_2025-01-02T15-04-05)")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (overrides batch.output_dir)")
	_ = runCmd.MarkFlagRequired("input")

	modulesCmd := &cobra.Command{
		Use:   "modules",
		Short: "List the loaded module library",
		RunE:  runModules,
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List batch sessions and how many lines each completed",
		RunE:  listSessions,
	}
	sessionsCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (overrides batch.output_dir)")

	rootCmd.AddCommand(serveCmd, composeCmd, evaluateCmd, runCmd, modulesCmd, sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Server.Address = address
	}

	logger := consoleLogger()
	a, err := newApp(cfg, secrets, logger)
	if err != nil {
		return err
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := server.NewHandler(a.pipeline, a.lib,
		time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second, logger)
	engine := server.NewRouter(server.RouterConfig{
		Handler: handler,
		Metrics: a.metrics,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("CopyForge starting",
		"version", Version,
		"project", cfg.Server.ProjectName,
		"project_version", cfg.Server.ProjectVersion,
		"address", cfg.Server.Address,
		"modules", a.lib.Len(),
		"mock", cfg.Backend.Mock)

	return server.New(cfg.Server, engine, logger).Run(ctx)
}

func runCompose(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return err
	}
	// Composition never calls a model
	cfg.Backend.Mock = true

	a, err := newApp(cfg, secrets, consoleLogger())
	if err != nil {
		return err
	}

	selection := models.DefaultUserConfig()
	if len(moduleSet) > 0 {
		selection = models.UserConfig(moduleSet)
	}

	fmt.Fprintln(cmd.OutOrStdout(), a.pipeline.Compose(selection))
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	prompt, err := os.ReadFile(promptFile)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}
	content, err := os.ReadFile(contentFile)
	if err != nil {
		return fmt.Errorf("failed to read content file: %w", err)
	}

	cfg, secrets, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, secrets, consoleLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := a.pipeline.Evaluate(ctx, string(prompt), string(content))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.Batch.OutputDir = outputDir
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	jobs, err := orchestrator.ReadJobs(input)
	_ = input.Close()
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	sessionMgr, err := writer.NewSessionManager(cfg.Batch.OutputDir, resumeName, consoleLogger())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger, logFile, err := writer.SetupLogger(sessionMgr, logLevel(), os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logFile.Sync()
		_ = logFile.Close()
	}()

	logger.Info("CopyForge batch starting",
		"version", Version,
		"input", inputPath,
		"jobs", len(jobs),
		"session_dir", sessionMgr.GetSessionDir())

	if configPath != "" {
		if err := sessionMgr.BackupConfig(configPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	a, err := newApp(cfg, secrets, logger)
	if err != nil {
		return err
	}

	var completed map[int]bool
	if resumeName != "" {
		completed, err = writer.CompletedLines(sessionMgr.GetResultsPath())
		if err != nil {
			return err
		}
		logger.Info("Loaded previous results", "completed_lines", len(completed))
	}

	results, err := writer.NewResultWriter(sessionMgr, logger)
	if err != nil {
		return fmt.Errorf("failed to create results writer: %w", err)
	}
	defer func() {
		if err := results.Close(); err != nil {
			logger.Error("failed to close results writer", "error", err)
		}
	}()

	orch := orchestrator.New(a.pipeline, results, cfg.Batch.Concurrency, logger,
		orchestrator.WithCompleted(completed),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithProgress(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := orch.Run(ctx, jobs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			sessionDir := filepath.Base(sessionMgr.GetSessionDir())
			logger.Warn("Batch interrupted",
				"session_dir", sessionDir,
				"resume_command", fmt.Sprintf("copyforge run --input %s --resume %s", inputPath, sessionDir))
			return fmt.Errorf("batch interrupted (resume with --resume %s)", sessionDir)
		}
		return fmt.Errorf("batch failed: %w", err)
	}

	logger.Info("Batch complete",
		"total", stats.TotalJobs,
		"successful", stats.SuccessCount,
		"failed", stats.FailureCount,
		"passed_rubric", stats.PassedCount,
		"skipped", stats.SkippedCount,
		"duration", stats.TotalDuration,
		"results", sessionMgr.GetResultsPath())
	return nil
}

func runModules(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Backend.Mock = true

	a, err := newApp(cfg, secrets, consoleLogger())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, moduleType := range a.lib.Types() {
		fmt.Fprintf(out, "%s:\n", moduleType)
		for _, name := range a.lib.Names(moduleType) {
			fmt.Fprintf(out, "  - %s\n", name)
		}
	}
	for _, loadErr := range a.lib.LoadErrors() {
		fmt.Fprintf(os.Stderr, "skipped %s: %v\n", loadErr.Path, loadErr.Err)
	}
	return nil
}

func listSessions(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Batch.OutputDir
	if outputDir != "" {
		dir = outputDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "session_") {
			sessions = append(sessions, entry.Name())
		}
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sessions)))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sessions in %s:\n", dir)
	for _, name := range sessions {
		if err := writer.ValidateSessionPath(dir, name); err != nil {
			continue
		}
		done, err := writer.CompletedLines(filepath.Join(dir, name, "results.jsonl"))
		if err != nil {
			fmt.Fprintf(out, "  %s  (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Fprintf(out, "  %s  %d completed\n", name, len(done))
	}
	return nil
}
