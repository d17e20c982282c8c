package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"caseforge/internal/batch"
	"caseforge/internal/config"
	"caseforge/internal/dedup"
	"caseforge/internal/embedding"
	"caseforge/internal/logging"
	"caseforge/internal/provider"
	"caseforge/internal/types"
)

var (
	// Global flags
	verbose      bool
	workspace    string
	configPath   string
	providerName string
	modelProfile string

	// Logger
	logger *zap.Logger

	cfg *config.UserConfig
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caseforge",
	Short: "caseforge - LLM-powered QA test case generator",
	Long: `caseforge generates structured QA test cases from feature descriptions.

Each feature is walked across coverage dimensions (core flows, validation,
negative paths, boundaries, state transitions, security, destructive actions),
scenarios are deduplicated semantically via embeddings, and each surviving
scenario is expanded into a complete test case with steps and expected results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath(workspace)
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		if err := logging.Init(workspace, cfg.Logging); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// generateCmd runs generation for a single feature
var generateCmd = &cobra.Command{
	Use:   "generate [feature-name]",
	Short: "Generate test cases for a single feature",
	Long: `Runs the full generation pipeline for one feature and prints the
resulting test cases as JSON.

Example:
  caseforge generate "Password reset" --description "Users can reset via email link" --coverage high`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// batchCmd runs generation for multiple features concurrently
var batchCmd = &cobra.Command{
	Use:   "batch [features-file]",
	Short: "Generate test cases for multiple features concurrently",
	Long: `Reads a YAML file listing feature configurations, runs generation for
all of them concurrently, and prints the merged results. Features fail
independently; a batch with any failures completes as "partial" and the
remaining results are still printed.

Features file format:

  features:
    - feature_name: Login
      feature_description: Users authenticate with email and password
      coverage_level: high
    - feature_name: Signup
      feature_description: New users register an account
      coverage_level: medium`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// providersCmd lists providers and their configuration state
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers and their readiness",
	RunE:  runProviders,
}

var (
	featureDescription string
	allowedActions     string
	excludedFeatures   string
	coverageLevel      string
	outputPath         string
	mergeDedupe        bool
	pollInterval       time.Duration
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: <workspace>/.caseforge/config.json)")
	rootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "", "LLM provider: gemini, openai, groq, ollama (default: from config)")
	rootCmd.PersistentFlags().StringVarP(&modelProfile, "model", "m", "", "Model id override (also selects the provider when recognized)")

	generateCmd.Flags().StringVarP(&featureDescription, "description", "d", "", "Feature description (required)")
	generateCmd.Flags().StringVar(&allowedActions, "allowed-actions", "", "Actions the tests may exercise")
	generateCmd.Flags().StringVar(&excludedFeatures, "excluded-features", "", "Adjacent features to keep out of scope")
	generateCmd.Flags().StringVarP(&coverageLevel, "coverage", "c", "medium", "Coverage level: low, medium, high, comprehensive")
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write JSON to file instead of stdout")
	_ = generateCmd.MarkFlagRequired("description")

	batchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write JSON to file instead of stdout")
	batchCmd.Flags().BoolVar(&mergeDedupe, "dedupe", true, "Remove cross-feature near-duplicate titles from merged output")
	batchCmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "Status polling interval")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(providersCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newOrchestrator() *batch.Orchestrator {
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding engine unavailable, semantic dedup disabled", zap.Error(err))
		engine = nil
	}
	return batch.NewOrchestrator(batch.Options{
		Config:  cfg,
		Deduper: dedup.New(engine),
	})
}

// effectiveProvider resolves the provider to use: an explicit --provider wins,
// a recognized --model selects its provider, otherwise the config default.
func effectiveProvider() string {
	if providerName != "" {
		return providerName
	}
	if modelProfile != "" {
		if p := provider.ModelIDToProvider(modelProfile); p != "" {
			return p
		}
	}
	return ""
}

func runGenerate(cmd *cobra.Command, args []string) error {
	fc := types.FeatureConfig{
		FeatureName:        args[0],
		FeatureDescription: featureDescription,
		AllowedActions:     allowedActions,
		ExcludedFeatures:   excludedFeatures,
		CoverageLevel:      types.ParseCoverageLevel(coverageLevel),
	}

	orc := newOrchestrator()
	start := time.Now()
	cases, err := orc.RunSingleFeature(cmd.Context(), fc, effectiveProvider(), modelProfile)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	logger.Info("generation complete",
		zap.String("feature", fc.FeatureName),
		zap.Int("cases", len(cases)),
		zap.Duration("elapsed", time.Since(start)))

	return writeJSON(cases)
}

// featuresFile is the YAML shape accepted by the batch command.
type featuresFile struct {
	Features []types.FeatureConfig `yaml:"features"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read features file: %w", err)
	}
	var ff featuresFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("failed to parse features file: %w", err)
	}
	if len(ff.Features) == 0 {
		return fmt.Errorf("features file %s lists no features", args[0])
	}

	orc := newOrchestrator()
	batchID, err := orc.StartBatch(cmd.Context(), effectiveProvider(), ff.Features, modelProfile)
	if err != nil {
		return fmt.Errorf("failed to start batch: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Batch %s: %d features\n", batchID, len(ff.Features))

	done := make(chan struct{})
	go func() {
		orc.Wait(batchID)
		close(done)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-done:
			break poll
		case <-ticker.C:
			if snap, ok := orc.BatchStatus(batchID); ok {
				fmt.Fprintf(os.Stderr, "  %s\n", progressLine(snap))
			}
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}

	snap, _ := orc.BatchStatus(batchID)
	fmt.Fprintf(os.Stderr, "Batch %s finished: %s\n", batchID, snap.Status)
	for _, fr := range snap.Features {
		if fr.Status == types.FeatureFailed {
			fmt.Fprintf(os.Stderr, "  FAILED %s: %s\n", fr.FeatureName, fr.Error)
		}
	}

	out := struct {
		BatchID  string                `json:"batch_id"`
		Status   types.BatchStatus     `json:"status"`
		Features []types.FeatureResult `json:"features"`
		Merged   []types.TestCase      `json:"merged_cases"`
	}{
		BatchID:  snap.BatchID,
		Status:   snap.Status,
		Features: snap.Features,
		Merged:   orc.MergedCases(batchID, mergeDedupe),
	}
	return writeJSON(out)
}

func progressLine(snap types.BatchSnapshot) string {
	var completed, failed, active int
	for _, fr := range snap.Features {
		switch fr.Status {
		case types.FeatureCompleted:
			completed++
		case types.FeatureFailed:
			failed++
		default:
			active++
		}
	}
	return fmt.Sprintf("completed=%d failed=%d in-flight=%d", completed, failed, active)
}

func runProviders(cmd *cobra.Command, args []string) error {
	fmt.Println("Providers:")
	for _, name := range []string{config.ProviderGemini, config.ProviderOpenAI, config.ProviderGroq, config.ProviderOllama} {
		state := "ready"
		if _, err := provider.Resolve(cfg, name); err != nil {
			state = fmt.Sprintf("not configured (%v)", err)
		}
		fmt.Printf("  %-8s %s\n", name, state)
	}
	fmt.Printf("\nDefault provider: %s\n", cfg.Provider)
	if cfg.Embedding.Provider == "" {
		fmt.Println("Embeddings: disabled (exact-text dedup only)")
	} else {
		fmt.Printf("Embeddings: %s\n", cfg.Embedding.Provider)
	}
	return nil
}

func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')
	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", outputPath)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}
