// Command pdftrans translates the text of PDF documents in place, keeping
// every other element of each page untouched.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"pdf-translation/internal/cache"
	"pdf-translation/internal/config"
	"pdf-translation/internal/logger"
	"pdf-translation/internal/pdf"
	"pdf-translation/internal/pipeline"
	"pdf-translation/internal/results"
	"pdf-translation/internal/translator"
)

var (
	cfg *config.Config

	configFile string
	logLevel   string
	provider   string

	outputPath   string
	languages    []string
	fontOverride string
	noProgress   bool
	force        bool
	failedOnly   bool

	outputToFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "pdftrans",
		Short:        "Translate PDF documents while preserving their layout",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "gen" && cmd.Parent().Name() == "config" {
				return nil
			}
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}

	translateCmd := &cobra.Command{
		Use:   "translate [input.pdf]",
		Short: "Translate one PDF",
		Long: `Translate the text of one PDF into the target language. The output is
written only when every page was translated; by default it is placed next
to the input as <name>_<lang>.pdf.`,
		Args: cobra.ExactArgs(1),
		RunE: runTranslate,
	}

	batchCmd := &cobra.Command{
		Use:   "batch [input-dir] [output-dir]",
		Short: "Translate every PDF in a directory into one or more languages",
		Args:  cobra.ExactArgs(2),
		RunE:  runBatch,
	}

	fontsCmd := &cobra.Command{
		Use:   "fonts",
		Short: "List the language to font table and check every font loads",
		Args:  cobra.NoArgs,
		RunE:  runFonts,
	}

	infoCmd := &cobra.Command{
		Use:   "info [file.pdf]",
		Short: "Validate a PDF and print its page count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := pdf.PageCountFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d pages\n", args[0], n)
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past translation runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	genConfigCmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default configuration",
		Long:  "Generate a default configuration and write it to stdout or a file",
		RunE:  generateConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (default ./pdftrans.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "translation provider (azure, openai)")

	translateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output PDF path")
	translateCmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "target language code, e.g. hi")
	translateCmd.Flags().StringVar(&fontOverride, "font", "", "TrueType font to draw the translation with")
	translateCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	translateCmd.MarkFlagRequired("lang")

	batchCmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "target language codes, comma separated")
	batchCmd.Flags().StringVar(&fontOverride, "font", "", "TrueType font to draw the translation with")
	batchCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	batchCmd.Flags().BoolVar(&force, "force", false, "overwrite existing outputs")
	batchCmd.MarkFlagRequired("lang")

	historyCmd.Flags().BoolVar(&failedOnly, "failed", false, "only list runs that did not finish")

	genConfigCmd.Flags().StringVarP(&outputToFile, "output", "o", "", "write the configuration to a file instead of stdout")

	rootCmd.AddCommand(translateCmd, batchCmd, fontsCmd, infoCmd, historyCmd, configCmd)
	configCmd.AddCommand(genConfigCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and starts the logger.
func setup() error {
	mgr := config.NewConfigManager(configFile)
	if logLevel != "" {
		mgr.Set("log.level", logLevel)
	}
	if provider != "" {
		mgr.Set("provider", provider)
	}

	var err error
	cfg, err = mgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("configuration ready",
		logger.String("file", mgr.ConfigFileUsed()),
		logger.String("provider", cfg.Provider),
		logger.String("cache", cfg.Cache.Backend))
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newGateway builds the configured provider, wrapped in the cache when one
// is configured. The returned function releases the cache.
func newGateway(ctx context.Context) (translator.Gateway, func(), error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, nil, err
	}

	var gw translator.Gateway
	switch cfg.Provider {
	case config.ProviderOpenAI:
		llm, err := translator.NewLLMTranslator(ctx, translator.LLMConfig{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.Model,
			Temperature:    cfg.OpenAI.Temperature,
			Timeout:        cfg.Translation.Timeout,
			SourceLanguage: cfg.Translation.SourceLanguage,
		})
		if err != nil {
			return nil, nil, err
		}
		gw = llm
	default:
		az, err := translator.NewAzureTranslator(translator.AzureConfig{
			Key:            cfg.Azure.Key,
			Endpoint:       cfg.Azure.Endpoint,
			Region:         cfg.Azure.Region,
			SourceLanguage: cfg.Translation.SourceLanguage,
		})
		if err != nil {
			return nil, nil, err
		}
		gw = az
	}

	store, err := cache.Open(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open translation cache: %w", err)
	}
	if store == nil {
		return gw, func() {}, nil
	}
	logger.Info("translation cache opened",
		logger.String("backend", cfg.Cache.Backend),
		logger.String("path", cfg.Cache.Path),
		logger.Int("entries", store.Len()))
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close translation cache", err)
		}
	}
	return translator.NewCachedGateway(gw, store), closeStore, nil
}

// openHistory opens the run history, or returns nil when it is disabled.
func openHistory() *results.Manager {
	if !cfg.History.Enabled {
		return nil
	}
	m, err := results.NewManager(cfg.History.Dir)
	if err != nil {
		logger.Warn("run history unavailable", logger.Err(err))
		return nil
	}
	return m
}

// recordRun stores report in the history, if enabled.
func recordRun(h *results.Manager, input, output string, report *pipeline.RunReport) {
	if h == nil || report == nil {
		return
	}
	if _, err := h.Record(input, output, report); err != nil {
		logger.Warn("failed to record run", logger.String("input", input), logger.Err(err))
	}
}

// fontResolver builds the resolver from the fonts section.
func fontResolver() *pdf.FontResolver {
	langs := pdf.DefaultFontTable(cfg.Fonts.Dir)
	for lang, path := range cfg.FontMap() {
		langs[lang] = path
	}
	return pdf.NewFontResolver(pdf.FontTable{
		Languages: langs,
		Default:   cfg.DefaultFontPath(),
		AllowRTL:  cfg.Fonts.AllowRTL,
	})
}

// pipelineOptions maps configuration onto pipeline options for lang.
func pipelineOptions(lang string, progress pipeline.ProgressFunc) pipeline.Options {
	t := cfg.Translation
	return pipeline.Options{
		TargetLanguage: lang,
		FontPath:       fontOverride,
		Fonts:          fontResolver(),
		Batch: translator.BatchConfig{
			MaxBatchChars: t.BatchChars,
			MaxBatchSize:  t.BatchSize,
			Timeout:       t.Timeout,
			Retry: translator.RetryPolicy{
				MaxAttempts: t.MaxAttempts,
				BaseDelay:   t.BaseDelay,
				MaxDelay:    t.MaxDelay,
			},
		},
		PageConcurrency: t.Concurrency,
		MinFontSize:     cfg.Layout.MinFontSize,
		FontStep:        cfg.Layout.FontStep,
		LineSpacing:     cfg.Layout.LineSpacing,
		Progress:        progress,
	}
}

func generateConfig(cmd *cobra.Command, args []string) error {
	content := config.DefaultConfigTOML()
	if outputToFile == "" {
		fmt.Print(content)
		return nil
	}

	if dir := filepath.Dir(outputToFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputToFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	fmt.Printf("Configuration written to %s\n", outputToFile)
	return nil
}
