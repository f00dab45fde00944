package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/CZERTAINLY/Vetter/internal/log"
	"github.com/CZERTAINLY/Vetter/internal/model"
	"github.com/CZERTAINLY/Vetter/internal/rule"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

const configName = "vetter.yaml"

var (
	userConfigPath string // /default/config/path/vetter on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logCloser      io.Closer = io.NopCloser(nil)

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagFormat         string // value of scan --format
	flagOutput         string // value of scan --output
	flagFailOn         string // value of scan --fail-on
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "vetter")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is vetter.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	scanCmd.Flags().StringVar(&flagFormat, "format", "", "report format: text, json or cyclonedx")
	scanCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the report into a file instead of stdout")
	scanCmd.Flags().StringVar(&flagFailOn, "fail-on", "", "exit with a non-zero code when a finding of this severity or above exists: info, warning or error")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initVetter

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)

	err := rootCmd.Execute()
	_ = logCloser.Close()
	switch {
	case err == nil:
	case errors.Is(err, errFailOn):
		os.Exit(2)
	default:
		slog.Error("vetter failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "vetter",
	Short:        "Tool checking source files against coding guideline rules",
	SilenceUsage: true,
}

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "scan discovers the source files under paths and reports rule violations",
	RunE:  doScan,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "rules prints the effective rule catalog as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		set, err := rule.Load(config.Rules)
		if err != nil {
			return err
		}
		return printRules(cmd.OutOrStdout(), set)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a vetter",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			_, _ = fmt.Fprintln(w, "vetter: version info not available")
			return
		}

		if configPath != "" {
			_, _ = fmt.Fprintf(w, "config: %s\n", configPath)
		}
		_, _ = fmt.Fprintf(w, "vetter: %s\n", info.Main.Version)
		_, _ = fmt.Fprintf(w, "go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				_, _ = fmt.Fprintf(w, "commit: %s\n", s.Value)
			case "vcs.time":
				_, _ = fmt.Fprintf(w, "date:   %s\n", s.Value)
			case "vcs.modified":
				_, _ = fmt.Fprintf(w, "dirty:  %s\n", s.Value)
			}
		}
	},
}

func doScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("vetter",
		slog.String("cmd", "scan"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	cfg, err := applyFlags(config, args)
	if err != nil {
		return err
	}
	vetter, err := NewVetter(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Report.Output != "" {
		f, err := os.Create(cfg.Report.Output)
		if err != nil {
			return fmt.Errorf("creating report %s: %w", cfg.Report.Output, err)
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}
	return vetter.Do(ctx, out)
}

// applyFlags returns cfg with the scan command line on top, flags have a
// precedence over the config file
func applyFlags(cfg model.Config, args []string) (model.Config, error) {
	if len(args) > 0 {
		cfg.Scan.Paths = args
	}
	if flagFormat != "" {
		cfg.Report.Format = flagFormat
	}
	if flagOutput != "" {
		cfg.Report.Output = flagOutput
	}
	if flagFailOn != "" {
		cfg.Report.FailOn = flagFailOn
	}
	switch cfg.Report.Format {
	case model.FormatText, model.FormatJSON, model.FormatCycloneDX:
	default:
		return cfg, fmt.Errorf("%w: unknown report format %q", model.ErrConfig, cfg.Report.Format)
	}
	if cfg.Report.FailOn != "" {
		if _, err := model.ParseSeverity(cfg.Report.FailOn); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func initVetter(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("VETTERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		configPath = findConfig(".", userConfigPath)
	}

	var err error
	if configPath == "" {
		// store default configuration
		configPath = filepath.Join(userConfigPath, configName)
		config, err = storeDefaultConfig(configPath)
	} else {
		config, err = loadConfig(configPath)
	}
	if err != nil {
		return err
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	logger, closer, err := log.Open(config.Service)
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(logger)

	slog.Debug("vetter run", "configPath", configPath)
	slog.Debug("vetter run", "config", config)
	return nil
}

// findConfig returns the first vetter.yaml found in dirs or an empty string
func findConfig(dirs ...string) string {
	for _, d := range dirs {
		path := filepath.Join(d, configName)
		if exists(path) {
			return path
		}
	}
	return ""
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d.Message, d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func storeDefaultConfig(path string) (model.Config, error) {
	cfg := model.DefaultConfig()
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return cfg, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return cfg, fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	return cfg, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
