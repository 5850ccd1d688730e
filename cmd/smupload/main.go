package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/efebarandurmaz/smupload/internal/options"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cycleFlags struct {
	configPath string
	statsPath  string
	outputDir  string
	jsonReport bool
}

func addOptionFlags(fs *pflag.FlagSet) {
	d := options.Defaults()
	fs.String("access-token", "", "Ingestion service access token")
	fs.String("access-token-file", "", "File holding the access token (plain or JSON)")
	fs.String("version", "", "Code version the source maps belong to")
	fs.String("public-path", "", "Base URL the bundles are served from")
	fs.StringSlice("include-chunk", nil, "Only upload these chunks (repeatable)")
	fs.Int("retries", d.Retries, "Attempts per source map")
	fs.Duration("retry-interval", d.RetryInterval, "Pause between attempts")
	fs.Bool("silent", false, "Suppress success logging")
	fs.Bool("ignore-errors", false, "Report upload failures as warnings")
	fs.String("endpoint", d.Endpoint, "Ingestion endpoint URL")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
}

func addCycleFlags(cmd *cobra.Command, f *cycleFlags) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Config file path")
	cmd.Flags().StringVar(&f.statsPath, "stats", "", "Bundler stats JSON (webpack --json)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "Directory holding emitted assets (default: stats file directory)")
	cmd.Flags().BoolVar(&f.jsonReport, "json", false, "Print the upload report as JSON")
	_ = cmd.MarkFlagRequired("stats")
	addOptionFlags(cmd.Flags())
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "smupload",
		Short:         "Upload JavaScript source maps after a build",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var uploadFlags cycleFlags
	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload the source maps of a finished build",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, uploadFlags)
		},
	}
	addCycleFlags(uploadCmd, &uploadFlags)

	var watchFlags cycleFlags
	var debounce time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload source maps every time the stats file is rewritten",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, watchFlags, debounce)
		},
	}
	addCycleFlags(watchCmd, &watchFlags)
	watchCmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Quiet period before a rewrite triggers an upload")

	var validateConfig string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check plugin options without uploading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, validateConfig)
		},
	}
	validateCmd.Flags().StringVar(&validateConfig, "config", "", "Config file path")
	addOptionFlags(validateCmd.Flags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the smupload version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(uploadCmd, watchCmd, validateCmd, versionCmd)
	return rootCmd
}
