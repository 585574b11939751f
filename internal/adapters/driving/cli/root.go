// Package cli provides the paperdex command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Global flags.
var (
	verbose    bool
	configDir  string
	jsonOutput bool
)

// Services used by the commands. Set by Bootstrap or directly in tests.
var (
	searchService   driving.SearchService
	documentService driving.DocumentService
	reembedService  driving.ReembedService
	settingsService driving.SettingsService
	scheduler       driving.Scheduler
	configWatcher   ConfigWatcher
)

// ConfigWatcher reloads settings when the configuration file changes.
type ConfigWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Services holds the driving ports the commands call. Any field may be nil;
// commands that need a missing service fail with "not configured".
type Services struct {
	Search   driving.SearchService
	Document driving.DocumentService
	Reembed  driving.ReembedService
	Settings driving.SettingsService

	// Scheduler and ConfigWatcher drive the watch command.
	Scheduler     driving.Scheduler
	ConfigWatcher ConfigWatcher
}

// BootstrapFunc builds services once global flags are parsed. withIndex is
// false for commands that only touch settings, so a broken storage or
// provider configuration can still be repaired. The returned cleanup runs
// after the command finishes.
type BootstrapFunc func(configDir string, withIndex bool) (Services, func() error, error)

var (
	bootstrap BootstrapFunc
	cleanup   func() error
)

var rootCmd = &cobra.Command{
	Use:   "paperdex",
	Short: "Semantic retrieval over scientific papers",
	Long: `paperdex indexes the text of scientific papers as embedded chunks and
answers free-text and similar-paper queries with a ranked list of documents.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.paperdex)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetServices installs services directly, bypassing Bootstrap.
func SetServices(s Services) {
	searchService = s.Search
	documentService = s.Document
	reembedService = s.Reembed
	settingsService = s.Settings
	scheduler = s.Scheduler
	configWatcher = s.ConfigWatcher
}

// SetBootstrap registers the function that wires services before each command.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// Execute runs the root command. Cleanup also runs when the command fails.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := teardown(rootCmd, nil); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || cmd == versionCmd {
		return nil
	}

	services, done, err := bootstrap(configDir, needsIndex(cmd))
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = done
	return nil
}

// needsIndex reports whether cmd reads or writes the index.
func needsIndex(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == settingsCmd {
			return false
		}
	}
	return true
}

func teardown(_ *cobra.Command, _ []string) error {
	if cleanup == nil {
		return nil
	}
	done := cleanup
	cleanup = nil
	return done()
}

// parseDocumentID parses a positional document ID argument.
func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document ID %q", arg)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

var (
	errSearchNotConfigured   = errors.New("search service not configured")
	errDocumentNotConfigured = errors.New("document service not configured")
	errReembedNotConfigured  = errors.New("re-embedding service not configured (set embedding.provider)")
	errSettingsNotConfigured = errors.New("settings service not configured")
)
