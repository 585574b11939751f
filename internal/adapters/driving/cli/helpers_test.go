package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/services"
)

const testDims = 64

// testEnv wires real services over the in-memory store and the offline embedder.
type testEnv struct {
	store    *memory.Store
	reembed  *services.ReembedService
	config   *memory.ConfigStore
	settings *services.SettingsService
}

func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore(testDims)
	embedder := hashing.NewEmbeddingService(testDims)
	reembed := services.NewReembedService(store, store, store, embedder, domain.DefaultAppSettings().Reembed)
	config := memory.NewConfigStore()
	settings := services.NewSettingsService(config, nil)

	SetServices(Services{
		Search:   services.NewSearchService(store, store, embedder),
		Document: services.NewDocumentService(store, store, store, reembed),
		Reembed:  reembed,
		Settings: settings,
	})

	t.Cleanup(func() {
		_ = reembed.Close()
		SetServices(Services{})
		resetFlags()
	})

	return &testEnv{store: store, reembed: reembed, config: config, settings: settings}
}

// addPaper stores a paper through the document service and waits for its chunks.
func (e *testEnv) addPaper(t *testing.T, title, content string) int64 {
	t.Helper()
	doc := &domain.Document{Title: title, Content: content}
	require.NoError(t, documentService.Add(context.Background(), doc))
	e.reembed.Wait()
	return doc.ID
}

// execute runs the root command with args and returns combined output.
func execute(args ...string) (string, error) {
	return executeWithInput(nil, args...)
}

func executeWithInput(in io.Reader, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	if in == nil {
		in = strings.NewReader("")
	}
	rootCmd.SetIn(in)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default; cobra keeps values between runs.
func resetFlags() {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}
