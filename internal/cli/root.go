// Package cli is the command line front end. Every command builds an App
// from the layered settings and calls the pipeline directly; serve and mcp
// hand the same pipeline to the HTTP and MCP servers.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akolanti/ChatAnalyzer/internal/app"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	provider   string
	model      string
	store      string
	jsonOut    bool
	debug      bool
}

type cli struct {
	flags    rootFlags
	settings config.Settings
	options  []app.Option
}

// NewRootCmd builds the command tree. opts are passed to every app.Build,
// tests use them to inject a provider and a store.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{options: opts}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Chunked LLM analysis of forensic chat exports",
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadSettings()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "settings file (default ~/.chatanalyzer/config.yaml)")
	pf.StringVar(&c.flags.provider, "provider", "", "model provider: openai, anthropic, gemini, azure, ollama")
	pf.StringVar(&c.flags.model, "model", "", "model name, the provider default when empty")
	pf.StringVar(&c.flags.store, "store", "", "store backend: sqlite, redis, memory")
	pf.BoolVar(&c.flags.jsonOut, "json", false, "print results as JSON")
	pf.BoolVar(&c.flags.debug, "debug", false, "debug logging")

	root.AddCommand(
		c.analyzeCmd(),
		c.resumeCmd(),
		c.reanalyzeCmd(),
		c.searchCmd(),
		c.conversationsCmd(),
		c.locationsCmd(),
		c.summaryCmd(),
		c.runsCmd(),
		c.serveCmd(),
		c.mcpCmd(),
	)
	return root
}

// Execute runs the command line against ctx.
func Execute(ctx context.Context, args []string, opts ...app.Option) error {
	root := NewRootCmd(opts...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *cli) loadSettings() error {
	s, err := config.LoadSettings(c.flags.configPath)
	if err != nil {
		return err
	}
	if c.flags.provider != "" {
		s.Provider = c.flags.provider
	}
	if c.flags.model != "" {
		s.Model = c.flags.model
	}
	if c.flags.store != "" {
		s.Store = c.flags.store
	}
	if c.flags.debug {
		s.Debug = true
	}
	if err := s.Validate(); err != nil {
		return err
	}
	logger_i.Init(logger_i.Options{JSON: s.LogJSON, Debug: s.Debug})
	c.settings = s
	return nil
}

func (c *cli) build(cmd *cobra.Command, extra ...app.Option) (*app.App, error) {
	opts := append(append([]app.Option(nil), extra...), c.options...)
	a, err := app.Build(cmd.Context(), c.settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("starting: %w", err)
	}
	return a, nil
}

func (c *cli) printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
