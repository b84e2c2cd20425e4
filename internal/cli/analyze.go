package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/app"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/pipeline"
	"github.com/akolanti/ChatAnalyzer/internal/reanalysis"
	"github.com/spf13/cobra"
)

// ErrRunAborted makes the process exit non zero when a run-level fatal
// failure stopped the run.
var ErrRunAborted = errors.New("run aborted")

func (c *cli) analyzeCmd() *cobra.Command {
	var (
		prompt     string
		promptFile string
		exclude    string
		summary    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <export>",
		Short: "Analyze every chunk of a chat export",
		Long: `Splits the export into chunks at message boundaries and analyses them in
order. Every finished chunk is stored immediately, so an interrupted run can
be continued with "resume".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			excluded, err := parseIndices(exclude)
			if err != nil {
				return err
			}
			if promptFile != "" {
				data, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("reading prompt: %w", err)
				}
				prompt = string(data)
			}

			a, err := c.build(cmd, c.progress(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			run, report, err := a.Pipeline.Analyze(cmd.Context(), pipeline.AnalyzeRequest{
				Path:      args[0],
				Prompt:    prompt,
				Exclude:   excluded,
				Summarize: summary,
			})
			return c.finishRun(cmd, run, report, err)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "custom analysis prompt")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "read the analysis prompt from a file")
	cmd.Flags().StringVar(&exclude, "exclude", "", "comma separated chunk indices to skip")
	cmd.Flags().BoolVar(&summary, "summary", true, "produce the final summary after the run")
	return cmd
}

func (c *cli) resumeCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a run from its first unfinished chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd, c.progress(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			run, report, err := a.Pipeline.Resume(cmd.Context(), args[0], summary)
			return c.finishRun(cmd, run, report, err)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", true, "produce the final summary after the run")
	return cmd
}

func (c *cli) reanalyzeCmd() *cobra.Command {
	var (
		keywords []string
		mode     string
		prompt   string
	)
	cmd := &cobra.Command{
		Use:   "reanalyze <run-id>",
		Short: "Analyze again only the chunks matching keywords",
		Long: `Selects the chunks of an earlier run whose text matches the keywords
(case insensitive) and analyses them in a new child run. The parent run is
not modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd, c.progress(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			run, report, err := a.Pipeline.Reanalyze(cmd.Context(), reanalysis.Request{
				ParentRunId: args[0],
				Keywords:    keywords,
				Mode:        reanalysis.KeywordMode(mode),
				Prompt:      prompt,
			})
			if errors.Is(err, reanalysis.ErrNoMatches) {
				fmt.Fprintln(cmd.OutOrStdout(), "No chunk matches the keywords, nothing to analyze.")
				return nil
			}
			return c.finishRun(cmd, run, report, err)
		},
	}
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "keyword to match, repeatable or comma separated")
	cmd.Flags().StringVar(&mode, "mode", string(reanalysis.MatchAny), "any or all")
	cmd.Flags().StringVar(&prompt, "prompt", "", "custom analysis prompt")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}

func (c *cli) progress(cmd *cobra.Command) app.Option {
	if c.flags.jsonOut {
		return app.WithProgress(nil)
	}
	return app.WithProgress(func(r analysisModel.AnalysisResult) {
		switch r.Status {
		case analysisModel.ChunkDone, analysisModel.ChunkFailed, analysisModel.ChunkRetrying:
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", analysisModel.ChunkLabel(r.ChunkIndex), r.Status)
		}
	})
}

func (c *cli) finishRun(cmd *cobra.Command, run analysisModel.RunState, report analysisModel.RunReport, err error) error {
	if err != nil && run.Id == "" {
		return err
	}
	if c.flags.jsonOut {
		if jsonErr := c.printJSON(cmd, struct {
			Run    analysisModel.RunState  `json:"run"`
			Report analysisModel.RunReport `json:"report"`
		}{run, report}); jsonErr != nil {
			return jsonErr
		}
	} else {
		renderReport(cmd.OutOrStdout(), run, report)
	}
	if err != nil {
		return err
	}
	if report.Outcome == analysisModel.OutcomeAborted {
		return fmt.Errorf("%w: %s", ErrRunAborted, report.AbortReason)
	}
	return nil
}

func parseIndices(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad chunk index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
