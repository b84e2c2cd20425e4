package cli

import (
	"fmt"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/spf13/cobra"
)

func (c *cli) searchCmd() *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "search <run-id> [question]",
		Short: "Ask a question about a run's stored analyses",
		Long: `Answers from the run's stored chunk analyses with exactly one model call.
The chunks are not sent again. With --history the earlier answers are listed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if history {
				answers, err := a.Pipeline.SearchHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if c.flags.jsonOut {
					return c.printJSON(cmd, answers)
				}
				for _, ans := range answers {
					fmt.Fprintln(out, titleStyle.Render(ans.AskedAt.Format("2006-01-02 15:04")+"  "+ans.Question))
					fmt.Fprintln(out, ans.Answer)
					if note := ans.Coverage(); note != "" {
						fmt.Fprintln(out, mutedStyle.Render("("+note+")"))
					}
					fmt.Fprintln(out)
				}
				return nil
			}

			question := strings.TrimSpace(strings.Join(args[1:], " "))
			if question == "" {
				return fmt.Errorf("a question is required")
			}
			answer, err := a.Pipeline.Search(cmd.Context(), args[0], question)
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return c.printJSON(cmd, answer)
			}
			fmt.Fprintln(out, answer.Answer)
			if note := answer.Coverage(); note != "" {
				fmt.Fprintln(out, mutedStyle.Render("("+note+")"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "list earlier answers instead of asking")
	return cmd
}

func (c *cli) conversationsCmd() *cobra.Command {
	var (
		summaries bool
		stored    bool
	)
	cmd := &cobra.Command{
		Use:   "conversations <run-id>",
		Short: "Split a run's export into conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var convs []findingModel.Conversation
			if stored {
				convs, err = a.Pipeline.StoredConversations(cmd.Context(), args[0])
			} else {
				convs, err = a.Pipeline.Conversations(cmd.Context(), args[0], summaries)
			}
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return c.printJSON(cmd, convs)
			}
			renderConversations(cmd.OutOrStdout(), convs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&summaries, "summaries", false, "summarise every conversation (one model call each)")
	cmd.Flags().BoolVar(&stored, "stored", false, "show the last stored segmentation")
	return cmd
}

func (c *cli) locationsCmd() *cobra.Command {
	var stored bool
	cmd := &cobra.Command{
		Use:   "locations <run-id>",
		Short: "Extract, geocode and deduplicate the places mentioned in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if stored {
				mentions, err := a.Pipeline.StoredLocations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if c.flags.jsonOut {
					return c.printJSON(cmd, mentions)
				}
				renderLocations(cmd.OutOrStdout(), mentions)
				return nil
			}

			report, err := a.Pipeline.Locations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return c.printJSON(cmd, report)
			}
			renderLocationReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stored, "stored", false, "list the stored mentions without extracting again")
	return cmd
}

func (c *cli) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <run-id>",
		Short: "Print the run's final summary, producing it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Pipeline.Summary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return c.printJSON(cmd, map[string]string{"run_id": args[0], "summary": summary})
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func (c *cli) runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Pipeline.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return c.printJSON(cmd, runs)
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}
