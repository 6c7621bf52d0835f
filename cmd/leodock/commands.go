package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/leodock/ai/retrieval"
	"github.com/hrygo/leodock/server/service/history"
	"github.com/hrygo/leodock/store"
)

const defaultSemanticThreshold = 0.3

// render writes v as JSON when --json is set, otherwise calls text.
func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}

// withApp opens the shared components for the duration of one command.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return run(cmd, args, a)
	}
}

func newSaveCmd() *cobra.Command {
	var (
		participant string
		sessionID   string
		priority    string
		metadata    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "save MESSAGE...",
		Short: "Append a message to the log",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			metadata = store.WithSource(metadata, "cli")
			if priority != "" {
				metadata[store.MetadataKeyPriority] = priority
			}
			id, err := a.service.Save(cmd.Context(), &history.SaveRequest{
				Participant: participant,
				Message:     strings.Join(args, " "),
				SessionID:   sessionID,
				Metadata:    metadata,
			})
			if err != nil {
				return err
			}
			return render(cmd, map[string]int64{"id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "saved conversation %d\n", id)
			})
		}),
	}
	cmd.Flags().StringVarP(&participant, "participant", "p", "", "who said it (required)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id")
	cmd.Flags().StringVar(&priority, "priority", "", "priority tag stored in metadata")
	cmd.Flags().StringToStringVarP(&metadata, "meta", "m", nil, "metadata as key=value pairs")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Case-insensitive keyword search",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			list, err := a.service.SearchKeyword(cmd.Context(), query, limit)
			if err != nil {
				return err
			}
			return render(cmd, list, func(w io.Writer) { printConversations(w, list) })
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultSearchLimit, "maximum number of results")
	return cmd
}

func newSemanticCmd() *cobra.Command {
	var (
		limit     int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "semantic QUERY",
		Short: "Rank conversations by similarity to QUERY",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			results, err := a.service.SemanticSearch(cmd.Context(), args[0], limit, threshold)
			if err != nil {
				return err
			}
			return render(cmd, results, func(w io.Writer) { printScored(w, results) })
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", retrieval.DefaultLimit, "maximum number of results")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", defaultSemanticThreshold, "minimum cosine similarity")
	return cmd
}

func newContextCmd() *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "context ID",
		Short: "Show the session messages around a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			entries, err := a.service.ConversationContext(cmd.Context(), id, window)
			if err != nil {
				return err
			}
			return render(cmd, entries, func(w io.Writer) {
				for _, e := range entries {
					marker := "  "
					if e.IsTarget {
						marker = "> "
					}
					fmt.Fprintf(w, "%s[%d] %s %s: %s\n", marker, e.Conversation.ID,
						e.Conversation.Timestamp.Local().Format(time.DateTime), e.Conversation.Participant, e.Conversation.Message)
				}
			})
		}),
	}
	cmd.Flags().IntVarP(&window, "window", "w", history.DefaultContextWindow, "messages to show on each side")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest conversations",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			list, err := a.service.RecentConversations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return render(cmd, list, func(w io.Writer) { printConversations(w, list) })
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultRecentLimit, "number of conversations")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the log",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			stats, err := a.service.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, stats, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "Conversations:\t%d\n", stats.TotalConversations)
				fmt.Fprintf(tw, "  with embedding:\t%d\n", stats.WithEmbedding)
				fmt.Fprintf(tw, "  pending:\t%d\n", stats.WithoutEmbedding)
				fmt.Fprintf(tw, "Sessions:\t%d (%d active)\n", stats.TotalSessions, stats.ActiveSessions)
				fmt.Fprintf(tw, "Participants:\t%d\n", stats.UniqueParticipants)
				if stats.MostActiveParticipant != "" {
					fmt.Fprintf(tw, "Most active:\t%s (%d messages)\n", stats.MostActiveParticipant, stats.MostActiveCount)
				}
				fmt.Fprintf(tw, "Embedding dimension:\t%d\n", stats.EmbeddingDimension)
				fmt.Fprintf(tw, "Query cache:\t%d entries, %d hits, %d misses\n", stats.QueryCacheEntries, stats.QueryCacheHits, stats.QueryCacheMisses)
				_ = tw.Flush()
			})
		}),
	}
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}

	var (
		kind         string
		topic        string
		participants []string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Start a session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			session, err := a.service.CreateSession(cmd.Context(), &history.CreateSessionRequest{
				Kind:         kind,
				Topic:        topic,
				Participants: participants,
			})
			if err != nil {
				return err
			}
			return render(cmd, session, func(w io.Writer) {
				fmt.Fprintf(w, "created session %s\n", session.ID)
			})
		}),
	}
	createCmd.Flags().StringVarP(&kind, "kind", "k", "collaboration", "session kind")
	createCmd.Flags().StringVar(&topic, "topic", "", "session topic")
	createCmd.Flags().StringSliceVarP(&participants, "participants", "p", nil, "comma-separated participants")

	closeCmd := &cobra.Command{
		Use:   "close ID",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			session, err := a.service.CloseSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd, session, func(w io.Writer) {
				fmt.Fprintf(w, "session %s closed at %s\n", session.ID, session.EndTime.Local().Format(time.DateTime))
			})
		}),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			list, err := a.service.ListActiveSessions(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, list, func(w io.Writer) { printSessions(w, list) })
		}),
	}

	cmd.AddCommand(createCmd, closeCmd, listCmd)
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var (
		id    int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed conversations whose vector is still pending",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			if id > 0 {
				filled, err := a.service.BackfillEmbedding(ctx, id)
				if err != nil {
					return err
				}
				return render(cmd, map[string]any{"id": id, "filled": filled}, func(w io.Writer) {
					if filled {
						fmt.Fprintf(w, "conversation %d embedded\n", id)
					} else {
						fmt.Fprintf(w, "conversation %d already embedded, nothing to do\n", id)
					}
				})
			}

			before, err := a.service.Stats(ctx)
			if err != nil {
				return err
			}
			enqueued, err := a.service.BackfillPending(ctx, limit)
			if err != nil {
				return err
			}
			if err := a.service.Backfiller().Wait(ctx); err != nil {
				return err
			}
			after, err := a.service.Stats(ctx)
			if err != nil {
				return err
			}
			result := map[string]int64{
				"enqueued": int64(enqueued),
				"filled":   after.WithEmbedding - before.WithEmbedding,
				"pending":  after.WithoutEmbedding,
			}
			return render(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "embedded %d of %d queued conversations, %d still pending\n",
					result["filled"], enqueued, result["pending"])
			})
		}),
	}
	cmd.Flags().Int64Var(&id, "id", 0, "embed a single conversation synchronously")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of conversations to queue (0 for all)")
	return cmd
}

func printConversations(w io.Writer, list []*store.Conversation) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no conversations found")
		return
	}
	for _, c := range list {
		fmt.Fprintf(w, "[%d] %s %s: %s\n", c.ID, c.Timestamp.Local().Format(time.DateTime), c.Participant, c.Message)
	}
}

func printScored(w io.Writer, results []*retrieval.ScoredConversation) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no similar conversations found")
		return
	}
	for _, r := range results {
		c := r.Conversation
		fmt.Fprintf(w, "%.3f [%d] %s %s: %s\n", r.Similarity, c.ID, c.Timestamp.Local().Format(time.DateTime), c.Participant, c.Message)
	}
}

func printSessions(w io.Writer, list []*store.Session) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no active sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTOPIC\tPARTICIPANTS\tSTARTED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Kind, s.Topic, strings.Join(s.Participants, ","), s.StartTime.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}
