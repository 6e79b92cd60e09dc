package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ytarchive/internal/archive"
)

func (r *root) trackCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "track <url|@handle|channel-id|username>",
		Short: "Start tracking a channel",
		Example: `  ytarchive track https://www.youtube.com/channel/UCxxxxxxxxxxxxxxxxxxxxxx
  ytarchive track @somehandle
  ytarchive track --kind user somelegacyname`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			ch, err := app.Service.ResolveAndTrack(cmd.Context(), user, args[0], archive.QueryKind(kind))
			if err != nil {
				return err
			}
			return r.out.message("channel", ch, "Tracking %s (%s)", ch.Title, ch.ID)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "force the query kind: id, user, url or handle")
	return cmd
}

func (r *root) untrackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <channel-id>",
		Short: "Stop tracking a channel",
		Long: `Stop tracking a channel. Unless archive.evict_on_untrack is false, the
channel's archived videos are removed from their archive playlists first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			res, err := app.Service.Untrack(cmd.Context(), user, args[0])
			if err != nil {
				return err
			}
			return r.out.print("untrack", res, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Untracked %s\n", args[0])
				if res.Removed+res.Failed > 0 {
					fmt.Fprintf(w, "Evicted %d archived videos, %d failed\n", res.Removed, res.Failed)
				}
			})
		},
	}
}

func (r *root) channelsCommand() *cobra.Command {
	var sortBy string
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List tracked channels with progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			order := archive.SortOrder(sortBy)
			if order != archive.SortByTitle && order != archive.SortByPlayed {
				return fmt.Errorf("unknown sort %q (use title or played)", sortBy)
			}
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			list, err := app.Service.ListTracked(cmd.Context(), user, order)
			if err != nil {
				return err
			}
			return r.out.print("channels", list, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tTITLE\tVIDEOS\tPLAYED\tARCHIVED")
				for _, c := range list {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d (%.0f%%)\t%d\n",
						c.ID, truncate(c.Title, 40), c.VideoCount, c.Played, c.PlayedPercent, c.Archived)
				}
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", string(archive.SortByTitle), "order: title or played")
	return cmd
}

func (r *root) subscriptionsCommand() *cobra.Command {
	var track, untrack []string
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "List subscriptions, or track and untrack several at once",
		Long: `List your subscriptions and whether each channel is tracked.

With --track or --untrack the flags are applied in one update instead.
Untracking this way never touches archive playlists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}

			if len(track)+len(untrack) > 0 {
				flags := make(map[string]bool, len(track)+len(untrack))
				for _, id := range untrack {
					flags[id] = false
				}
				for _, id := range track {
					flags[id] = true
				}
				added, removed, err := app.Service.SetTracked(cmd.Context(), user, flags)
				if err != nil {
					return err
				}
				res := map[string][]string{"added": added, "removed": removed}
				return r.out.print("tracking", res, func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "Tracked %d, untracked %d\n", len(added), len(removed))
				})
			}

			subs, err := app.Service.Subscriptions(cmd.Context(), user)
			if err != nil {
				return err
			}
			return r.out.print("subscriptions", subs, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CHANNEL\tTITLE\tTRACKED")
				for _, s := range subs {
					fmt.Fprintf(w, "%s\t%s\t%s\n", s.ChannelID, truncate(s.Title, 50), yesNo(s.Tracked))
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&track, "track", nil, "channel IDs to track")
	cmd.Flags().StringSliceVar(&untrack, "untrack", nil, "channel IDs to untrack")
	return cmd
}

func (r *root) subscribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <channel-id>",
		Short: "Subscribe to a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			sub, err := app.Service.Subscribe(cmd.Context(), user, args[0])
			if err != nil {
				return err
			}
			return r.out.message("subscription", sub, "Subscribed to %s", sub.ChannelID)
		},
	}
}

func (r *root) unsubscribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <channel-id>",
		Short: "Unsubscribe from a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			existed, err := app.Service.Unsubscribe(cmd.Context(), user, args[0])
			if err != nil {
				return err
			}
			res := map[string]any{"channel_id": args[0], "unsubscribed": existed}
			if !existed {
				return r.out.message("result", res, "Not subscribed to %s", args[0])
			}
			return r.out.message("result", res, "Unsubscribed from %s", args[0])
		},
	}
}
