package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ytarchive/internal/archive"
	"ytarchive/internal/auth"
	"ytarchive/internal/di"
	"ytarchive/internal/youtube"
)

// triState parses an optional yes/no filter flag.
func triState(name, v string) (*bool, error) {
	switch strings.ToLower(v) {
	case "":
		return nil, nil
	case "yes", "true":
		b := true
		return &b, nil
	case "no", "false":
		b := false
		return &b, nil
	}
	return nil, fmt.Errorf("--%s: want yes or no, got %q", name, v)
}

func printVideos(w *tabwriter.Writer, list []archive.VideoState) {
	fmt.Fprintln(w, "ID\tPUBLISHED\tTITLE\tPLAYED\tARCHIVE")
	for _, v := range list {
		played := ""
		if v.Played {
			played = v.PlayedAt.Local().Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.PublishedAt.Local().Format(time.DateOnly), truncate(v.Title, 60), played, v.ContainerID)
	}
}

// reconcile runs the session-entry pass and logs what it corrected.
func (r *root) reconcile(ctx context.Context, app *di.App, user auth.User) (*archive.ReconcileReport, error) {
	rep, err := app.Service.Reconcile(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	if rep.Changed() {
		r.log.Info().
			Int("added", len(rep.Added)).
			Int("removed", len(rep.Removed)).
			Int("relocated", len(rep.Relocated)).
			Msg("local state corrected from archive playlists")
	}
	return rep, nil
}

func (r *root) videosCommand() *cobra.Command {
	var (
		played, archived string
		limit            int
		noSync           bool
	)
	cmd := &cobra.Command{
		Use:   "videos <channel-id>",
		Short: "List a tracked channel's videos with played and archived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q archive.VideoQuery
			var err error
			if q.Played, err = triState("played", played); err != nil {
				return err
			}
			if q.Archived, err = triState("archived", archived); err != nil {
				return err
			}
			q.Limit = limit

			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			if !noSync {
				if _, err := r.reconcile(cmd.Context(), app, user); err != nil {
					return err
				}
			}
			list, err := app.Service.ChannelVideos(cmd.Context(), user, args[0], q)
			if err != nil {
				return err
			}
			return r.out.print("videos", list, func(w *tabwriter.Writer) { printVideos(w, list) })
		},
	}
	f := cmd.Flags()
	f.StringVar(&played, "played", "", "only played (yes) or unplayed (no) videos")
	f.StringVar(&archived, "archived", "", "only archived (yes) or unarchived (no) videos")
	f.IntVar(&limit, "limit", 0, "maximum videos to list (0 = all)")
	f.BoolVar(&noSync, "no-sync", false, "skip reconciling with archive playlists first")
	return cmd
}

func (r *root) pickCommand() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "pick <channel-id>",
		Short: "Pick a video to watch from a tracked channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := archive.ParsePickMode(mode)
			if err != nil {
				return err
			}
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			v, err := app.Service.Pick(cmd.Context(), user, args[0], m)
			if err != nil {
				return err
			}
			return r.out.print("video", v, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "%s\t%s\n", v.ID, v.Title)
				fmt.Fprintf(w, "https://www.youtube.com/watch?v=%s\n", v.ID)
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(archive.PickNextUnplayed),
		"next-unplayed, random-unplayed, random-archived or random")
	return cmd
}

func (r *root) playCommand(played bool) *cobra.Command {
	use, short := "play", "Mark videos of a tracked channel as played"
	if !played {
		use, short = "unplay", "Clear the played mark of videos"
	}
	return &cobra.Command{
		Use:   use + " <channel-id> <video-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			channelID, videos := args[0], args[1:]
			for _, vid := range videos {
				if played {
					_, err = app.Service.MarkPlayed(cmd.Context(), user, channelID, vid)
				} else {
					err = app.Service.MarkUnplayed(cmd.Context(), user, channelID, vid)
				}
				if err != nil {
					return err
				}
			}
			res := map[string]any{"channel_id": channelID, "videos": videos, "played": played}
			return r.out.message("result", res, "Marked %d videos %sed", len(videos), use)
		},
	}
}

func (r *root) rateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <video-id> [like|dislike|none]",
		Short: "Show or set your rating of a video",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			vid := args[0]
			if len(args) == 2 {
				rating := youtube.Rating(strings.ToLower(args[1]))
				if err := app.Service.Rate(cmd.Context(), user, vid, rating); err != nil {
					return err
				}
				return r.out.message("rating", map[string]string{vid: string(rating)}, "Rated %s: %s", vid, rating)
			}

			ratings, err := app.Service.Ratings(cmd.Context(), user, []string{vid})
			if err != nil {
				return err
			}
			return r.out.message("ratings", ratings, "%s: %s", vid, ratings[vid])
		},
	}
}

func (r *root) playlistsCommand() *cobra.Command {
	var add, remove string
	cmd := &cobra.Command{
		Use:   "playlists <video-id>",
		Short: "Show which of your playlists hold a video, or add and remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if add != "" && remove != "" {
				return fmt.Errorf("--add and --remove are exclusive")
			}
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			vid := args[0]

			switch {
			case add != "":
				if err := app.Service.TogglePlaylist(cmd.Context(), user, vid, add, true); err != nil {
					return err
				}
				return r.out.message("result", map[string]string{"added": vid, "playlist_id": add}, "Added %s to %s", vid, add)
			case remove != "":
				if err := app.Service.TogglePlaylist(cmd.Context(), user, vid, remove, false); err != nil {
					return err
				}
				return r.out.message("result", map[string]string{"removed": vid, "playlist_id": remove}, "Removed %s from %s", vid, remove)
			}

			list, err := app.Service.VideoPlaylists(cmd.Context(), user, vid)
			if err != nil {
				return err
			}
			return r.out.print("playlists", list, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tTITLE\tITEMS\tMEMBER\tARCHIVE")
				for _, p := range list {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.ID, truncate(p.Title, 50), p.ItemCount, yesNo(p.Member), yesNo(p.Archive))
				}
			})
		},
	}
	cmd.Flags().StringVar(&add, "add", "", "playlist to add the video to")
	cmd.Flags().StringVar(&remove, "remove", "", "playlist to remove the video from")
	return cmd
}

func (r *root) commentsCommand() *cobra.Command {
	var replies bool
	cmd := &cobra.Command{
		Use:   "comments <video-id>",
		Short: "Show the comments of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			threads, err := app.Service.Comments(cmd.Context(), user, args[0], replies)
			if err != nil {
				return err
			}
			return r.out.print("threads", threads, func(w *tabwriter.Writer) {
				for _, t := range threads {
					fmt.Fprintf(w, "%s\t%s\t(%d likes, %d replies)\n", t.Top.Author, truncate(t.Top.Text, 80), t.Top.LikeCount, t.ReplyCount)
					for _, c := range t.Replies {
						fmt.Fprintf(w, "  %s\t%s\n", c.Author, truncate(c.Text, 76))
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&replies, "replies", false, "include every reply")
	return cmd
}
