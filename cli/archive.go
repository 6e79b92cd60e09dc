package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ytarchive/internal/archive"
)

func (r *root) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local archive state with your archive playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := r.reconcile(cmd.Context(), app, user)
			if err != nil {
				return err
			}
			return r.out.print("report", rep, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Scanned %d archive playlists in %s\n", rep.Containers, rep.Duration.Round(time.Millisecond))
				fmt.Fprintf(w, "Confirmed\t%d\n", rep.Confirmed)
				fmt.Fprintf(w, "Added\t%d\n", len(rep.Added))
				fmt.Fprintf(w, "Removed\t%d\n", len(rep.Removed))
				fmt.Fprintf(w, "Relocated\t%d\n", len(rep.Relocated))
				fmt.Fprintf(w, "Duplicates\t%d\n", rep.Duplicates)
				fmt.Fprintf(w, "Unresolved\t%d\n", len(rep.Unresolved))
			})
		},
	}
}

func (r *root) archiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <video-id>...",
		Short: "File videos into the next archive playlist with room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			results := make([]archive.ArchiveResult, 0, len(args))
			for _, vid := range args {
				res, err := app.Service.ArchiveVideo(cmd.Context(), user, vid)
				if err != nil {
					return err
				}
				results = append(results, *res)
			}
			return r.out.print("archived", results, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "VIDEO\tCHANNEL\tARCHIVE\tNOTE")
				for _, res := range results {
					note := ""
					switch {
					case res.Existing:
						note = "already archived"
					case res.Tracked:
						note = "channel now tracked"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.VideoID, res.ChannelID, res.ContainerID, note)
				}
			})
		},
	}
}

func (r *root) unarchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <video-id>...",
		Short: "Remove videos from their archive playlists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			for _, vid := range args {
				if err := app.Service.Unarchive(cmd.Context(), user, vid); err != nil {
					return err
				}
			}
			return r.out.message("unarchived", args, "Unarchived %d videos", len(args))
		},
	}
}

func (r *root) archivesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List your archive playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			list, err := app.Service.ListArchives(cmd.Context(), user)
			if err != nil {
				return err
			}
			capacity := app.Service.Policy().Capacity
			return r.out.print("archives", list, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tTITLE\tITEMS\tLOCAL\tCREATED")
				for _, c := range list {
					title := c.Title
					if !c.Owned {
						title = "(not found)"
					}
					fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
						c.ID, title, c.ItemCount, capacity, c.Local, c.CreatedAt.Local().Format(time.DateOnly))
				}
			})
		},
	}
}

func (r *root) renameArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename-archive <playlist-id> <title>",
		Short: "Rename an archive playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			c, err := app.Service.RenameArchive(cmd.Context(), user, args[0], args[1])
			if err != nil {
				return err
			}
			return r.out.message("archive", c, "Renamed %s to %q", c.ID, c.Title)
		},
	}
}

func (r *root) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <playlist-id>",
		Short: "Archive every video of a playlist",
		Long: `Archive every video of a playlist, for example your old Watch Later export.
Each video is recorded as soon as it is placed, so an interrupted import can
simply be run again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, user, err := r.session(cmd.Context())
			if err != nil {
				return err
			}
			res, err := app.Service.ImportPlaylist(cmd.Context(), user, args[0])
			if res != nil {
				if perr := r.out.print("import", res, func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "Imported\t%d\n", len(res.Imported))
					fmt.Fprintf(w, "Already archived\t%d\n", len(res.Skipped))
					fmt.Fprintf(w, "Unavailable\t%d\n", len(res.Unresolved))
				}); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
}
