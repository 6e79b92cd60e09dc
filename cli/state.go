package cli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"ytarchive/internal/storage"
)

func (r *root) stateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the local state store",
	}
	cmd.AddCommand(r.exportCommand())
	return cmd
}

// exportCommand reads the store directly so it works without a token.
func (r *root) exportCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole local state",
		Long: `Write the whole local state. Text format emits the persisted JSON layout,
which any backend can be migrated through.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(storage.Options{Driver: r.cfg.Storage.Driver, Path: r.cfg.Storage.Path})
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if r.format == FormatText {
				data, err := storage.EncodeState(st)
				if err != nil {
					return err
				}
				buf.Write(data)
			} else {
				p := &printer{out: &buf, format: r.format}
				if err := p.print("users", st, nil); err != nil {
					return err
				}
			}

			if outPath == "" {
				_, err = r.opts.Stdout.Write(buf.Bytes())
				return err
			}
			if err := storage.WriteFileAtomic(outPath, buf.Bytes(), 0o600); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d users to %s\n", len(st), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write to this file instead of stdout")
	return cmd
}
