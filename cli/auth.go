package cli

import (
	"bufio"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ytarchive/internal/auth"
)

type authStatus struct {
	Authenticated bool   `json:"authenticated" yaml:"authenticated" toml:"authenticated"`
	UserID        string `json:"user_id,omitempty" yaml:"user_id,omitempty" toml:"user_id,omitempty"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
}

func (r *root) authCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored OAuth token",
	}
	cmd.AddCommand(r.loginCommand(), r.statusCommand())
	return cmd
}

func (r *root) loginCommand() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize ytarchive to manage your playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := r.opts.NewOAuth(r.cfg)
			if err != nil {
				return err
			}
			state := auth.NewState()

			if code == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL in a browser and approve access:\n\n  %s\n\n", o.AuthCodeURL(state))
				fmt.Fprint(cmd.ErrOrStderr(), "Paste the code or the full redirect URL: ")
				sc := bufio.NewScanner(cmd.InOrStdin())
				if !sc.Scan() {
					if err := sc.Err(); err != nil {
						return fmt.Errorf("read code: %w", err)
					}
					return errors.New("no authorization code given")
				}
				code = sc.Text()
			}

			parsed, err := auth.ParseCode(code, state)
			if err != nil {
				return err
			}
			if _, err := o.Exchange(cmd.Context(), parsed); err != nil {
				return err
			}
			r.log.Info().Str("token_file", r.cfg.Auth.TokenFile).Msg("token stored")
			return r.out.message("token_file", map[string]string{"token_file": r.cfg.Auth.TokenFile},
				"Token saved to %s", r.cfg.Auth.TokenFile)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code, skipping the prompt")
	return cmd
}

func (r *root) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who the stored token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st authStatus
			_, user, err := r.session(cmd.Context())
			switch {
			case errors.Is(err, auth.ErrNotAuthenticated):
			case err != nil:
				return err
			default:
				st = authStatus{Authenticated: true, UserID: user.ID, Name: user.Name}
			}
			return r.out.print("status", st, func(w *tabwriter.Writer) {
				if !st.Authenticated {
					fmt.Fprintln(w, "Not logged in. Run 'ytarchive auth login'.")
					return
				}
				fmt.Fprintf(w, "Logged in as %s (%s)\n", st.Name, st.UserID)
			})
		},
	}
}
