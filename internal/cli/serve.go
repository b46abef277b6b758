package cli

import (
	"github.com/spf13/cobra"

	"readshift/internal/server"
)

func (r *runner) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the library, reader and chat as local web pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = r.app.Config.ServeAddr
			}
			srv, err := server.New(server.Deps{
				Client:     r.app.Client,
				Session:    r.app.Session,
				Highlights: r.app.Highlights,
				Library:    r.app.Library,
				Account:    r.app.Account,
				Color:      r.app.Config.HighlightColor,
			})
			if err != nil {
				return err
			}
			r.printf("Serving on http://%s (Ctrl+C to stop)\n", addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to serveAddr from the config)")
	return cmd
}
