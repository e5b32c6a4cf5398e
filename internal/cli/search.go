package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search file names and contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.Search(cmd.Context(), strings.Join(args, " "))
			if st.Results.Err != "" {
				return errors.New(st.Results.Err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Names (%d)\n", len(st.Results.Names))
			for _, m := range st.Results.Names {
				fmt.Fprintf(out, "  %s  %s\n", renderMarked(m.Highlighted), dimColor.Sprint(m.Node.Path))
			}
			fmt.Fprintf(out, "Content (%d)\n", len(st.Results.Content))
			for _, m := range st.Results.Content {
				fmt.Fprintf(out, "  %s\n    %s\n", m.Node.Path, renderMarked(m.Snippet))
			}
			return nil
		},
	}
	return cmd
}
