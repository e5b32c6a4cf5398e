package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/docshelf/docshelf/internal/preview"
)

func newPreviewCommand(opts *options) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "preview <path>",
		Short: "Preview a file",
		Long: `Run the preview pipeline for one file. The path may be the full node path
("assets/instructions/Guides/setup.txt") or relative to the library root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if query != "" {
				s.Search(cmd.Context(), query)
			}
			state, err := s.Select(cmd.Context(), libraryPath(args[0]))
			if err != nil {
				return fmt.Errorf("preview %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if state.Kind == preview.KindText {
				fmt.Fprintln(out, renderMarked(s.HighlightedPreview()))
				return nil
			}
			return printState(out, state)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "highlight this query in text previews")
	return cmd
}

func printState(w io.Writer, state preview.State) error {
	switch state.Kind {
	case preview.KindHTML:
		fmt.Fprintln(w, state.Content)
	case preview.KindImage:
		if info := state.Image; info != nil {
			fmt.Fprintf(w, "image %s %dx%d\n", info.Format, info.Width, info.Height)
		} else {
			fmt.Fprintln(w, "image")
		}
	case preview.KindIframe:
		fmt.Fprintf(w, "embed: %s\n", state.URL)
	case preview.KindViewer:
		fmt.Fprintf(w, "viewer: %s\n", state.URL)
	case preview.KindMessage, preview.KindError:
		fmt.Fprintln(w, state.Message)
	}

	if state.Note != "" {
		fmt.Fprintln(w, dimColor.Sprint(state.Note))
	}
	if state.DownloadURL != "" {
		fmt.Fprintf(w, "download: %s\n", state.DownloadURL)
	}
	if state.ExtraLink != nil {
		fmt.Fprintf(w, "%s: %s\n", state.ExtraLink.Label, state.ExtraLink.URL)
	}
	if state.Kind == preview.KindError {
		return errors.New(errColor.Sprint(state.Message))
	}
	return nil
}
