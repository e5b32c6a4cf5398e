package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docshelf/docshelf/internal/store"
	"github.com/docshelf/docshelf/pkg/manifest"
)

func newTreeCommand(opts *options) *cobra.Command {
	var all, long bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the library tree",
		Long: `Print the library tree in display order. Top-level folders are expanded,
nested folders are shown collapsed unless --all is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			snap := s.Library()
			if !snap.HasItems() {
				fmt.Fprintln(cmd.OutOrStdout(), "Library is empty.")
				return nil
			}
			printTree(cmd.OutOrStdout(), snap, snap.Nodes, 0, all, long)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "expand every folder")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show modification times")
	return cmd
}

func printTree(w io.Writer, snap *store.Snapshot, nodes []*manifest.Node, depth int, all, long bool) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.IsFolder() {
			open := all || snap.IsExpanded(n.Path)
			marker := "▸"
			if open {
				marker = "▾"
			}
			fmt.Fprintf(w, "%s%s %s\n", indent, marker, folderColor.Sprint(n.Name+"/"))
			if open {
				printTree(w, snap, n.Children, depth+1, all, long)
			}
			continue
		}

		line := fmt.Sprintf("%s  %s", indent, n.Name)
		details := []string{humanize.Bytes(uint64(max(n.Size, 0)))}
		if long && n.ModifiedAt != nil {
			details = append(details, humanize.Time(*n.ModifiedAt))
		}
		fmt.Fprintf(w, "%s  %s\n", line, dimColor.Sprint("("+strings.Join(details, ", ")+")"))
	}
}
