package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mirrorstore/objsync/pkg/graphing"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/store"
)

type graphOpts struct {
	storeDir string
	out      string
	svg      bool
}

// graphCommand builds the "graph" subcommand: render the object closure
// reachable from a commit checksum as Graphviz DOT, or SVG with --svg.
func (c *CLI) graphCommand() *cobra.Command {
	opts := graphOpts{storeDir: ".objsync"}

	cmd := &cobra.Command{
		Use:   "graph CHECKSUM",
		Short: "Render a commit's reachable object graph",
		Long: `graph walks the local store's closure from CHECKSUM without fetching
anything: objects the store doesn't have are rendered as dead-end nodes.
Output is Graphviz DOT by default, or SVG with --svg.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.storeDir, "store", opts.storeDir, "local store directory")
	flags.StringVarP(&opts.out, "out", "o", "", "output file (stdout if empty)")
	flags.BoolVar(&opts.svg, "svg", false, "render SVG instead of DOT")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, checksumStr string, opts graphOpts) error {
	csum, err := objid.ParseChecksum(checksumStr)
	if err != nil {
		return fmt.Errorf("parse checksum: %w", err)
	}

	s, err := store.NewFileStore(opts.storeDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	g, err := graphing.Walk(ctx, s, objid.New(csum, objid.Commit))
	if err != nil {
		return fmt.Errorf("walk graph: %w", err)
	}
	c.Logger.Infof("graph: %d nodes, %d edges", len(g.Nodes), len(g.Edges))

	dot := graphing.ToDOT(g)

	var output []byte
	if opts.svg {
		output, err = graphing.RenderSVG(ctx, dot)
		if err != nil {
			return fmt.Errorf("render svg: %w", err)
		}
	} else {
		output = []byte(dot)
	}

	if opts.out == "" {
		_, err = os.Stdout.Write(output)
		return err
	}
	return os.WriteFile(opts.out, output, 0o644)
}
