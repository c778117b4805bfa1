// Package graphing renders the locally-stored object DAG reachable from
// a commit to Graphviz DOT, for debugging and documentation — read-only,
// it never fetches anything. Grounded on the teacher's
// pkg/render/nodelink package, which walks a pkg/dag.DAG the same way:
// build a node/edge list in memory, then hand it to Graphviz.
package graphing

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mirrorstore/objsync/pkg/objects"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/store"
)

// Node is one object in the rendered graph.
type Node struct {
	ID      objid.ID
	Missing bool // true if the object is referenced but not locally stored
}

// Edge is a directed reference from one object to another.
type Edge struct {
	From, To objid.ID
}

// Graph is the in-memory closure collected by Walk, ready for ToDOT.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Walk recursively follows every reference reachable from root (the edges
// pkg/pull's Scan Worker follows, with a commit's related commits always
// included) and returns the resulting graph.
// Unlike the Scan Worker, Walk never fetches: an object missing from the
// store becomes a Node with Missing=true and a dead end.
func Walk(ctx context.Context, s store.Store, root objid.ID) (*Graph, error) {
	g := &Graph{}
	visited := make(map[objid.ID]bool)

	var visit func(id objid.ID) error
	visit = func(id objid.ID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true

		has, err := s.HasObject(ctx, id)
		if err != nil {
			return fmt.Errorf("has_object(%s): %w", id, err)
		}
		g.Nodes = append(g.Nodes, Node{ID: id, Missing: !has})
		if !has {
			return nil
		}

		body, err := s.LoadVariant(ctx, id)
		if err != nil {
			return fmt.Errorf("load_variant(%s): %w", id, err)
		}

		switch id.Type {
		case objid.Commit:
			c, err := objects.ParseCommit(body)
			if err != nil {
				return fmt.Errorf("parse commit %s: %w", id, err)
			}
			tree := objid.New(c.TreeContentsChecksum, objid.DirTree)
			meta := objid.New(c.TreeMetaChecksum, objid.DirMeta)
			g.Edges = append(g.Edges, Edge{From: id, To: tree}, Edge{From: id, To: meta})
			if err := visit(tree); err != nil {
				return err
			}
			if err := visit(meta); err != nil {
				return err
			}
			for _, rel := range c.Related {
				relID := objid.New(rel.Checksum, objid.Commit)
				g.Edges = append(g.Edges, Edge{From: id, To: relID})
				if err := visit(relID); err != nil {
					return err
				}
			}

		case objid.DirTree:
			tree, err := objects.ParseDirTree(body)
			if err != nil {
				return fmt.Errorf("parse dirtree %s: %w", id, err)
			}
			for _, file := range tree.Files {
				fileID := objid.New(file.Checksum, objid.File)
				g.Edges = append(g.Edges, Edge{From: id, To: fileID})
				if err := visit(fileID); err != nil {
					return err
				}
			}
			for _, dir := range tree.Dirs {
				dirTree := objid.New(dir.TreeChecksum, objid.DirTree)
				dirMeta := objid.New(dir.MetaChecksum, objid.DirMeta)
				g.Edges = append(g.Edges, Edge{From: id, To: dirTree}, Edge{From: id, To: dirMeta})
				if err := visit(dirTree); err != nil {
					return err
				}
				if err := visit(dirMeta); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return g, nil
}

// ToDOT renders g as a Graphviz DOT digraph. Missing nodes are drawn
// dashed with a grey fill, the same visual convention the teacher's
// nodelink renderer uses for subdivider nodes.
func ToDOT(g *Graph) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"white\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	nodes := append([]Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodeKey(nodes[i].ID) < nodeKey(nodes[j].ID) })

	for _, n := range nodes {
		label := fmt.Sprintf("%s\\n%s", n.ID.Type, shortChecksum(n.ID.Checksum))
		attrs := []string{fmt.Sprintf("label=%q", label)}
		if n.Missing {
			attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", nodeKey(n.ID), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	edges := append([]Edge(nil), g.Edges...)
	sort.Slice(edges, func(i, j int) bool {
		if nodeKey(edges[i].From) != nodeKey(edges[j].From) {
			return nodeKey(edges[i].From) < nodeKey(edges[j].From)
		}
		return nodeKey(edges[i].To) < nodeKey(edges[j].To)
	})
	for _, e := range edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", nodeKey(e.From), nodeKey(e.To))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeKey(id objid.ID) string {
	return id.Type.String() + ":" + id.Checksum.String()
}

func shortChecksum(c objid.Checksum) string {
	s := c.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
