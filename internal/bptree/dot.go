package bptree

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/vecble/flatkv/internal/kverr"
)

// DotGraph writes a Graphviz description of the whole tree to path
// (spec §4.4: "dot_graph(path, display?): debug visualizer producing
// a graph description of the whole tree"), grounded on the original
// implementation's own tree-dump debug helper. When display is true
// and a `dot` binary is on PATH, it also renders path+".svg".
func (t *Tree[K, V]) DotGraph(path string, display bool) error {
	var b strings.Builder
	b.WriteString("digraph bptree {\n")
	b.WriteString("  node [shape=record];\n")

	if !t.Empty() {
		if err := t.dotWalk(&b, t.rootID); err != nil {
			return err
		}
	}
	b.WriteString("}\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return kverr.Wrap(kverr.IoError, err, "dot_graph: write file")
	}
	if display {
		if dotBin, err := exec.LookPath("dot"); err == nil {
			_ = exec.Command(dotBin, "-Tsvg", path, "-o", path+".svg").Run()
		}
	}
	return nil
}

func (t *Tree[K, V]) dotWalk(b *strings.Builder, id uint32) error {
	n, err := t.getNode(id)
	if err != nil {
		return err
	}
	label := fmt.Sprintf("n%d [label=\"{id=%d|rank=%d", id, id, n.rank())
	for i := range n.Keys {
		label += fmt.Sprintf("|<k%d> %v", i, n.Keys[i])
	}
	label += "}\"];\n"
	b.WriteString("  " + label)

	if n.Leaf {
		if n.RightID != InvalidID {
			fmt.Fprintf(b, "  n%d -> n%d [style=dashed,constraint=false];\n", id, n.RightID)
		}
		return nil
	}
	for _, child := range n.Children {
		fmt.Fprintf(b, "  n%d -> n%d;\n", id, child)
		if err := t.dotWalk(b, child); err != nil {
			return err
		}
	}
	return nil
}
