package builder

import (
	"fmt"
	"io"
	"strings"

	"github.com/flowkit/flowcore/internal/domain"
)

// RenderTreeText renders tree as an indented, human-readable text dump
// (§4.1 "render_tree_text"), one line per node, indented by level. Each
// line names the node's kind, id and (for catch/timeout children) the
// link it was attached under, so a model author can eyeball that a
// deploy compiled the shape they expected.
func RenderTreeText(tree *domain.Tree) string {
	var b strings.Builder
	if tree.Root != nil {
		writeNode(&b, tree.Root, 0)
	}
	return b.String()
}

// Print writes tree's rendered text to w, trailing a newline so output
// from successive calls doesn't run together.
func Print(w io.Writer, tree *domain.Tree) {
	fmt.Fprintln(w, RenderTreeText(tree))
}

func writeNode(b *strings.Builder, n *domain.Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(describeNode(n))
	b.WriteString("\n")
	for _, c := range n.ChildrenSnapshot() {
		writeNode(b, c, depth+1)
	}
}

func describeNode(n *domain.Node) string {
	label := fmt.Sprintf("[%s] %s", n.Content.Kind, n.ID)
	switch n.LinkKind {
	case domain.LinkCatch:
		if n.LinkLabel == "" {
			label += " (catch: *)"
		} else {
			label += fmt.Sprintf(" (catch: %s)", n.LinkLabel)
		}
	case domain.LinkTimeout:
		label += fmt.Sprintf(" (timeout: %s)", n.LinkLabel)
	}
	if n.Content.Kind == domain.ContentAct {
		label += fmt.Sprintf(" uses=%s", n.Content.Act.Uses)
	}
	return label
}
