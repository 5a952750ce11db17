package main

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// renderNavigation renders the navigation menu for tree with the entry at
// active highlighted. It depends on nothing but its arguments.
func renderNavigation(tree *Tree, active string) string {
	var buf bytes.Buffer
	buf.WriteString(`<ul class="nav">`)
	for _, n := range tree.Children {
		renderNavEntry(n, active, &buf)
	}
	buf.WriteString(`</ul>`)
	return buf.String()
}

func renderNavEntry(node *Node, active string, buf *bytes.Buffer) {
	classes := []string{"nav-" + string(node.NodeType)}
	if node.Path == active {
		classes = append(classes, "active")
	}
	if node.NodeType == NodeDir && routeWithin(active, node.Path) && node.Path != active {
		classes = append(classes, "open")
	}

	fmt.Fprintf(buf, `<li class="%s">`, strings.Join(classes, " "))
	if node.NodeType == NodeDir {
		fmt.Fprintf(buf, `<a href="#%s" class="dropdown-toggle">%s</a>`,
			template.HTMLEscapeString(node.Path), template.HTMLEscapeString(node.displayName()))
		buf.WriteString(`<ul class="dropdown-menu">`)
		for _, child := range node.Children {
			renderNavEntry(child, active, buf)
		}
		buf.WriteString(`</ul>`)
	} else {
		fmt.Fprintf(buf, `<a href="#%s">%s</a>`,
			template.HTMLEscapeString(node.Path), template.HTMLEscapeString(node.displayName()))
	}
	buf.WriteString(`</li>`)
}

// renderOutline is the plain-text form of the navigation used on stdout
func renderOutline(tree *Tree, active string) string {
	var buf bytes.Buffer
	for _, n := range tree.Children {
		writeOutlineLine(&buf, n, active, "")
		for _, c := range n.Children {
			writeOutlineLine(&buf, c, active, "  ")
		}
	}
	return buf.String()
}

func writeOutlineLine(buf *bytes.Buffer, n *Node, active, indent string) {
	marker := " "
	if n.Path == active {
		marker = "*"
	}
	suffix := ""
	if n.NodeType == NodeDir {
		suffix = "/"
	}
	fmt.Fprintf(buf, "%s%s %s%s (%s)\n", marker, indent, n.displayName(), suffix, n.Path)
}
