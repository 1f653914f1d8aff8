package snapshot

import (
	"sort"
	"strconv"
	"strings"
)

type treeNode struct {
	name     string
	children map[string]*treeNode
	files    int // Files at or below this node
}

func newTreeNode(name string) *treeNode {
	return &treeNode{name: name, children: map[string]*treeNode{}}
}

// RenderTree draws paths as a directory tree rooted at rootName. Directories
// deeper than maxDepth are collapsed into a file count.
func RenderTree(rootName string, paths []string, maxDepth int) string {
	root := newTreeNode(rootName)
	for _, p := range paths {
		node := root
		node.files++
		for _, part := range strings.Split(p, "/") {
			child, ok := node.children[part]
			if !ok {
				child = newTreeNode(part)
				node.children[part] = child
			}
			child.files++
			node = child
		}
	}

	var b strings.Builder
	b.WriteString(rootName + "/\n")
	renderChildren(&b, root, "", 1, maxDepth)
	return b.String()
}

func renderChildren(b *strings.Builder, node *treeNode, prefix string, depth, maxDepth int) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	// Directories first, then files, each alphabetical.
	sort.Slice(names, func(i, j int) bool {
		di, dj := len(node.children[names[i]].children) > 0, len(node.children[names[j]].children) > 0
		if di != dj {
			return di
		}
		return names[i] < names[j]
	})

	for i, name := range names {
		child := node.children[name]
		last := i == len(names)-1
		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "└── ", "    "
		}

		if len(child.children) == 0 {
			b.WriteString(prefix + connector + name + "\n")
			continue
		}
		if depth >= maxDepth {
			b.WriteString(prefix + connector + name + "/ (" + plural(child.files, "file") + ")\n")
			continue
		}
		b.WriteString(prefix + connector + name + "/\n")
		renderChildren(b, child, prefix+indent, depth+1, maxDepth)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
