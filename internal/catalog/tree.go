package catalog

import (
	"errors"
	"sort"
	"strings"
)

const PathSeparator = "/"

var ErrCategoryCycle = errors.New("category hierarchy contains a cycle")

type treeNode struct {
	name     string
	parentID int64
}

// Tree is an in-memory arena of categories keyed by id. A zero parent id marks a root.
type Tree struct {
	nodes map[int64]treeNode
}

func NewTree() *Tree {
	return &Tree{nodes: make(map[int64]treeNode)}
}

func (t *Tree) Add(id int64, name string, parentID *int64) {
	n := treeNode{name: name}
	if parentID != nil {
		n.parentID = *parentID
	}
	t.nodes[id] = n
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// Path walks parent links up to the root and renders "root/.../self".
func (t *Tree) Path(id int64) (string, error) {
	names := make([]string, 0, 4)
	seen := make(map[int64]struct{}, 4)
	for cur := id; cur != 0; {
		if _, dup := seen[cur]; dup {
			return "", ErrCategoryCycle
		}
		seen[cur] = struct{}{}

		n, ok := t.nodes[cur]
		if !ok {
			return "", ErrCategoryNotFound
		}
		names = append(names, n.name)
		cur = n.parentID
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, PathSeparator), nil
}

// Categories renders every node with its path, ordered by path.
func (t *Tree) Categories() ([]Category, error) {
	out := make([]Category, 0, len(t.nodes))
	for id, n := range t.nodes {
		path, err := t.Path(id)
		if err != nil {
			return nil, err
		}
		c := Category{ID: id, Name: n.name, Path: path}
		if n.parentID != 0 {
			p := n.parentID
			c.ParentID = &p
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SplitPath turns "A / B//C" into ["A","B","C"].
func SplitPath(raw string) []string {
	parts := strings.Split(raw, PathSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
