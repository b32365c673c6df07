// Package scope builds the declaration tree of a merged trace.
//
// Every input is nested under a synthetic root scope of its own, so inputs
// that use the same scope names never end up sharing a scope. Variables keep
// all their attributes except the identifier, which is replaced by a code
// from the run's allocator.
package scope

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"vcdmerge/internal/idcode"
	"vcdmerge/internal/vcd"
)

// RootKind is the scope kind of the per-input roots.
const RootKind = "module"

// DefaultLabel is the label template used when none is configured.
const DefaultLabel = "input{index}"

// Remap translates the identifiers of one input into merged identifiers.
type Remap map[string]string

// Signal describes one declaration of the merged trace.
type Signal struct {
	Source int      // input index, 0-based
	Path   []string // enclosing scopes below the input root
	Orig   string   // identifier in the input
	Var    *vcd.Var // declaration with the merged identifier
}

// Input is the synthetic root of one input.
type Input struct {
	Source int
	Label  string
	Root   *vcd.Scope
}

// Tree is the composed declaration tree.
type Tree struct {
	Inputs  []Input
	Signals []Signal
}

// Items returns the top-level items of the merged header.
func (t *Tree) Items() []vcd.Item {
	items := make([]vcd.Item, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		items = append(items, vcd.Item{Scope: in.Root})
	}
	return items
}

// Composer merges input headers one at a time, in input order.
type Composer struct {
	alloc  *idcode.Allocator
	tree   Tree
	labels map[string]struct{}
}

// NewComposer returns a composer that draws identifiers from alloc.
func NewComposer(alloc *idcode.Allocator) *Composer {
	return &Composer{
		alloc:  alloc,
		labels: make(map[string]struct{}),
	}
}

// Add nests the declarations of input source under a root scope named label
// and returns the identifier translation for the input's body. A label that
// is already taken gets the 1-based input number appended.
func (c *Composer) Add(source int, label string, h *vcd.Header) (Remap, error) {
	label = c.uniqueLabel(label, source)
	remap := make(Remap, h.Vars())
	root := &vcd.Scope{Kind: RootKind, Name: label}

	items, err := c.copyItems(source, h.Items, nil, remap)
	if err != nil {
		return nil, fmt.Errorf("input %d (%s): %w", source+1, label, err)
	}
	root.Items = items
	c.tree.Inputs = append(c.tree.Inputs, Input{Source: source, Label: label, Root: root})
	return remap, nil
}

// Tree returns everything composed so far.
func (c *Composer) Tree() *Tree { return &c.tree }

func (c *Composer) copyItems(source int, items []vcd.Item, path []string, remap Remap) ([]vcd.Item, error) {
	out := make([]vcd.Item, 0, len(items))
	for _, it := range items {
		switch {
		case it.Scope != nil:
			sub := append(path[:len(path):len(path)], it.Scope.Name)
			children, err := c.copyItems(source, it.Scope.Items, sub, remap)
			if err != nil {
				return nil, err
			}
			out = append(out, vcd.Item{Scope: &vcd.Scope{
				Kind:  it.Scope.Kind,
				Name:  it.Scope.Name,
				Items: children,
			}})

		case it.Var != nil:
			id, ok := remap[it.Var.ID]
			if !ok {
				var err error
				if id, err = c.alloc.Allocate(); err != nil {
					return nil, err
				}
				remap[it.Var.ID] = id
			}
			v := *it.Var
			v.ID = id
			c.tree.Signals = append(c.tree.Signals, Signal{
				Source: source,
				Path:   path,
				Orig:   it.Var.ID,
				Var:    &v,
			})
			out = append(out, vcd.Item{Var: &v})
		}
	}
	return out, nil
}

func (c *Composer) uniqueLabel(label string, source int) string {
	if label == "" {
		label = Label(DefaultLabel, source, "")
	}
	candidate := label
	for n := 2; ; n++ {
		if _, taken := c.labels[candidate]; !taken {
			break
		}
		candidate = label + "_" + strconv.Itoa(source+1)
		if n > 2 {
			candidate += "_" + strconv.Itoa(n)
		}
	}
	c.labels[candidate] = struct{}{}
	return candidate
}

// Label expands a label template for input source read from path.
// "{index}" becomes the 1-based input number and "{name}" the file name
// without its extension.
func Label(template string, source int, path string) string {
	if template == "" {
		template = DefaultLabel
	}
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return '_'
		}
		return r
	}, name)
	r := strings.NewReplacer("{index}", strconv.Itoa(source+1), "{name}", name)
	return r.Replace(template)
}
