package plandefinition

import "strconv"

// OutlineNode is a display form of one action and its whole subtree.
type OutlineNode struct {
	Depth       int           `json:"depth"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Definition  string        `json:"definition,omitempty"`
	Timing      *Timing       `json:"timing,omitempty"`
	Conditions  []Condition   `json:"conditions,omitempty"`
	Children    []OutlineNode `json:"children,omitempty"`
}

// Outline renders every action at every depth. Apply only looks one level
// down; Outline is for reading the full protocol.
func Outline(def *Definition) []OutlineNode {
	return outline(def.Actions, 0)
}

func outline(actions []Action, depth int) []OutlineNode {
	if len(actions) == 0 {
		return nil
	}
	nodes := make([]OutlineNode, 0, len(actions))
	for i, a := range actions {
		title := a.Title
		if title == "" {
			title = a.Description
		}
		if title == "" {
			title = "Action " + strconv.Itoa(i+1)
		}
		nodes = append(nodes, OutlineNode{
			Depth:       depth,
			Title:       title,
			Description: a.Description,
			Definition:  a.DefinitionCanonical,
			Timing:      a.Timing,
			Conditions:  a.Conditions,
			Children:    outline(a.Children, depth+1),
		})
	}
	return nodes
}

// Count returns the number of nodes in the outline, all depths included.
func Count(nodes []OutlineNode) int {
	n := len(nodes)
	for _, node := range nodes {
		n += Count(node.Children)
	}
	return n
}
