package router

import "strings"

// cmdNode is one alias word. Commands sharing the alias path ending here are
// kept in registration order.
type cmdNode struct {
	cmds []Command
	next map[string]*cmdNode
}

func newRoot() *cmdNode { return &cmdNode{next: map[string]*cmdNode{}} }

func splitRoute(alias string) []string { return strings.Fields(foldCase(alias)) }

func (n *cmdNode) add(route []string, c Command) {
	for _, w := range route {
		child := n.next[w]
		if child == nil {
			child = newRoot()
			n.next[w] = child
		}
		n = child
	}
	for _, have := range n.cmds {
		if have.Name == c.Name {
			return
		}
	}
	n.cmds = append(n.cmds, c)
}

// match follows words as far as the tree goes and returns the deepest node
// holding a command, with the number of words it consumed.
func (n *cmdNode) match(words []string) (best *cmdNode, used int) {
	for i, w := range words {
		if n = n.next[w]; n == nil {
			break
		}
		if len(n.cmds) > 0 {
			best, used = n, i+1
		}
	}
	return best, used
}

// pick prefers an exact ArgsNone/ArgsRequired fit, then the first ArgsAny.
func (n *cmdNode) pick(hasArgs bool) (Command, bool) {
	var fallback *Command
	for i := range n.cmds {
		c := &n.cmds[i]
		switch {
		case c.Args == ArgsNone && !hasArgs, c.Args == ArgsRequired && hasArgs:
			return *c, true
		case c.Args == ArgsAny && fallback == nil:
			fallback = c
		}
	}
	if fallback == nil {
		return Command{}, false
	}
	return *fallback, true
}
