package merkle

import "context"

// TraverseSync walks the tree pre-order (parent, then left, then
// right). When visit returns false for a node, that node's children are
// skipped but its siblings are still visited.
func TraverseSync(n *Node, visit func(*Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	TraverseSync(n.Left, visit)
	TraverseSync(n.Right, visit)
}

// TraverseAsync is the context-aware, error-propagating counterpart to
// TraverseSync, used when visiting a node may perform I/O (for example,
// reading the shard a collection-level leaf refers to). It stops and
// returns the first error encountered, or ctx.Err() if the context is
// cancelled between nodes.
func TraverseAsync(ctx context.Context, n *Node, visit func(context.Context, *Node) (bool, error)) error {
	if n == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	descend, err := visit(ctx, n)
	if err != nil {
		return err
	}
	if !descend {
		return nil
	}
	if err := TraverseAsync(ctx, n.Left, visit); err != nil {
		return err
	}
	return TraverseAsync(ctx, n.Right, visit)
}
