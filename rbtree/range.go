package rbtree

// Range queries walk a single root-to-leaf path. Whole subtrees that fall
// inside the range are collected in order without further comparisons.
// Every result is in ascending key order.

// Less returns nodes with keys strictly below key.
func (t *Tree[K, V]) Less(key K) []*Node[K, V] {
	return t.below(key, false)
}

// LessOrEquals returns nodes with keys at or below key.
func (t *Tree[K, V]) LessOrEquals(key K) []*Node[K, V] {
	return t.below(key, true)
}

// Great returns nodes with keys strictly above key.
func (t *Tree[K, V]) Great(key K) []*Node[K, V] {
	return t.above(key, false)
}

// GreatOrEquals returns nodes with keys at or above key.
func (t *Tree[K, V]) GreatOrEquals(key K) []*Node[K, V] {
	return t.above(key, true)
}

// NotEquals returns every node except the one holding key.
func (t *Tree[K, V]) NotEquals(key K) []*Node[K, V] {
	return append(t.below(key, false), t.above(key, false)...)
}

func (t *Tree[K, V]) below(key K, inclusive bool) []*Node[K, V] {
	var out []*Node[K, V]
	n := t.root
	for n != nil {
		c := t.cmp(n.Key, key)
		switch {
		case c < 0:
			out = appendInOrder(out, n.left)
			out = append(out, n)
			n = n.right
		case c == 0:
			out = appendInOrder(out, n.left)
			if inclusive {
				out = append(out, n)
			}
			return out
		default:
			n = n.left
		}
	}
	return out
}

func (t *Tree[K, V]) above(key K, inclusive bool) []*Node[K, V] {
	// collected in descending order, reversed at the end
	var out []*Node[K, V]
	n := t.root
	for n != nil {
		c := t.cmp(n.Key, key)
		switch {
		case c > 0:
			out = appendReverseOrder(out, n.right)
			out = append(out, n)
			n = n.left
		case c == 0:
			out = appendReverseOrder(out, n.right)
			if inclusive {
				out = append(out, n)
			}
			n = nil
		default:
			n = n.right
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func appendInOrder[K, V any](out []*Node[K, V], n *Node[K, V]) []*Node[K, V] {
	if n == nil {
		return out
	}
	out = appendInOrder(out, n.left)
	out = append(out, n)
	return appendInOrder(out, n.right)
}

func appendReverseOrder[K, V any](out []*Node[K, V], n *Node[K, V]) []*Node[K, V] {
	if n == nil {
		return out
	}
	out = appendReverseOrder(out, n.right)
	out = append(out, n)
	return appendReverseOrder(out, n.left)
}
