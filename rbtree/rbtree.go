// Package rbtree implements a red-black tree with parent links.
//
// The tree owns its nodes. Callers may hold *Node values between calls but a
// Delete can move a key/value pair into another node, so a held node is only
// meaningful until the next Delete.
package rbtree

import "iter"

type color bool

const (
	red   color = false
	black color = true
)

type Node[K, V any] struct {
	Key   K
	Value V

	color               color
	left, right, parent *Node[K, V]
}

// IsRed reports the node color; nil nodes are black.
func (n *Node[K, V]) IsRed() bool {
	return n != nil && n.color == red
}

type Tree[K, V any] struct {
	root *Node[K, V]
	size int
	cmp  func(a, b K) int
}

// New creates an empty tree ordered by cmp.
func New[K, V any](cmp func(a, b K) int) *Tree[K, V] {
	return &Tree[K, V]{cmp: cmp}
}

func (t *Tree[K, V]) Len() int         { return t.size }
func (t *Tree[K, V]) Min() *Node[K, V] { return minimum(t.root) }
func (t *Tree[K, V]) Max() *Node[K, V] { return maximum(t.root) }

// Find returns the node holding key or nil.
func (t *Tree[K, V]) Find(key K) *Node[K, V] {
	n := t.root
	for n != nil {
		switch c := t.cmp(key, n.Key); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n
		}
	}
	return nil
}

// InsertOrGetExists returns the node for key, inserting an empty one when
// the key is new. created reports whether the node was inserted.
func (t *Tree[K, V]) InsertOrGetExists(key K) (node *Node[K, V], created bool) {
	var parent *Node[K, V]
	cur := t.root
	c := 0
	for cur != nil {
		parent = cur
		c = t.cmp(key, cur.Key)
		switch {
		case c < 0:
			cur = cur.left
		case c > 0:
			cur = cur.right
		default:
			return cur, false
		}
	}

	n := &Node[K, V]{Key: key, color: red, parent: parent}
	switch {
	case parent == nil:
		t.root = n
	case c < 0:
		parent.left = n
	default:
		parent.right = n
	}
	t.size++
	t.insertFixup(n)
	return n, true
}

func (t *Tree[K, V]) insertFixup(z *Node[K, V]) {
	for z.parent.IsRed() {
		gp := z.parent.parent
		if z.parent == gp.left {
			uncle := gp.right
			if uncle.IsRed() {
				z.parent.color = black
				uncle.color = black
				gp.color = red
				z = gp
				continue
			}
			if z == z.parent.right {
				// triangle, turn it into a line
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.color = black
			gp.color = red
			t.rotateRight(gp)
		} else {
			uncle := gp.left
			if uncle.IsRed() {
				z.parent.color = black
				uncle.color = black
				gp.color = red
				z = gp
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.color = black
			gp.color = red
			t.rotateLeft(gp)
		}
	}
	t.root.color = black
}

// Delete removes key. A node with two children takes over the key and value
// of its in-order successor, and the successor node is unlinked instead.
func (t *Tree[K, V]) Delete(key K) bool {
	z := t.Find(key)
	if z == nil {
		return false
	}
	if z.left != nil && z.right != nil {
		s := minimum(z.right)
		z.Key, z.Value = s.Key, s.Value
		z = s
	}

	child := z.left
	if child == nil {
		child = z.right
	}
	switch {
	case child != nil:
		t.transplant(z, child)
		if z.color == black {
			t.deleteFixup(child)
		}
	case z.parent == nil:
		t.root = nil
	default:
		// z is a leaf: fix up with z standing in as the double black node, then unlink it
		if z.color == black {
			t.deleteFixup(z)
		}
		if z == z.parent.left {
			z.parent.left = nil
		} else {
			z.parent.right = nil
		}
		z.parent = nil
	}
	t.size--
	return true
}

func (t *Tree[K, V]) deleteFixup(x *Node[K, V]) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.IsRed() {
				w.color = black
				x.parent.color = red
				t.rotateLeft(x.parent)
				w = x.parent.right
			}
			if !w.left.IsRed() && !w.right.IsRed() {
				w.color = red
				x = x.parent
				continue
			}
			if !w.right.IsRed() {
				// near child red, rotate it to the far side
				w.left.color = black
				w.color = red
				t.rotateRight(w)
				w = x.parent.right
			}
			w.color = x.parent.color
			x.parent.color = black
			w.right.color = black
			t.rotateLeft(x.parent)
			x = t.root
		} else {
			w := x.parent.left
			if w.IsRed() {
				w.color = black
				x.parent.color = red
				t.rotateRight(x.parent)
				w = x.parent.left
			}
			if !w.left.IsRed() && !w.right.IsRed() {
				w.color = red
				x = x.parent
				continue
			}
			if !w.left.IsRed() {
				w.right.color = black
				w.color = red
				t.rotateLeft(w)
				w = x.parent.left
			}
			w.color = x.parent.color
			x.parent.color = black
			w.left.color = black
			t.rotateRight(x.parent)
			x = t.root
		}
	}
	x.color = black
}

func (t *Tree[K, V]) transplant(u, v *Node[K, V]) {
	switch {
	case u.parent == nil:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *Tree[K, V]) rotateLeft(x *Node[K, V]) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *Tree[K, V]) rotateRight(x *Node[K, V]) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func minimum[K, V any](n *Node[K, V]) *Node[K, V] {
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

func maximum[K, V any](n *Node[K, V]) *Node[K, V] {
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

func successor[K, V any](n *Node[K, V]) *Node[K, V] {
	if n.right != nil {
		return minimum(n.right)
	}
	p := n.parent
	for p != nil && n == p.right {
		n, p = p, p.parent
	}
	return p
}

func predecessor[K, V any](n *Node[K, V]) *Node[K, V] {
	if n.left != nil {
		return maximum(n.left)
	}
	p := n.parent
	for p != nil && n == p.left {
		n, p = p, p.parent
	}
	return p
}

// Ascend iterates nodes in ascending key order. The tree must not be
// modified while iterating.
func (t *Tree[K, V]) Ascend() iter.Seq[*Node[K, V]] {
	return func(yield func(*Node[K, V]) bool) {
		for n := t.Min(); n != nil; n = successor(n) {
			if !yield(n) {
				return
			}
		}
	}
}

// Descend iterates nodes in descending key order.
func (t *Tree[K, V]) Descend() iter.Seq[*Node[K, V]] {
	return func(yield func(*Node[K, V]) bool) {
		for n := t.Max(); n != nil; n = predecessor(n) {
			if !yield(n) {
				return
			}
		}
	}
}

// PreOrder iterates nodes root first, the order used for serialization.
func (t *Tree[K, V]) PreOrder() iter.Seq[*Node[K, V]] {
	return func(yield func(*Node[K, V]) bool) {
		if t.root == nil {
			return
		}
		stack := []*Node[K, V]{t.root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(n) {
				return
			}
			if n.right != nil {
				stack = append(stack, n.right)
			}
			if n.left != nil {
				stack = append(stack, n.left)
			}
		}
	}
}
