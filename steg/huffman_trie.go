package steg

import (
	"fmt"
	"strings"

	"github.com/gammazero/deque"
)

// TrieNode addresses one node of a HuffmanTrie. NoNode is returned when a
// descent has nowhere to go.
type TrieNode int32

// NoNode is the null trie position
const NoNode TrieNode = -1

type trieNode struct {
	children [2]TrieNode
	symbol   uint8
	leaf     bool
}

// HuffmanTrie is a binary decision tree decoding canonical Huffman codes into
// 8-bit symbols. Nodes live in one arena so the trie is released as a whole
// and can be shared by several table slots without per-slot ownership.
type HuffmanTrie struct {
	nodes []trieNode
}

// TrieLeaf describes one decodable code of a trie
type TrieLeaf struct {
	Symbol uint8
	Code   uint16
	Depth  int
}

// BuildHuffmanTrie builds a trie from the 16 per-length counts of a DHT table
// and its flat symbol list. Codes are assigned canonically: shorter codes
// first, codes of equal length in symbol-list order.
func BuildHuffmanTrie(counts [maxCodeLength]uint8, symbols []uint8) (*HuffmanTrie, error) {
	total := 0
	for _, c := range counts {
		total += int(c)
	}
	if total != len(symbols) {
		return nil, errorf(ExitCodeFormatError,
			"huffman table declares %d codes but carries %d symbols", total, len(symbols))
	}
	if total == 0 {
		return nil, NewStegError(ExitCodeFormatError, "huffman table declares no codes")
	}

	t := &HuffmanTrie{nodes: make([]trieNode, 1, 2*total+1)}
	t.nodes[0] = trieNode{children: [2]TrieNode{NoNode, NoNode}}

	// open holds the positions at the current depth still waiting for a symbol
	var open deque.Deque[TrieNode]
	open.PushBack(t.addChild(0, 0))
	open.PushBack(t.addChild(0, 1))

	next := 0
	for depth := 1; depth <= maxCodeLength; depth++ {
		for i := 0; i < int(counts[depth-1]); i++ {
			if open.Len() == 0 {
				return nil, errorf(ExitCodeFormatError,
					"huffman table oversubscribes code length %d", depth)
			}
			n := open.PopFront()
			t.nodes[n].leaf = true
			t.nodes[n].symbol = symbols[next]
			next++
		}

		if depth == maxCodeLength || next == total {
			break
		}

		expand := open.Len()
		for i := 0; i < expand; i++ {
			n := open.PopFront()
			open.PushBack(t.addChild(n, 0))
			open.PushBack(t.addChild(n, 1))
		}
	}

	// Whatever is still open is an unused code. Those stay as childless
	// internal nodes and a descent through them ends at NoNode.
	t.prune()
	return t, nil
}

func (t *HuffmanTrie) addChild(parent TrieNode, bit uint8) TrieNode {
	t.nodes = append(t.nodes, trieNode{children: [2]TrieNode{NoNode, NoNode}})
	child := TrieNode(len(t.nodes) - 1)
	t.nodes[parent].children[bit] = child
	return child
}

// prune detaches any children hanging below a leaf, so no node is both a
// symbol and a branch.
func (t *HuffmanTrie) prune() {
	for i := range t.nodes {
		if t.nodes[i].leaf {
			t.nodes[i].children = [2]TrieNode{NoNode, NoNode}
		}
	}
}

// Root returns the start position for decoding a code
func (t *HuffmanTrie) Root() TrieNode {
	return 0
}

// Traverse returns the child of n selected by bit, or NoNode if n is a leaf,
// has no such child, or bit is not 0 or 1.
func (t *HuffmanTrie) Traverse(n TrieNode, bit uint8) TrieNode {
	if n < 0 || int(n) >= len(t.nodes) || bit > 1 {
		return NoNode
	}
	if t.nodes[n].leaf {
		return NoNode
	}
	return t.nodes[n].children[bit]
}

// IsLeaf reports whether n carries a symbol
func (t *HuffmanTrie) IsLeaf(n TrieNode) bool {
	return n >= 0 && int(n) < len(t.nodes) && t.nodes[n].leaf
}

// Symbol returns the symbol at leaf n
func (t *HuffmanTrie) Symbol(n TrieNode) uint8 {
	return t.nodes[n].symbol
}

// Leaves lists every code in the trie in canonical order
func (t *HuffmanTrie) Leaves() []TrieLeaf {
	var leaves []TrieLeaf
	t.walk(t.Root(), 0, 0, func(l TrieLeaf) {
		leaves = append(leaves, l)
	})
	return leaves
}

func (t *HuffmanTrie) walk(n TrieNode, code uint16, depth int, visit func(TrieLeaf)) {
	if n == NoNode {
		return
	}
	if t.nodes[n].leaf {
		visit(TrieLeaf{Symbol: t.nodes[n].symbol, Code: code, Depth: depth})
		return
	}
	t.walk(t.nodes[n].children[0], code<<1, depth+1, visit)
	t.walk(t.nodes[n].children[1], code<<1|1, depth+1, visit)
}

// String dumps the code table, one leaf per line
func (t *HuffmanTrie) String() string {
	var sb strings.Builder
	for _, l := range t.Leaves() {
		path := fmt.Sprintf("%0*b", l.Depth, l.Code)
		fmt.Fprintf(&sb, "Path: %16s, Value: %4d   Depth %2d\n", path, l.Symbol, l.Depth)
	}
	return sb.String()
}
