package steg

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// descend follows the bits of a path string and returns the node reached
func descend(trie *HuffmanTrie, path string) TrieNode {
	n := trie.Root()
	for _, c := range path {
		n = trie.Traverse(n, uint8(c-'0'))
		if n == NoNode {
			return NoNode
		}
	}
	return n
}

func TestBuildHuffmanTrieCanonicalCodes(t *testing.T) {
	trie, err := BuildHuffmanTrie(testACCounts, testACSymbols)
	require.NoError(t, err)

	want := canonicalCodes(testACCounts, testACSymbols)
	leaves := trie.Leaves()
	require.Len(t, leaves, len(testACSymbols))

	for _, l := range leaves {
		code, ok := want[l.Symbol]
		require.True(t, ok, "unexpected symbol %02X", l.Symbol)
		assert.Equal(t, int(code.length), l.Depth, "depth of %02X", l.Symbol)
		assert.Equal(t, uint16(code.code), l.Code, "code of %02X", l.Symbol)
	}

	// Leaves come out in canonical order, which is symbol-list order
	for i, l := range leaves {
		assert.Equal(t, testACSymbols[i], l.Symbol)
	}
}

func TestBuildHuffmanTrieLeafDepths(t *testing.T) {
	counts := [maxCodeLength]uint8{0, 1, 5, 1, 1, 1, 1, 1, 1}
	symbols := []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	trie, err := BuildHuffmanTrie(counts, symbols)
	require.NoError(t, err)

	perDepth := map[int]int{}
	for _, l := range trie.Leaves() {
		perDepth[l.Depth]++
	}
	for i, c := range counts {
		assert.Equal(t, int(c), perDepth[i+1], "leaves at depth %d", i+1)
	}
}

func TestBuildHuffmanTrieSingleLongCode(t *testing.T) {
	var counts [maxCodeLength]uint8
	counts[15] = 1
	trie, err := BuildHuffmanTrie(counts, []uint8{0x42})
	require.NoError(t, err)

	leaves := trie.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, 16, leaves[0].Depth)
	assert.Equal(t, uint8(0x42), leaves[0].Symbol)

	// Canonical assignment hands the first code of a length the all-zeros path
	n := descend(trie, strings.Repeat("0", 16))
	require.True(t, trie.IsLeaf(n))
	assert.Equal(t, uint8(0x42), trie.Symbol(n))

	assert.Equal(t, NoNode, descend(trie, strings.Repeat("1", 16)))
	assert.False(t, trie.IsLeaf(descend(trie, strings.Repeat("0", 15))))
}

func TestHuffmanTrieTraverse(t *testing.T) {
	trie, err := BuildHuffmanTrie(testDCCounts, testDCSymbols)
	require.NoError(t, err)

	leaf := descend(trie, "01")
	require.True(t, trie.IsLeaf(leaf))
	assert.Equal(t, uint8(1), trie.Symbol(leaf))

	assert.Equal(t, NoNode, trie.Traverse(leaf, 0), "leaves have no children")
	assert.Equal(t, NoNode, trie.Traverse(trie.Root(), 2), "bits other than 0 and 1")
	assert.Equal(t, NoNode, trie.Traverse(NoNode, 0))
	assert.False(t, trie.IsLeaf(trie.Root()))
}

func TestBuildHuffmanTrieErrors(t *testing.T) {
	testCases := []struct {
		name    string
		counts  [maxCodeLength]uint8
		symbols []uint8
	}{
		{"count mismatch", [maxCodeLength]uint8{0, 2}, []uint8{1}},
		{"empty table", [maxCodeLength]uint8{}, nil},
		{"oversubscribed", [maxCodeLength]uint8{3}, []uint8{1, 2, 3}},
		{"oversubscribed deeper", [maxCodeLength]uint8{1, 2, 2}, []uint8{1, 2, 3, 4, 5}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildHuffmanTrie(tc.counts, tc.symbols)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))
		})
	}
}

func TestHuffmanTrieString(t *testing.T) {
	trie, err := BuildHuffmanTrie(testDCCounts, testDCSymbols)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(trie.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Path:               00, Value:    0   Depth  2", lines[0])
	assert.Equal(t, "Path:              111, Value:    4   Depth  3", lines[4])
}
