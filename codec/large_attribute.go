package codec

import (
	"fmt"
	"sort"
	"strconv"
)

// DefaultPartLimit stays under the 32 KiB ceiling of the host attribute tree.
const DefaultPartLimit = 30000

// AttributeTree is a string-keyed store of byte and int attributes with a
// per-value size ceiling, like the save-game attribute trees of the host.
type AttributeTree interface {
	HasAttribute(key string) bool
	GetBytes(key string) []byte
	SetBytes(key string, value []byte)
	GetInt(key string) (int, bool)
	SetInt(key string, value int)
	RemoveAttribute(key string)
}

func partsKey(key string) string       { return key + "_parts" }
func totalLengthKey(key string) string { return key + "_totalLength" }
func partKey(key string, i int) string { return key + "_" + strconv.Itoa(i) }

// SplitParts cuts value into consecutive parts of at most limit bytes.
func SplitParts(value []byte, limit int) [][]byte {
	if limit <= 0 {
		panic("codec: part limit must be positive")
	}
	n := (len(value) + limit - 1) / limit
	parts := make([][]byte, 0, n)
	for offset := 0; offset < len(value); offset += limit {
		end := offset + limit
		if end > len(value) {
			end = len(value)
		}
		parts = append(parts, value[offset:end])
	}
	return parts
}

// JoinParts concatenates parts and checks them against the recorded total length.
func JoinParts(parts [][]byte, totalLength int) ([]byte, error) {
	if totalLength < 0 {
		return nil, fmt.Errorf("%w: total length %d", ErrCorrupted, totalLength)
	}
	out := make([]byte, 0, totalLength)
	for i, part := range parts {
		if part == nil || len(out)+len(part) > totalLength {
			return nil, fmt.Errorf("%w: large attribute part %d", ErrCorrupted, i)
		}
		out = append(out, part...)
	}
	if len(out) != totalLength {
		return nil, fmt.Errorf("%w: large attribute has %d of %d bytes", ErrCorrupted, len(out), totalLength)
	}
	return out, nil
}

func HasLargeAttribute(tree AttributeTree, key string) bool {
	return tree.HasAttribute(key) || tree.HasAttribute(partsKey(key))
}

// SetBytesLarge stores value under key, splitting it into numbered parts
// with a part count and total length header when it exceeds limit.
// It returns the number of parts written.
func SetBytesLarge(tree AttributeTree, key string, value []byte, limit int) int {
	RemoveLarge(tree, key)
	if len(value) <= limit {
		tree.SetBytes(key, value)
		return 1
	}

	parts := SplitParts(value, limit)
	tree.SetInt(partsKey(key), len(parts))
	tree.SetInt(totalLengthKey(key), len(value))
	for i, part := range parts {
		tree.SetBytes(partKey(key, i), part)
	}
	return len(parts)
}

// GetBytesLarge reassembles a value written by SetBytesLarge. It returns
// nil and no error when the key is absent.
func GetBytesLarge(tree AttributeTree, key string) ([]byte, error) {
	if tree.HasAttribute(key) {
		return tree.GetBytes(key), nil
	}
	numParts, ok := tree.GetInt(partsKey(key))
	if !ok {
		return nil, nil
	}
	totalLength, _ := tree.GetInt(totalLengthKey(key))
	if numParts <= 0 || totalLength <= 0 {
		return nil, fmt.Errorf("%w: large attribute %q header", ErrCorrupted, key)
	}

	parts := make([][]byte, numParts)
	for i := range parts {
		parts[i] = tree.GetBytes(partKey(key, i))
	}
	return JoinParts(parts, totalLength)
}

// RemoveLarge drops key together with any parts from an earlier split.
func RemoveLarge(tree AttributeTree, key string) {
	tree.RemoveAttribute(key)
	if n, ok := tree.GetInt(partsKey(key)); ok {
		for i := 0; i < n; i++ {
			tree.RemoveAttribute(partKey(key, i))
		}
	}
	tree.RemoveAttribute(partsKey(key))
	tree.RemoveAttribute(totalLengthKey(key))
}

// MemoryTree is an in-process AttributeTree.
type MemoryTree struct {
	bytes map[string][]byte
	ints  map[string]int
}

func NewMemoryTree() *MemoryTree {
	return &MemoryTree{bytes: map[string][]byte{}, ints: map[string]int{}}
}

func (t *MemoryTree) HasAttribute(key string) bool {
	if _, ok := t.bytes[key]; ok {
		return true
	}
	_, ok := t.ints[key]
	return ok
}

func (t *MemoryTree) GetBytes(key string) []byte { return t.bytes[key] }

func (t *MemoryTree) SetBytes(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	t.bytes[key] = value
}

func (t *MemoryTree) GetInt(key string) (int, bool) {
	v, ok := t.ints[key]
	return v, ok
}

func (t *MemoryTree) SetInt(key string, value int) { t.ints[key] = value }

func (t *MemoryTree) RemoveAttribute(key string) {
	delete(t.bytes, key)
	delete(t.ints, key)
}

// Keys lists every attribute name in sorted order.
func (t *MemoryTree) Keys() []string {
	keys := make([]string, 0, len(t.bytes)+len(t.ints))
	for k := range t.bytes {
		keys = append(keys, k)
	}
	for k := range t.ints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ByteAttributes and IntAttributes expose the raw maps for persistence layers.
func (t *MemoryTree) ByteAttributes() map[string][]byte { return t.bytes }
func (t *MemoryTree) IntAttributes() map[string]int     { return t.ints }

// Clone returns a deep copy of t.
func (t *MemoryTree) Clone() *MemoryTree {
	out := NewMemoryTree()
	for k, v := range t.bytes {
		out.bytes[k] = append([]byte{}, v...)
	}
	for k, v := range t.ints {
		out.ints[k] = v
	}
	return out
}
