package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "hello, world! (really)", "hello world really"},
		{"collapses whitespace", "hello    world\n\ttoday", "hello world today"},
		{"keeps digits", "version 2 of 3", "version 2 of 3"},
		{"empty", "", ""},
		{"punctuation only", "!?.,;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("The quick brown fox.")
	b := Fingerprint("The quick brown fox.")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_CanonicalisesBeforeHashing(t *testing.T) {
	// Case, punctuation and whitespace differences produce the same fingerprint
	a := Fingerprint("The quick brown fox!")
	b := Fingerprint("the   QUICK brown fox")
	assert.Equal(t, a, b)

	c := Fingerprint("an entirely different text")
	assert.NotEqual(t, a, c)
}

func TestJaccard_Properties(t *testing.T) {
	a := WordSet("the cat sat on the mat")
	b := WordSet("the dog sat on the mat")
	c := WordSet("completely unrelated words here")

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
		assert.Equal(t, Jaccard(a, c), Jaccard(c, a))
	})

	t.Run("bounded", func(t *testing.T) {
		for _, pair := range [][2]map[string]struct{}{{a, b}, {a, c}, {b, c}} {
			similarity := Jaccard(pair[0], pair[1])
			assert.GreaterOrEqual(t, similarity, 0.0)
			assert.LessOrEqual(t, similarity, 1.0)
		}
	})

	t.Run("identical normalised text yields 1", func(t *testing.T) {
		x := WordSet("Some Article Text!")
		y := WordSet("some article text")
		assert.Equal(t, 1.0, Jaccard(x, y))
	})

	t.Run("disjoint sets yield 0", func(t *testing.T) {
		assert.Equal(t, 0.0, Jaccard(WordSet("aaa bbb"), WordSet("ccc ddd")))
	})

	t.Run("empty sets", func(t *testing.T) {
		empty := WordSet("")
		assert.Equal(t, 1.0, Jaccard(empty, WordSet("")))
		assert.Equal(t, 0.0, Jaccard(empty, a))
	})

	t.Run("known value", func(t *testing.T) {
		// {a,b,c} vs {b,c,d}: intersection 2, union 4
		assert.InDelta(t, 0.5, Jaccard(WordSet("a b c"), WordSet("b c d")), 1e-9)
	})
}
