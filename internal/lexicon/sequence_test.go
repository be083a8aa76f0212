package lexicon

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(seed int64) *SequenceGenerator {
	return NewSequenceGenerator(rand.New(rand.NewSource(seed)), 100)
}

func TestSequenceGenerator_Next(t *testing.T) {
	lex := New("english", []string{"cat", "dog", "cart", "bird", "horse"})
	g := newTestGenerator(1)

	// 每次生成的序列必须至少被一个词包含
	for i := 0; i < 50; i++ {
		seq, err := g.Next(lex, 2, nil)
		require.NoError(t, err)
		assert.Len(t, seq, 2)
		assert.True(t, lex.HasContaining(seq), "序列 %q 不被任何词包含", seq)
	}

	for i := 0; i < 50; i++ {
		seq, err := g.Next(lex, 3, nil)
		require.NoError(t, err)
		assert.Len(t, seq, 3)
		assert.True(t, lex.HasContaining(seq))
	}
}

func TestSequenceGenerator_Avoid(t *testing.T) {
	lex := New("english", []string{"cat", "dog", "bird", "fish", "horse", "mouse"})
	g := newTestGenerator(2)

	// 正常词库下避让列表应被尊重
	for i := 0; i < 30; i++ {
		seq, err := g.Next(lex, 2, []string{"ca", "do"})
		require.NoError(t, err)
		assert.NotContains(t, []string{"ca", "do"}, seq)
	}
}

func TestSequenceGenerator_AvoidFallback(t *testing.T) {
	// 词库里只存在 "ab" 和 "ba" 两种2字序列，全部列入避让列表，
	// 生成器应放弃避让并返回其中之一，而不是死循环
	lex := New("english", []string{"ab", "ba"})
	g := newTestGenerator(3)

	seq, err := g.Next(lex, 2, []string{"ab", "ba"})
	require.NoError(t, err)
	assert.Contains(t, []string{"ab", "ba"}, seq)
}

func TestSequenceGenerator_TooShortWords(t *testing.T) {
	lex := New("english", []string{"ab", "cd"})
	g := newTestGenerator(4)

	// 没有长度不小于3的词，无法生成3字序列
	_, err := g.Next(lex, 3, nil)
	require.Error(t, err)
}

func TestSequenceGenerator_LengthClamp(t *testing.T) {
	lex := New("english", []string{"abcdef"})
	g := newTestGenerator(5)

	// 长度限定在2到3之间
	seq, err := g.Next(lex, 1, nil)
	require.NoError(t, err)
	assert.Len(t, seq, 2)

	seq, err = g.Next(lex, 9, nil)
	require.NoError(t, err)
	assert.Len(t, seq, 3)
	assert.True(t, strings.Contains("abcdef", seq))
}

func TestSequenceGenerator_RandomLength(t *testing.T) {
	g := newTestGenerator(6)
	for i := 0; i < 20; i++ {
		n := g.RandomLength()
		assert.Contains(t, []int{2, 3}, n)
	}
}
