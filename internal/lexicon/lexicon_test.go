package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/word-game/internal/errors"
)

// writeDict 写入测试词库文件
func writeDict(t *testing.T, dir, language string, words string) {
	t.Helper()
	path := filepath.Join(dir, language+".txt")
	require.NoError(t, os.WriteFile(path, []byte(words), 0644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeDict(t, dir, "english", "Cat\ndog\n\nCART\n  bird  \n")

	lex, err := Load(dir, "english")
	require.NoError(t, err)

	assert.Equal(t, "english", lex.Language())
	assert.Equal(t, 4, lex.Size())

	// 单词统一转为小写
	assert.True(t, lex.Contains("cat"))
	assert.True(t, lex.Contains("CART"))
	assert.True(t, lex.Contains("  bird "))
	assert.False(t, lex.Contains("fish"))
}

func TestLoad_UnsupportedLanguage(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, "klingon")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedLanguage))
}

func TestLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeDict(t, dir, "english", "\n\n  \n")

	_, err := Load(dir, "english")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLexiconEmpty))
}

func TestFindFirstContaining(t *testing.T) {
	lex := New("english", []string{"cat", "dog", "cart"})

	word, ok := lex.FindFirstContaining("ca", nil)
	require.True(t, ok)
	assert.Contains(t, []string{"cat", "cart"}, word)

	// 排除已用词后仍能找到其他候选
	word, ok = lex.FindFirstContaining("ca", map[string]struct{}{"cat": {}})
	require.True(t, ok)
	assert.Equal(t, "cart", word)

	// 全部排除后找不到
	_, ok = lex.FindFirstContaining("ca", map[string]struct{}{"cat": {}, "cart": {}})
	assert.False(t, ok)

	_, ok = lex.FindFirstContaining("xyz", nil)
	assert.False(t, ok)
}

func TestAllContaining(t *testing.T) {
	lex := New("english", []string{"cat", "dog", "cart", "scar"})

	words := lex.AllContaining("ca")
	assert.ElementsMatch(t, []string{"cat", "cart", "scar"}, words)

	assert.Empty(t, lex.AllContaining("zz"))
}

func TestManager(t *testing.T) {
	dir := t.TempDir()
	writeDict(t, dir, "english", "cat\ndog\n")

	m := NewManager(dir)

	lex1, err := m.Get("english")
	require.NoError(t, err)

	// 二次获取命中缓存，返回同一实例
	lex2, err := m.Get("english")
	require.NoError(t, err)
	assert.Same(t, lex1, lex2)

	_, err = m.Get("french")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedLanguage))
}
