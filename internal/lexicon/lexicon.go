package lexicon

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wfunc/word-game/internal/errors"
)

// Lexicon 某一语言的词库，加载后不可变，可在多局游戏间只读共享
type Lexicon struct {
	language string
	words    map[string]struct{}
	ordered  []string // 为随机抽样和遍历保留的有序副本
}

// New 从单词列表构造词库（单词会统一转为小写并去除空白）
func New(language string, words []string) *Lexicon {
	set := make(map[string]struct{}, len(words))
	ordered := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, exists := set[w]; exists {
			continue
		}
		set[w] = struct{}{}
		ordered = append(ordered, w)
	}
	return &Lexicon{
		language: language,
		words:    set,
		ordered:  ordered,
	}
}

// Load 从词库目录加载指定语言的词库文件（<dir>/<language>.txt）
func Load(dir, language string) (*Lexicon, error) {
	path := filepath.Join(dir, language+".txt")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrUnsupportedLanguage, "语言: %s", language)
		}
		return nil, errors.Wrap(err, errors.ErrLexiconLoad)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrLexiconLoad)
	}

	lex := New(language, words)
	if lex.Size() == 0 {
		return nil, errors.Newf(errors.ErrLexiconEmpty, "语言: %s", language)
	}

	return lex, nil
}

// Language 返回词库语言
func (l *Lexicon) Language() string {
	return l.language
}

// Size 返回词库单词数量
func (l *Lexicon) Size() int {
	return len(l.ordered)
}

// Contains 判断单词是否在词库中（输入会被规范化）
func (l *Lexicon) Contains(word string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	_, ok := l.words[word]
	return ok
}

// HasContaining 判断是否存在包含指定序列的单词
func (l *Lexicon) HasContaining(seq string) bool {
	for _, w := range l.ordered {
		if strings.Contains(w, seq) {
			return true
		}
	}
	return false
}

// FindFirstContaining 查找第一个包含序列且不在排除集中的单词
func (l *Lexicon) FindFirstContaining(seq string, excluding map[string]struct{}) (string, bool) {
	for _, w := range l.ordered {
		if !strings.Contains(w, seq) {
			continue
		}
		if _, used := excluding[w]; used {
			continue
		}
		return w, true
	}
	return "", false
}

// AllContaining 返回所有包含序列的单词
func (l *Lexicon) AllContaining(seq string) []string {
	var result []string
	for _, w := range l.ordered {
		if strings.Contains(w, seq) {
			result = append(result, w)
		}
	}
	return result
}

// RandomWord 随机抽取一个长度不小于minLen的单词
func (l *Lexicon) RandomWord(minLen int, rng *rand.Rand) (string, bool) {
	// 随机起点扫描，避免每次调用都重建候选列表
	n := len(l.ordered)
	if n == 0 {
		return "", false
	}
	start := rng.Intn(n)
	for i := 0; i < n; i++ {
		w := l.ordered[(start+i)%n]
		if len(w) >= minLen {
			return w, true
		}
	}
	return "", false
}

// Manager 词库管理器，按语言缓存词库，加载一次后只读共享
type Manager struct {
	mu    sync.RWMutex
	dir   string
	cache map[string]*Lexicon
}

// NewManager 创建词库管理器
func NewManager(dir string) *Manager {
	return &Manager{
		dir:   dir,
		cache: make(map[string]*Lexicon),
	}
}

// Get 获取指定语言的词库，首次访问时加载
func (m *Manager) Get(language string) (*Lexicon, error) {
	m.mu.RLock()
	lex, ok := m.cache[language]
	m.mu.RUnlock()
	if ok {
		return lex, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 双重检查，避免并发重复加载
	if lex, ok := m.cache[language]; ok {
		return lex, nil
	}

	lex, err := Load(m.dir, language)
	if err != nil {
		return nil, err
	}

	m.cache[language] = lex
	return lex, nil
}

// Put 手动注入词库（用于测试）
func (m *Manager) Put(lex *Lexicon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[lex.language] = lex
}
