package lexicon

import (
	"math/rand"

	"github.com/wfunc/word-game/internal/errors"
)

// SequenceGenerator 字母序列生成器
// 从词库中随机抽词并截取子串，保证生成的序列至少被一个词包含
type SequenceGenerator struct {
	rng      *rand.Rand
	attempts int // 避让尝试次数上限
}

// NewSequenceGenerator 创建序列生成器
func NewSequenceGenerator(rng *rand.Rand, attempts int) *SequenceGenerator {
	if attempts <= 0 {
		attempts = 100
	}
	return &SequenceGenerator{
		rng:      rng,
		attempts: attempts,
	}
}

// Next 生成一个长度为length的序列，尽量避开avoid中的序列
// 尝试次数耗尽后放弃避让，只保证序列可被至少一个词包含，
// 宁可重复也不无限循环
func (g *SequenceGenerator) Next(lex *Lexicon, length int, avoid []string) (string, error) {
	if length < 2 {
		length = 2
	}
	if length > 3 {
		length = 3
	}

	avoidSet := make(map[string]struct{}, len(avoid))
	for _, s := range avoid {
		avoidSet[s] = struct{}{}
	}

	for i := 0; i < g.attempts; i++ {
		seq, ok := g.sample(lex, length)
		if !ok {
			return "", errors.Newf(errors.ErrLexiconEmpty, "没有长度不小于%d的单词", length)
		}
		if _, avoided := avoidSet[seq]; avoided {
			continue
		}
		if lex.HasContaining(seq) {
			return seq, nil
		}
	}

	// 回退：忽略避让列表，限定次数内找一个可被包含的序列
	for i := 0; i < g.attempts; i++ {
		seq, ok := g.sample(lex, length)
		if !ok {
			return "", errors.Newf(errors.ErrLexiconEmpty, "没有长度不小于%d的单词", length)
		}
		if lex.HasContaining(seq) {
			return seq, nil
		}
	}

	return "", errors.New(errors.ErrLexiconEmpty, "无法生成有效序列")
}

// RandomLength 随机返回2或3
func (g *SequenceGenerator) RandomLength() int {
	if g.rng.Intn(2) == 0 {
		return 2
	}
	return 3
}

// sample 随机抽一个词并截取随机子串
func (g *SequenceGenerator) sample(lex *Lexicon, length int) (string, bool) {
	word, ok := lex.RandomWord(length, g.rng)
	if !ok {
		return "", false
	}
	start := g.rng.Intn(len(word) - length + 1)
	return word[start : start+length], true
}
