package service

import (
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
	"github.com/rs/zerolog/log"
)

const (
	titleWordLimit = 4
	DefaultTitle   = "New Conversation"
)

// TitleMaker 根据用户首条输入生成对话标题
// 取前 4 个词，超出时追加 ...；中日韩文本用 gse 分词确定词边界
type TitleMaker struct {
	once      sync.Once
	segmenter *gse.Segmenter // 加载失败时为 nil，退化为按字切分
}

// NewTitleMaker 创建标题生成器，词典在首次遇到中文输入时加载
func NewTitleMaker() *TitleMaker {
	return &TitleMaker{}
}

// Make 生成标题
func (t *TitleMaker) Make(input string) string {
	words := t.words(input)
	if len(words) == 0 {
		return DefaultTitle
	}

	n := len(words)
	if n > titleWordLimit {
		words = words[:titleWordLimit]
	}
	title := joinWords(words)
	if n > titleWordLimit {
		title += "..."
	}
	return title
}

func (t *TitleMaker) words(input string) []string {
	if !containsHan(input) {
		return strings.Fields(input)
	}

	var tokens []string
	if seg := t.loadSegmenter(); seg != nil {
		tokens = seg.Cut(input, true)
	} else {
		for _, field := range strings.Fields(input) {
			tokens = append(tokens, splitHan(field)...)
		}
	}

	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" || isPunct(tok) {
			continue
		}
		words = append(words, tok)
	}
	return words
}

func (t *TitleMaker) loadSegmenter() *gse.Segmenter {
	t.once.Do(func() {
		seg := new(gse.Segmenter)
		if err := seg.LoadDict(); err != nil {
			log.Warn().Err(err).Msg("gse 词典加载失败，中文标题按字切分")
			return
		}
		t.segmenter = seg
	})
	return t.segmenter
}

// joinWords 两个非中文词之间补空格
func joinWords(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 && !endsWithHan(words[i-1]) && !startsWithHan(w) {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}

// splitHan 中文按字拆开，连续的非中文字符保持为一个词
func splitHan(s string) []string {
	var out []string
	var buf strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			if buf.Len() > 0 {
				out = append(out, buf.String())
				buf.Reset()
			}
			out = append(out, string(r))
			continue
		}
		buf.WriteRune(r)
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func startsWithHan(s string) bool {
	for _, r := range s {
		return unicode.Is(unicode.Han, r)
	}
	return false
}

func endsWithHan(s string) bool {
	runes := []rune(s)
	return len(runes) > 0 && unicode.Is(unicode.Han, runes[len(runes)-1])
}

func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
