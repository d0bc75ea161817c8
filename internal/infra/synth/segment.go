package synth

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Segmenter splits submission text into engine-sized chunks. Engines
// degrade past a token budget per call, so long inputs are synthesized
// segment by segment and stitched back together.
type Segmenter struct {
	enc *tiktoken.Tiktoken
}

// NewSegmenter loads the cl100k_base encoding. The BPE ranks are fetched
// on first use; when that fails (offline hosts) the segmenter falls back
// to an approximate rune-based count.
func NewSegmenter() *Segmenter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Segmenter{}
	}
	return &Segmenter{enc: enc}
}

func (s *Segmenter) CountTokens(text string) int {
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	// Rough cl100k average of four characters per token.
	return utf8.RuneCountInString(text)/4 + 1
}

// Split packs whole sentences into segments of at most maxTokens each.
// A single sentence over the budget is cut mid-sentence rather than
// rejected.
func (s *Segmenter) Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}

	var segments []string
	var cur strings.Builder
	curTokens := 0

	flush := func() {
		if seg := strings.TrimSpace(cur.String()); seg != "" {
			segments = append(segments, seg)
		}
		cur.Reset()
		curTokens = 0
	}

	for _, sentence := range splitSentences(text) {
		n := s.CountTokens(sentence)
		if n > maxTokens {
			flush()
			for _, piece := range s.hardSplit(sentence, maxTokens) {
				segments = append(segments, piece)
			}
			continue
		}
		if curTokens+n > maxTokens {
			flush()
		}
		cur.WriteString(sentence)
		curTokens += n
	}
	flush()

	if len(segments) == 0 {
		return []string{text}
	}
	return segments
}

func (s *Segmenter) hardSplit(sentence string, maxTokens int) []string {
	runes := []rune(sentence)
	total := s.CountTokens(sentence)
	pieces := (total + maxTokens - 1) / maxTokens
	if pieces < 2 {
		return []string{strings.TrimSpace(sentence)}
	}
	step := (len(runes) + pieces - 1) / pieces

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + step
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// splitSentences cuts after sentence-final punctuation, keeping the
// punctuation with its sentence. CJK terminators count too.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?', ';', '\n', '。', '！', '？', '；':
			if cur.Len() > 0 {
				sentences = append(sentences, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		sentences = append(sentences, cur.String())
	}
	return sentences
}
