package preprocess

import (
	"strings"
	"unicode"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// Reserved token ids. Vocabulary words start at firstWordID.
const (
	PadID       int64 = 0
	UnknownID   int64 = 1
	firstWordID int64 = 2
)

// Encoder maps symptom descriptions onto fixed-length token sequences.
type Encoder struct {
	vocab     map[string]int64
	maxLength int
}

// NewEncoder builds an encoder over vocabulary; word i gets id i+2. Duplicate words keep
// their first id.
func NewEncoder(vocabulary []string, maxLength int) *Encoder {
	if maxLength < 0 {
		maxLength = 0
	}
	vocab := make(map[string]int64, len(vocabulary))
	for i, word := range vocabulary {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, ok := vocab[word]; !ok {
			vocab[word] = int64(i) + firstWordID
		}
	}
	return &Encoder{vocab: vocab, maxLength: maxLength}
}

// MaxLength returns the length of every sequence Encode produces.
func (e *Encoder) MaxLength() int {
	return e.maxLength
}

// Encode never fails: unknown words map to UnknownID, short input is padded with PadID and
// long input is truncated.
func (e *Encoder) Encode(text string) model.TokenSequence {
	seq := make(model.TokenSequence, e.maxLength)
	i := 0
	for _, tok := range Tokenize(text) {
		if i == e.maxLength {
			break
		}
		id, ok := e.vocab[tok]
		if !ok {
			id = UnknownID
		}
		seq[i] = id
		i++
	}
	return seq
}

// Tokenize lower-cases text, splits it on whitespace and trims punctuation around each word.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
