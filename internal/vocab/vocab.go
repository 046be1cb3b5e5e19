package vocab

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

var (
	ErrUnknownCharacter = errors.New("unknown character")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrDuplicateCode    = errors.New("duplicate vocabulary code")
	ErrWindowLength     = errors.New("window length mismatch")
	ErrAssetLoad        = errors.New("vocabulary asset load failed")
)

// Options controls the shape of the one-hot rows.
type Options struct {
	// ReserveUnknown widens every row by one trailing slot that never
	// decodes to a character.
	ReserveUnknown bool
}

// Vocabulary is an immutable bijection between characters and dense codes
// 0..V-1. It is safe for concurrent use.
type Vocabulary struct {
	encode  map[rune]int
	decode  []rune
	reserve bool
}

// New validates the mapping and builds the inverse table. Codes must cover
// 0..len(m)-1 exactly once.
func New(m map[rune]int, opts Options) (*Vocabulary, error) {
	decode := make([]rune, len(m))
	filled := make([]bool, len(m))
	for c, code := range m {
		if code < 0 || code >= len(m) {
			return nil, fmt.Errorf("%w: code %d for %q outside 0..%d", ErrIndexOutOfRange, code, c, len(m)-1)
		}
		if filled[code] {
			a, b := decode[code], c
			if b < a {
				a, b = b, a
			}
			return nil, fmt.Errorf("%w: %d is assigned to both %q and %q", ErrDuplicateCode, code, a, b)
		}
		decode[code] = c
		filled[code] = true
	}
	encode := make(map[rune]int, len(m))
	for code, c := range decode {
		encode[c] = code
	}
	return &Vocabulary{
		encode:  encode,
		decode:  decode,
		reserve: opts.ReserveUnknown,
	}, nil
}

// FromChars assigns codes in slice order.
func FromChars(chars []rune, opts Options) (*Vocabulary, error) {
	m := make(map[rune]int, len(chars))
	for i, c := range chars {
		if prev, ok := m[c]; ok {
			return nil, fmt.Errorf("%w: %q listed at %d and %d", ErrDuplicateCode, c, prev, i)
		}
		m[c] = i
	}
	return New(m, opts)
}

// Load reads a dict.json asset: an object mapping single characters to codes.
func Load(path string, opts Options) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssetLoad, err)
	}
	return Parse(data, opts)
}

// Parse decodes a dict.json payload.
func Parse(data []byte, opts Options) (*Vocabulary, error) {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse dict: %w", ErrAssetLoad, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrAssetLoad)
	}
	m := make(map[rune]int, len(raw))
	for key, code := range raw {
		c, size := utf8.DecodeRuneInString(key)
		if size == 0 || size != len(key) || c == utf8.RuneError {
			return nil, fmt.Errorf("%w: key %q is not a single character", ErrAssetLoad, key)
		}
		m[c] = code
	}
	v, err := New(m, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssetLoad, err)
	}
	return v, nil
}

// Size is the number of characters (V).
func (v *Vocabulary) Size() int { return len(v.decode) }

// Width is the length of one encoded row: V, or V+1 with the reserved slot.
func (v *Vocabulary) Width() int {
	if v.reserve {
		return len(v.decode) + 1
	}
	return len(v.decode)
}

// ReservesUnknown reports whether rows carry the extra unknown slot.
func (v *Vocabulary) ReservesUnknown() bool { return v.reserve }

func (v *Vocabulary) Contains(c rune) bool {
	_, ok := v.encode[c]
	return ok
}

// Code returns the code of c.
func (v *Vocabulary) Code(c rune) (int, error) {
	code, ok := v.encode[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCharacter, c)
	}
	return code, nil
}

// Chars returns the characters ordered by code.
func (v *Vocabulary) Chars() []rune { return slices.Clone(v.decode) }

// EncodeChar returns a freshly allocated one-hot row for c.
func (v *Vocabulary) EncodeChar(c rune) ([]float32, error) {
	code, err := v.Code(c)
	if err != nil {
		return nil, err
	}
	row := make([]float32, v.Width())
	row[code] = 1
	return row, nil
}

// EncodeWindow one-hot encodes text, which must hold exactly windowLength
// characters. Rows are concatenated left to right.
func (v *Vocabulary) EncodeWindow(text string, windowLength int) ([]float32, error) {
	return v.EncodeWindowInto(nil, text, windowLength)
}

// EncodeWindowInto is EncodeWindow writing into dst when it has enough
// capacity. On error dst is left untouched and nil is returned.
func (v *Vocabulary) EncodeWindowInto(dst []float32, text string, windowLength int) ([]float32, error) {
	if n := utf8.RuneCountInString(text); n != windowLength {
		return nil, fmt.Errorf("%w: got %d characters, want %d", ErrWindowLength, n, windowLength)
	}
	if err := v.Validate(text); err != nil {
		return nil, err
	}
	width := v.Width()
	size := windowLength * width
	if cap(dst) < size {
		dst = make([]float32, size)
	}
	dst = dst[:size]
	clear(dst)
	row := 0
	for _, c := range text {
		dst[row*width+v.encode[c]] = 1
		row++
	}
	return dst, nil
}

// Validate reports the first character of text missing from the vocabulary.
func (v *Vocabulary) Validate(text string) error {
	pos := 0
	for _, c := range text {
		if _, ok := v.encode[c]; !ok {
			return fmt.Errorf("%w: %q at position %d", ErrUnknownCharacter, c, pos)
		}
		pos++
	}
	return nil
}

// Decode maps a code back to its character.
func (v *Vocabulary) Decode(i int) (rune, error) {
	if i < 0 || i >= len(v.decode) {
		return 0, fmt.Errorf("%w: %d (vocabulary size %d)", ErrIndexOutOfRange, i, len(v.decode))
	}
	return v.decode[i], nil
}
