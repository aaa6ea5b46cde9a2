package pipeline

// The grammar is a small subset of
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
//	line     := pipeline [ '&' ]
//	pipeline := command { '|' command }
//	command  := word { word | '<' word | '>' word }
//
// Input redirection is only valid on the first command and output
// redirection only on the last one. Quoting and escaping inside words follow
// POSIX shell rules.

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anmitsu/go-shlex"
)

var (
	ErrEmptyCommand        = errors.New("empty command in pipeline")
	ErrMisplacedBackground = errors.New("misplaced &")
	ErrMissingFilename     = errors.New("filename missing for redirection")
	ErrDuplicateRedirect   = errors.New("only one redirection of each kind is supported")
	ErrMisplacedRedirect   = errors.New("redirection not allowed in the middle of a pipeline")
	ErrUnterminatedQuote   = errors.New("unterminated quote")
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPipe
	tokIn
	tokOut
	tokBackground
)

func (k tokenKind) String() string {
	switch k {
	case tokPipe:
		return "|"
	case tokIn:
		return "<"
	case tokOut:
		return ">"
	case tokBackground:
		return "&"
	default:
		return "word"
	}
}

type token struct {
	kind tokenKind
	text string
}

var operators = map[byte]tokenKind{
	'|': tokPipe,
	'<': tokIn,
	'>': tokOut,
	'&': tokBackground,
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

// lex splits the line into operators and words byte by byte, then hands each
// word to shlex for quote removal. Operators and quotes are all ASCII so bytes
// that aren't valid UTF-8 pass through untouched.
func lex(line string) ([]token, error) {
	var (
		out     []token
		word    strings.Builder
		inWord  bool
		quote   byte
		escaped bool
	)

	flush := func() error {
		if !inWord {
			return nil
		}
		text, err := unquote(word.String())
		word.Reset()
		inWord = false
		if err != nil {
			return err
		}
		out = append(out, token{kind: tokWord, text: text})
		return nil
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case isBlank(c):
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		default:
			if kind, ok := operators[c]; ok {
				if err := flush(); err != nil {
					return nil, err
				}
				out = append(out, token{kind: kind, text: string(c)})
				continue
			}
		}
		word.WriteByte(c)
		inWord = true
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// unquote removes the quoting from a single word. A word made only of quotes,
// like '' or "", is the empty string.
func unquote(raw string) (string, error) {
	words, err := shlex.Split(encodeBytes(raw), true)
	if err != nil {
		return "", err
	}
	return decodeBytes(strings.Join(words, "")), nil
}

// byteRuneBase maps raw bytes onto the last private use code points so shlex,
// which reads runes, can't replace them with U+FFFD.
const byteRuneBase = 0x10FF00

// encodeBytes replaces every byte that isn't part of a valid rune with
// byteRuneBase+b. Runes already in that range are encoded byte by byte too so
// decodeBytes is an exact inverse.
func encodeBytes(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r == utf8.RuneError && size == 1) || r >= byteRuneBase {
			for j := i; j < i+size; j++ {
				sb.WriteRune(byteRuneBase + rune(s[j]))
			}
		} else {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	return sb.String()
}

func decodeBytes(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= byteRuneBase {
			sb.WriteByte(byte(r - byteRuneBase))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Parse converts one line of input into a Spec. Failures are reported through
// Spec.Err rather than a separate return value so callers can hand every
// line to the executor unchanged.
func Parse(line string) *Spec {
	spec, err := parse(line)
	if err != nil {
		return &Spec{Err: err}
	}
	return spec
}

func parse(line string) (*Spec, error) {
	toks, err := lex(line)
	if err != nil {
		return nil, err
	}

	spec := &Spec{}
	var cur Stage
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch tok.kind {
		case tokWord:
			cur = append(cur, tok.text)

		case tokPipe:
			if len(cur) == 0 {
				return nil, ErrEmptyCommand
			}
			if spec.Output != "" {
				return nil, ErrMisplacedRedirect
			}
			spec.Stages = append(spec.Stages, cur)
			cur = nil

		case tokIn, tokOut:
			if i+1 >= len(toks) || toks[i+1].kind != tokWord {
				return nil, fmt.Errorf("%w after %q", ErrMissingFilename, tok.kind)
			}
			i++
			target := toks[i].text

			if tok.kind == tokIn {
				if len(spec.Stages) > 0 {
					return nil, ErrMisplacedRedirect
				}
				if spec.Input != "" {
					return nil, ErrDuplicateRedirect
				}
				spec.Input = target
			} else {
				if spec.Output != "" {
					return nil, ErrDuplicateRedirect
				}
				spec.Output = target
			}

		case tokBackground:
			if i != len(toks)-1 {
				return nil, ErrMisplacedBackground
			}
			spec.Background = true
		}
	}

	if len(cur) == 0 {
		if len(spec.Stages) == 0 && spec.Input == "" && spec.Output == "" && !spec.Background {
			return spec, nil // blank line
		}
		return nil, ErrEmptyCommand
	}
	spec.Stages = append(spec.Stages, cur)

	return spec, nil
}
