package scanner

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenKeyword                  // other keywords (obj, endobj, stream, R, >>, ], etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	default:
		return "keyword"
	}
}

// Token is one lexical unit. Str carries names and keywords, Bytes carries
// decoded string contents.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Pos   int64
}

// Config bounds the scanner on hostile input. Zero values use defaults.
type Config struct {
	MaxStringLength int
}

var ErrStringTooLong = errors.New("string exceeds configured limit")

// Scanner tokenizes an in-memory PDF byte slice.
type Scanner struct {
	data []byte
	pos  int
	cfg  Config
}

func New(data []byte, cfg Config) *Scanner {
	if cfg.MaxStringLength <= 0 {
		cfg.MaxStringLength = 64 << 20
	}
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Data() []byte     { return s.data }
func (s *Scanner) Position() int64 { return int64(s.pos) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d outside data of length %d", offset, len(s.data))
	}
	s.pos = int(offset)
	return nil
}

// Next returns the next token, or io.EOF once the input is exhausted.
func (s *Scanner) Next() (Token, error) {
	s.SkipWhitespace()
	if s.pos >= len(s.data) {
		return Token{}, io.EOF
	}
	start := int64(s.pos)
	c := s.data[s.pos]
	switch {
	case c == '/':
		return s.scanName(start)
	case c == '(':
		return s.scanLiteralString(start)
	case c == '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString(start)
	case c == '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{}, fmt.Errorf("unexpected '>' at offset %d", start)
	case c == '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case c == '{' || c == '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case isDigitStart(c):
		return s.scanNumber(start)
	default:
		return s.scanKeyword(start)
	}
}

// SkipWhitespace advances past whitespace and comments.
func (s *Scanner) SkipWhitespace() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int) byte {
	if s.pos+n >= len(s.data) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName(start int64) (Token, error) {
	s.pos++ // '/'
	var out []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < len(s.data) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out = append(out, fromHex(s.data[s.pos+1])<<4|fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out = append(out, c)
		s.pos++
	}
	return Token{Type: TokenName, Str: string(out), Pos: start}, nil
}

func (s *Scanner) scanLiteralString(start int64) (Token, error) { /* PDF 7.3.4.2 */
	s.pos++ // '('
	depth := 1
	var out []byte
	for s.pos < len(s.data) {
		if len(out) > s.cfg.MaxStringLength {
			return Token{}, ErrStringTooLong
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: out, Pos: start}, nil
			}
			out = append(out, c)
		case '\\':
			if s.pos >= len(s.data) {
				break
			}
			e := s.data[s.pos]
			s.pos++
			switch {
			case e == '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case e == '\n':
			case e >= '0' && e <= '7':
				v := int(e - '0')
				for i := 0; i < 2 && s.pos < len(s.data); i++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					s.pos++
				}
				out = append(out, byte(v))
			default:
				out = append(out, translateEscape(e))
			}
		case '\r':
			// EOL inside a literal is normalised to LF.
			if s.pos < len(s.data) && s.data[s.pos] == '\n' {
				s.pos++
			}
			out = append(out, '\n')
		default:
			out = append(out, c)
		}
	}
	return Token{}, fmt.Errorf("unterminated string at offset %d", start)
}

func (s *Scanner) scanHexString(start int64) (Token, error) {
	s.pos++ // '<'
	var out []byte
	var hi byte
	half := false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, fmt.Errorf("invalid hex digit %q at offset %d", c, s.pos-1)
		}
		if half {
			out = append(out, hi<<4|fromHex(c))
			half = false
		} else {
			hi = fromHex(c)
			half = true
		}
	}
	return Token{}, fmt.Errorf("unterminated hex string at offset %d", start)
}

func (s *Scanner) scanNumber(start int64) (Token, error) {
	begin := s.pos
	for s.pos < len(s.data) && isDigitStart(s.data[s.pos]) {
		s.pos++
	}
	text := string(s.data[begin:s.pos])
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(normalizeReal(text), 64)
	if err != nil {
		// Malformed reals such as "--5" or "1.2.3" are read as zero, the way
		// most viewers treat them.
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Int: int64(f), Pos: start}, nil
}

func normalizeReal(text string) string {
	if len(text) > 1 && text[0] == '-' && text[1] == '-' {
		return text[1:]
	}
	return text
}

func (s *Scanner) scanKeyword(start int64) (Token, error) {
	begin := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == begin {
		s.pos++
		return Token{}, fmt.Errorf("unexpected byte %q at offset %d", s.data[begin], start)
	}
	word := string(s.data[begin:s.pos])
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Str: word, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Bool: false, Str: word, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: word, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
