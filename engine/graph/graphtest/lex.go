package graphtest

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokKind int

const (
	tEOF tokKind = iota
	tIRI
	tVar
	tLit
	tNum
	tWord
	tPunct
)

type token struct {
	kind tokKind
	val  string
	dt   string // literal datatype IRI
	lang string // literal language tag
	mod  string // property path modifier after an IRI
}

func (t token) String() string {
	switch t.kind {
	case tEOF:
		return "EOF"
	case tIRI:
		return "<" + t.val + ">" + t.mod
	case tVar:
		return "?" + t.val
	case tLit:
		return strconv.Quote(t.val)
	}
	return t.val
}

func (t token) is(kind tokKind, val string) bool {
	if t.kind != kind {
		return false
	}
	if kind == tWord {
		return strings.EqualFold(t.val, val)
	}
	return t.val == val
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '<':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tPunct, val: "<="})
				i += 2
				continue
			}
			if i+1 < len(src) && (src[i+1] == ' ' || src[i+1] == '"' || src[i+1] == '?') {
				toks = append(toks, token{kind: tPunct, val: "<"})
				i++
				continue
			}
			end := strings.IndexByte(src[i:], '>')
			if end < 0 {
				return nil, fmt.Errorf("unterminated IRI at %d", i)
			}
			tok := token{kind: tIRI, val: src[i+1 : i+end]}
			i += end + 1
			if i < len(src) && (src[i] == '*' || src[i] == '+') {
				tok.mod = string(src[i])
				i++
			}
			toks = append(toks, tok)
		case c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tPunct, val: ">="})
				i += 2
			} else {
				toks = append(toks, token{kind: tPunct, val: ">"})
				i++
			}
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tPunct, val: "!="})
				i += 2
			} else {
				toks = append(toks, token{kind: tPunct, val: "!"})
				i++
			}
		case c == '&' || c == '|':
			if i+1 >= len(src) || src[i+1] != c {
				return nil, fmt.Errorf("unexpected %q at %d", c, i)
			}
			toks = append(toks, token{kind: tPunct, val: src[i : i+2]})
			i += 2
		case c == '?':
			j := i + 1
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tVar, val: src[i+1 : j]})
			i = j
		case c == '"':
			val, n, err := readString(src[i:])
			if err != nil {
				return nil, err
			}
			i += n
			tok := token{kind: tLit, val: val}
			if strings.HasPrefix(src[i:], "^^<") {
				end := strings.IndexByte(src[i:], '>')
				if end < 0 {
					return nil, fmt.Errorf("unterminated datatype at %d", i)
				}
				tok.dt = src[i+3 : i+end]
				i += end + 1
			} else if i < len(src) && src[i] == '@' {
				j := i + 1
				for j < len(src) && (isNameByte(src[j]) || src[j] == '-') {
					j++
				}
				tok.lang = src[i+1 : j]
				i = j
			}
			toks = append(toks, tok)
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			toks = append(toks, token{kind: tNum, val: src[i:j]})
			i = j
		case isNameByte(c):
			j := i
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tWord, val: src[i:j]})
			i = j
		case strings.IndexByte("{}().,;*=", c) >= 0:
			toks = append(toks, token{kind: tPunct, val: string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected %q at %d", c, i)
		}
	}
	return append(toks, token{kind: tEOF}), nil
}

func isNameByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// readString reads a double-quoted literal starting at s[0] and returns the
// unescaped value and the number of bytes consumed.
func readString(s string) (string, int, error) {
	var sb strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return sb.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			e := s[i+1]
			i += 2
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '"', '\\', '\'':
				sb.WriteByte(e)
			case 'u', 'U', 'x':
				n := map[byte]int{'u': 4, 'U': 8, 'x': 2}[e]
				if i+n > len(s) {
					return "", 0, fmt.Errorf("short escape")
				}
				r, err := strconv.ParseUint(s[i:i+n], 16, 32)
				if err != nil {
					return "", 0, err
				}
				sb.WriteRune(rune(r))
				i += n
			default:
				return "", 0, fmt.Errorf("unknown escape \\%c", e)
			}
		default:
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				return "", 0, fmt.Errorf("invalid utf-8")
			}
			if !unicode.IsPrint(r) && r != ' ' {
				return "", 0, fmt.Errorf("raw control character in literal")
			}
			sb.WriteRune(r)
			i += size
		}
	}
	return "", 0, fmt.Errorf("unterminated literal")
}
