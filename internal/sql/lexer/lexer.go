// Package lexer tokenizes the SQL surface into a flat token stream.
package lexer

import (
	"strings"

	"github.com/novadb/novadb/internal/dberr"
)

// Kind enumerates token kinds.
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	IntLit
	FloatLit
	StringLit

	// punctuation
	LParen
	RParen
	Comma
	Dot
	Semicolon
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
	Plus
	Minus
	Star
	Slash
)

// Token is one lexed unit with its source position.
type Token struct {
	Kind Kind
	Text string
	Pos  int
}

var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "INSERT": true, "INTO": true,
	"VALUES": true, "UPDATE": true, "SET": true, "DELETE": true, "CREATE": true,
	"DROP": true, "TABLE": true, "DATABASE": true, "INDEX": true, "UNIQUE": true,
	"ON": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "OUTER": true, "GROUP": true, "BY": true, "ORDER": true,
	"ASC": true, "DESC": true, "AND": true, "OR": true, "NOT": true, "NULL": true,
	"PRIMARY": true, "KEY": true, "INT": true, "DOUBLE": true, "STRING": true,
	"IF": true, "EXISTS": true, "AS": true, "COUNT": true, "SUM": true,
	"AVG": true, "MAX": true, "MIN": true, "USE": true,
}

// Lexer scans src one token at a time; Tokenize runs it over the whole
// input.
type Lexer struct {
	src []rune
	pos int
}

func New(src string) *Lexer { return &Lexer{src: []rune(src)} }

// Tokenize scans the whole input, returning the full token stream ending in
// an EOF token.
func Tokenize(src string) ([]Token, error) {
	l := New(src)
	var out []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == EOF {
			return out, nil
		}
	}
}

func (l *Lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekRuneAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.src) {
		c := l.peekRune()
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		if c == '-' && l.peekRuneAt(1) == '-' {
			for l.pos < len(l.src) && l.peekRune() != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
func isAlpha(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isAlnum(c rune) bool { return isAlpha(c) || isDigit(c) }

func (l *Lexer) next() (Token, error) {
	l.skipWhitespaceAndComments()
	start := l.pos
	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Pos: start}, nil
	}
	c := l.peekRune()

	switch {
	case isAlpha(c):
		for l.pos < len(l.src) && isAlnum(l.peekRune()) {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		if keywords[strings.ToUpper(text)] {
			return Token{Kind: Keyword, Text: strings.ToUpper(text), Pos: start}, nil
		}
		return Token{Kind: Ident, Text: text, Pos: start}, nil

	case isDigit(c):
		isFloat := false
		for l.pos < len(l.src) && isDigit(l.peekRune()) {
			l.pos++
		}
		if l.peekRune() == '.' && isDigit(l.peekRuneAt(1)) {
			isFloat = true
			l.pos++
			for l.pos < len(l.src) && isDigit(l.peekRune()) {
				l.pos++
			}
		}
		text := string(l.src[start:l.pos])
		if isFloat {
			return Token{Kind: FloatLit, Text: text, Pos: start}, nil
		}
		return Token{Kind: IntLit, Text: text, Pos: start}, nil

	case c == '\'' || c == '"':
		return l.scanString(c)

	case c == '(':
		l.pos++
		return Token{Kind: LParen, Text: "(", Pos: start}, nil
	case c == ')':
		l.pos++
		return Token{Kind: RParen, Text: ")", Pos: start}, nil
	case c == ',':
		l.pos++
		return Token{Kind: Comma, Text: ",", Pos: start}, nil
	case c == '.':
		l.pos++
		return Token{Kind: Dot, Text: ".", Pos: start}, nil
	case c == ';':
		l.pos++
		return Token{Kind: Semicolon, Text: ";", Pos: start}, nil
	case c == '+':
		l.pos++
		return Token{Kind: Plus, Text: "+", Pos: start}, nil
	case c == '-':
		l.pos++
		return Token{Kind: Minus, Text: "-", Pos: start}, nil
	case c == '*':
		l.pos++
		return Token{Kind: Star, Text: "*", Pos: start}, nil
	case c == '/':
		l.pos++
		return Token{Kind: Slash, Text: "/", Pos: start}, nil
	case c == '=':
		l.pos++
		return Token{Kind: Eq, Text: "=", Pos: start}, nil
	case c == '!':
		if l.peekRuneAt(1) == '=' {
			l.pos += 2
			return Token{Kind: Neq, Text: "!=", Pos: start}, nil
		}
		return Token{}, dberr.NewParseError(start, "unexpected character '!'")
	case c == '<':
		if l.peekRuneAt(1) == '=' {
			l.pos += 2
			return Token{Kind: Lte, Text: "<=", Pos: start}, nil
		}
		if l.peekRuneAt(1) == '>' {
			l.pos += 2
			return Token{Kind: Neq, Text: "<>", Pos: start}, nil
		}
		l.pos++
		return Token{Kind: Lt, Text: "<", Pos: start}, nil
	case c == '>':
		if l.peekRuneAt(1) == '=' {
			l.pos += 2
			return Token{Kind: Gte, Text: ">=", Pos: start}, nil
		}
		l.pos++
		return Token{Kind: Gt, Text: ">", Pos: start}, nil
	}
	return Token{}, dberr.NewParseError(start, "unexpected character %q", c)
}

func (l *Lexer) scanString(quote rune) (Token, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, dberr.NewParseError(start, "unterminated string literal")
		}
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			switch l.src[l.pos] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\':
				sb.WriteRune('\\')
			case '\'':
				sb.WriteRune('\'')
			case '"':
				sb.WriteRune('"')
			default:
				sb.WriteRune(l.src[l.pos])
			}
			l.pos++
			continue
		}
		if c == quote {
			l.pos++
			return Token{Kind: StringLit, Text: sb.String(), Pos: start}, nil
		}
		sb.WriteRune(c)
		l.pos++
	}
}
