// Package query parses and evaluates the rule query language against a
// single calendar event. Queries are sequences of whitespace-separated terms:
// field:value pairs or bare tokens (implicit text:). Terms are ANDed, a
// leading '-' negates, OR and parentheses group, values with spaces are
// quoted.
package query

import (
	"fmt"
	"strings"
	"unicode"
)

// Fields a query may reference. An unrecognized field is a parse error, not
// a silent non-match.
var knownFields = map[string]bool{
	"text":         true,
	"title":        true,
	"description":  true,
	"domain":       true,
	"attendees":    true,
	"email":        true,
	"response":     true,
	"calendar":     true,
	"recurring":    true,
	"transparency": true,
}

// ParseError reports a malformed query string.
type ParseError struct {
	Message  string
	Position int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

type Node interface {
	isNode()
}

// Condition is a single field:value term.
type Condition struct {
	Field   string
	Value   string
	Negated bool
}

func (*Condition) isNode() {}

// And matches when every child matches.
type And struct {
	Children []Node
}

func (*And) isNode() {}

// Or matches when any child matches.
type Or struct {
	Children []Node
}

func (*Or) isNode() {}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenColon
	tokenLParen
	tokenRParen
	tokenOr
	tokenNegate
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type parser struct {
	input  string
	tokens []token
	cur    int
}

// Parse parses a query string into an AST.
func Parse(q string) (Node, error) {
	p := &parser{input: strings.TrimSpace(q)}
	if err := p.tokenize(); err != nil {
		return nil, err
	}
	return p.parseOr()
}

func (p *parser) tokenize() error {
	pos := 0
	for pos < len(p.input) {
		ch := p.input[pos]
		switch {
		case unicode.IsSpace(rune(ch)):
			pos++
		case ch == '(':
			p.tokens = append(p.tokens, token{tokenLParen, "(", pos})
			pos++
		case ch == ')':
			p.tokens = append(p.tokens, token{tokenRParen, ")", pos})
			pos++
		case ch == '-':
			p.tokens = append(p.tokens, token{tokenNegate, "-", pos})
			pos++
		case ch == ':':
			p.tokens = append(p.tokens, token{tokenColon, ":", pos})
			pos++
		case ch == '"':
			start := pos
			pos++
			valueStart := pos
			for pos < len(p.input) && p.input[pos] != '"' {
				pos++
			}
			if pos >= len(p.input) {
				return &ParseError{Message: "unterminated quote", Position: start}
			}
			p.tokens = append(p.tokens, token{tokenQuoted, p.input[valueStart:pos], start})
			pos++
		default:
			start := pos
			for pos < len(p.input) {
				c := p.input[pos]
				if unicode.IsSpace(rune(c)) || c == ':' || c == '(' || c == ')' || c == '"' {
					break
				}
				pos++
			}
			word := p.input[start:pos]
			if strings.ToUpper(word) == "OR" {
				p.tokens = append(p.tokens, token{tokenOr, "OR", start})
			} else {
				p.tokens = append(p.tokens, token{tokenWord, word, start})
			}
		}
	}
	p.tokens = append(p.tokens, token{tokenEOF, "", len(p.input)})
	return nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.peek().kind == tokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Or{Children: children}, nil
}

func (p *parser) parseAnd() (Node, error) {
	var children []Node
	for {
		tok := p.peek()
		if tok.kind == tokenEOF || tok.kind == tokenRParen || tok.kind == tokenOr {
			break
		}
		node, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	if len(children) == 0 {
		return nil, &ParseError{Message: "empty expression", Position: p.peek().pos}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &And{Children: children}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenLParen:
		p.advance()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokenRParen {
			return nil, &ParseError{Message: "expected )", Position: p.peek().pos}
		}
		p.advance()
		return node, nil
	case tokenNegate:
		p.advance()
		return p.parseCondition(true)
	case tokenWord, tokenQuoted:
		return p.parseCondition(false)
	default:
		return nil, &ParseError{Message: fmt.Sprintf("unexpected token %q", tok.text), Position: tok.pos}
	}
}

func (p *parser) parseCondition(negated bool) (Node, error) {
	head := p.peek()
	if head.kind != tokenWord && head.kind != tokenQuoted {
		return nil, &ParseError{Message: "expected term", Position: head.pos}
	}
	p.advance()

	if p.peek().kind != tokenColon {
		// Bare token: implicit text search.
		return &Condition{Field: "text", Value: head.text, Negated: negated}, nil
	}
	p.advance()

	field := strings.ToLower(head.text)
	if head.kind == tokenQuoted || !knownFields[field] {
		return nil, &ParseError{Message: fmt.Sprintf("unknown field %q", head.text), Position: head.pos}
	}

	value := p.peek()
	if value.kind != tokenWord && value.kind != tokenQuoted {
		return nil, &ParseError{Message: "expected value after ':'", Position: value.pos}
	}
	p.advance()

	return &Condition{Field: field, Value: value.text, Negated: negated}, nil
}

func (p *parser) peek() token {
	if p.cur >= len(p.tokens) {
		return token{tokenEOF, "", len(p.input)}
	}
	return p.tokens[p.cur]
}

func (p *parser) advance() {
	p.cur++
}
