package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// The model issues commands inside <execute> blocks, one call per statement,
// with Python-style literals:
//
//	<execute>
//	create_deck("Biology")
//	add_card(deck="Biology", question="What is ATP?", answer="...")
//	</execute>
//
// An empty block means the model has nothing left to run.

var executeBlockRe = regexp.MustCompile(`(?s)<execute>(.*?)</execute>`)

// ExtractExecuteBlocks returns the contents of every <execute> block in a
// model response, in order.
func ExtractExecuteBlocks(response string) []string {
	matches := executeBlockRe.FindAllStringSubmatch(response, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}

// Call is one parsed command invocation.
type Call struct {
	Name   string
	Args   []any
	Kwargs map[string]any
}

// ParseCalls parses every call in an execute block. Literals are restricted
// to strings, numbers, booleans and none; anything else is rejected so the
// model cannot smuggle expressions in.
func ParseCalls(block string) ([]Call, error) {
	p := &callParser{input: []rune(block)}

	var calls []Call
	for {
		p.skipSpace()
		if p.done() {
			return calls, nil
		}
		call, err := p.parseCall()
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
}

type callParser struct {
	input []rune
	pos   int
}

func (p *callParser) done() bool {
	return p.pos >= len(p.input)
}

func (p *callParser) peek() rune {
	if p.done() {
		return 0
	}
	return p.input[p.pos]
}

func (p *callParser) skipSpace() {
	for !p.done() && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *callParser) errorf(format string, args ...any) error {
	return fmt.Errorf("parse error at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *callParser) parseCall() (Call, error) {
	name, err := p.parseIdent()
	if err != nil {
		return Call{}, err
	}

	p.skipSpace()
	if p.peek() != '(' {
		return Call{}, p.errorf("expected '(' after %q", name)
	}
	p.pos++

	call := Call{Name: name, Kwargs: map[string]any{}}
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return call, nil
	}

	for {
		if err := p.parseArg(&call); err != nil {
			return Call{}, err
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			// Trailing comma before the closing paren is tolerated.
			if p.peek() == ')' {
				p.pos++
				return call, nil
			}
		case ')':
			p.pos++
			return call, nil
		default:
			return Call{}, p.errorf("expected ',' or ')' in arguments of %q", name)
		}
	}
}

func (p *callParser) parseArg(call *Call) error {
	// A keyword argument starts with an identifier followed by '='.
	if isIdentStart(p.peek()) {
		save := p.pos
		name, err := p.parseIdent()
		if err == nil {
			p.skipSpace()
			if p.peek() == '=' && !p.startsComparison() {
				p.pos++
				p.skipSpace()
				value, err := p.parseLiteral()
				if err != nil {
					return err
				}
				if _, dup := call.Kwargs[name]; dup {
					return p.errorf("duplicate keyword argument %q", name)
				}
				call.Kwargs[name] = value
				return nil
			}
		}
		p.pos = save
	}

	if len(call.Kwargs) > 0 {
		return p.errorf("positional argument after keyword argument")
	}
	value, err := p.parseLiteral()
	if err != nil {
		return err
	}
	call.Args = append(call.Args, value)
	return nil
}

// startsComparison guards against treating '==' as a keyword assignment.
func (p *callParser) startsComparison() bool {
	return p.pos+1 < len(p.input) && p.input[p.pos+1] == '='
}

func (p *callParser) parseIdent() (string, error) {
	if !isIdentStart(p.peek()) {
		return "", p.errorf("expected identifier")
	}
	start := p.pos
	for !p.done() && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return string(p.input[start:p.pos]), nil
}

func (p *callParser) parseLiteral() (any, error) {
	switch r := p.peek(); {
	case r == '"' || r == '\'':
		return p.parseString(r)
	case r == '-' || unicode.IsDigit(r):
		return p.parseNumber()
	case isIdentStart(r):
		word, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(word) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "none", "null":
			return nil, nil
		}
		return nil, p.errorf("unexpected bare word %q, string literals must be quoted", word)
	default:
		return nil, p.errorf("expected a literal value")
	}
}

func (p *callParser) parseString(quote rune) (string, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for {
		if p.done() {
			return "", p.errorf("unterminated string literal")
		}
		r := p.input[p.pos]
		p.pos++
		switch r {
		case quote:
			return sb.String(), nil
		case '\\':
			if p.done() {
				return "", p.errorf("unterminated escape sequence")
			}
			esc := p.input[p.pos]
			p.pos++
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(r)
		}
	}
}

func (p *callParser) parseNumber() (any, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	isFloat := false
	for !p.done() {
		r := p.input[p.pos]
		if unicode.IsDigit(r) {
			p.pos++
			continue
		}
		if r == '.' && !isFloat {
			isFloat = true
			p.pos++
			continue
		}
		break
	}

	text := string(p.input[start:p.pos])
	if isFloat {
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", text)
		}
		return value, nil
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return value, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
