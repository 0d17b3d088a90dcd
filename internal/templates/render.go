// Package templates renders per-category reply templates.
package templates

import (
	"strings"
)

// Render substitutes {{name}} placeholders and evaluates {{#if name}}, {{#unless name}},
// {{else}} and the matching {{/if}} and {{/unless}} closers. A section renders when its
// guard variable is non-empty. Unknown variables render as "" and malformed markup is
// emitted as text, so Render never fails.
func Render(tpl string, vars map[string]string) string {
	p := &parser{tokens: tokenize(tpl)}
	nodes := p.parse("")
	var b strings.Builder
	b.Grow(len(tpl))
	renderNodes(&b, nodes, vars)
	return b.String()
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokVar
	tokOpen
	tokElse
	tokClose
)

type token struct {
	kind  tokenKind
	block string // "if" or "unless" for open/close
	name  string
	raw   string
}

func tokenize(tpl string) []token {
	var tokens []token
	for len(tpl) > 0 {
		start := strings.Index(tpl, "{{")
		if start < 0 {
			tokens = append(tokens, token{kind: tokText, raw: tpl})
			break
		}
		end := strings.Index(tpl[start+2:], "}}")
		if end < 0 {
			tokens = append(tokens, token{kind: tokText, raw: tpl})
			break
		}
		if start > 0 {
			tokens = append(tokens, token{kind: tokText, raw: tpl[:start]})
		}
		raw := tpl[start : start+2+end+2]
		tokens = append(tokens, classify(raw, strings.TrimSpace(tpl[start+2:start+2+end])))
		tpl = tpl[start+2+end+2:]
	}
	return tokens
}

func classify(raw, inner string) token {
	switch {
	case inner == "else":
		return token{kind: tokElse, raw: raw}
	case strings.HasPrefix(inner, "#"):
		fields := strings.Fields(inner[1:])
		if len(fields) == 2 && (fields[0] == "if" || fields[0] == "unless") && validName(fields[1]) {
			return token{kind: tokOpen, block: fields[0], name: fields[1], raw: raw}
		}
	case strings.HasPrefix(inner, "/"):
		block := strings.TrimSpace(inner[1:])
		if block == "if" || block == "unless" {
			return token{kind: tokClose, block: block, raw: raw}
		}
	case validName(inner):
		return token{kind: tokVar, name: inner, raw: raw}
	}
	return token{kind: tokText, raw: raw}
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

type node struct {
	kind      tokenKind
	text      string
	block     string
	name      string
	then      []node
	otherwise []node
}

type parser struct {
	tokens []token
	pos    int
}

// parse consumes nodes until the closer for block (or EOF for the top level). It stops
// before an {{else}} that belongs to block.
func (p *parser) parse(block string) []node {
	var nodes []node
	for p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		switch t.kind {
		case tokText:
			p.pos++
			nodes = append(nodes, node{kind: tokText, text: t.raw})
		case tokVar:
			p.pos++
			nodes = append(nodes, node{kind: tokVar, name: t.name})
		case tokOpen:
			p.pos++
			n := node{kind: tokOpen, block: t.block, name: t.name}
			n.then = p.parse(t.block)
			if p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokElse {
				p.pos++
				n.otherwise = p.parse(t.block)
			}
			if p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokClose && p.tokens[p.pos].block == t.block {
				p.pos++
			}
			nodes = append(nodes, n)
		case tokElse:
			if block != "" {
				return nodes
			}
			p.pos++
			nodes = append(nodes, node{kind: tokText, text: t.raw})
		case tokClose:
			if block == t.block {
				return nodes
			}
			if block != "" {
				// A closer for an outer block ends this one too.
				return nodes
			}
			p.pos++
			nodes = append(nodes, node{kind: tokText, text: t.raw})
		}
	}
	return nodes
}

func renderNodes(b *strings.Builder, nodes []node, vars map[string]string) {
	for _, n := range nodes {
		switch n.kind {
		case tokText:
			b.WriteString(n.text)
		case tokVar:
			b.WriteString(vars[n.name])
		case tokOpen:
			truthy := strings.TrimSpace(vars[n.name]) != ""
			if n.block == "unless" {
				truthy = !truthy
			}
			if truthy {
				renderNodes(b, n.then, vars)
			} else {
				renderNodes(b, n.otherwise, vars)
			}
		}
	}
}
