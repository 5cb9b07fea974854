package rst

import (
	"regexp"
	"strings"
)

var (
	footnotePattern     = regexp.MustCompile(`^\[([^\]]+)\](?: +(.*))?$`)
	substitutionPattern = regexp.MustCompile(`^\|([^|]+)\| +([A-Za-z0-9][\w\-+.]*)::(?: +(.*))?$`)
	directivePattern    = regexp.MustCompile(`^([A-Za-z0-9](?:[\w\-+.]|:[\w])*)::(?: +(.*))?$`)
	optionPattern       = regexp.MustCompile(`^:[\w\-]+:(?: |$)`)
)

// Directives whose content is code or other non-prose text. They become a
// literal block so extractors can skip them.
var codeDirectives = map[string]bool{
	"code":           true,
	"code-block":     true,
	"sourcecode":     true,
	"literalinclude": true,
	"highlight":      true,
	"math":           true,
	"raw":            true,
	"parsed-literal": true,
	"doctest":        true,
	"testcode":       true,
	"testoutput":     true,
	"productionlist": true,
	"graphviz":       true,
}

// Directives that carry no readable content of their own.
var opaqueDirectives = map[string]bool{
	"toctree":        true,
	"include":        true,
	"image":          true,
	"contents":       true,
	"sectnum":        true,
	"index":          true,
	"meta":           true,
	"tabularcolumns": true,
	"default-role":   true,
	"role":           true,
	"title":          true,
	"currentmodule":  true,
	"highlightlang":  true,
}

// Directives that take no argument, so text on the first line is content.
var contentDirectives = map[string]bool{
	"note":       true,
	"warning":    true,
	"tip":        true,
	"important":  true,
	"caution":    true,
	"danger":     true,
	"attention":  true,
	"hint":       true,
	"error":      true,
	"seealso":    true,
	"todo":       true,
	"epigraph":   true,
	"highlights": true,
	"pull-quote": true,
	"compound":   true,
}

// Directives whose argument is a title.
var titledDirectives = map[string]bool{
	"admonition": true,
	"topic":      true,
	"sidebar":    true,
}

// Directives whose argument is inline prose.
var proseArgDirectives = map[string]bool{
	"rubric":         true,
	"versionadded":   true,
	"versionchanged": true,
	"deprecated":     true,
	"centered":       true,
}

// explicit handles a block starting with "..": targets, footnotes and
// citations, substitution definitions, directives and comments.
func (p *bodyParser) explicit() (bool, error) {
	line := p.lines[p.pos]
	if line != ".." && !strings.HasPrefix(line, ".. ") {
		return false, nil
	}
	start := p.pos
	first := strings.TrimSpace(strings.TrimPrefix(line, ".."))

	if first == "" && (start+1 >= len(p.lines) || p.lines[start+1] == "") {
		p.pos++
		p.nodes = append(p.nodes, &Node{Kind: KindComment})
		return true, nil
	}

	end := indentedBlock(p.lines, start+1)
	body := dedent(p.lines[start+1 : end])
	p.pos = end

	if strings.HasPrefix(first, "_") {
		p.nodes = append(p.nodes, &Node{Kind: KindTarget})
		return true, nil
	}
	if m := footnotePattern.FindStringSubmatch(first); m != nil {
		children, err := parseBody(append([]string{m[2]}, body...), p.base+start)
		if err != nil {
			return false, err
		}
		p.nodes = append(p.nodes, (&Node{Kind: KindFootnote, Name: m[1]}).append(children...))
		return true, nil
	}
	if m := substitutionPattern.FindStringSubmatch(first); m != nil {
		def := &Node{Kind: KindSubstitutionDefinition, Name: m[1], Args: m[3]}
		// Only replace:: carries text; image:: and friends do not.
		if strings.EqualFold(m[2], "replace") {
			text := strings.TrimSpace(strings.Join(append([]string{m[3]}, body...), " "))
			def.append(parseInline(text)...)
		}
		p.nodes = append(p.nodes, def)
		return true, nil
	}
	if m := directivePattern.FindStringSubmatch(first); m != nil {
		n, err := directive(strings.ToLower(m[1]), m[2], body, p.base+start+1)
		if err != nil {
			return false, err
		}
		p.nodes = append(p.nodes, n)
		return true, nil
	}

	text := strings.TrimSpace(strings.Join(append([]string{first}, body...), "\n"))
	comment := &Node{Kind: KindComment}
	if text != "" {
		comment.append(newText(text))
	}
	p.nodes = append(p.nodes, comment)
	return true, nil
}

// directive builds the node for a directive. block holds the dedented lines
// following the directive marker: options, then content.
func directive(name, args string, block []string, line int) (*Node, error) {
	n := &Node{Kind: KindDirective, Name: name, Args: args}
	if opaqueDirectives[name] {
		return n, nil
	}

	j := 0
	for j < len(block) && optionPattern.MatchString(block[j]) {
		j++
	}
	for j < len(block) && block[j] == "" {
		j++
	}
	content, contentLine := block[j:], line+j

	if codeDirectives[name] {
		return n.append(literalBlock(strings.Join(content, "\n"))), nil
	}

	switch {
	case contentDirectives[name] && args != "":
		n.Args = ""
		content, contentLine = append([]string{args}, block...), line-1
	case titledDirectives[name] && args != "":
		n.append((&Node{Kind: KindTitle}).append(parseInline(args)...))
	case proseArgDirectives[name] && args != "":
		n.append((&Node{Kind: KindParagraph}).append(parseInline(args)...))
	}

	children, err := parseBody(content, contentLine)
	if err != nil {
		return nil, err
	}
	return n.append(children...), nil
}
