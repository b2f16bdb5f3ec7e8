package cypher

import "strings"

type byteClass uint8

const (
	classCode byteClass = iota
	classLiteral
	classComment
)

type lexState int

const (
	stateCode lexState = iota
	stateSingle
	stateDouble
	stateBacktick
	stateLineComment
	stateBlockComment
)

// classify tags every byte of text as plain code, part of a string literal or
// quoted identifier, or part of a comment.
func classify(text string) []byteClass {
	classes := make([]byteClass, len(text))
	state := stateCode
	for i := 0; i < len(text); i++ {
		c := text[i]
		next := byte(0)
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch state {
		case stateCode:
			switch {
			case c == '\'':
				state = stateSingle
				classes[i] = classLiteral
			case c == '"':
				state = stateDouble
				classes[i] = classLiteral
			case c == '`':
				state = stateBacktick
				classes[i] = classLiteral
			case c == '/' && next == '/':
				state = stateLineComment
				classes[i] = classComment
			case c == '/' && next == '*':
				state = stateBlockComment
				classes[i] = classComment
				classes[i+1] = classComment
				i++
			default:
				classes[i] = classCode
			}
		case stateSingle, stateDouble:
			classes[i] = classLiteral
			quote := byte('\'')
			if state == stateDouble {
				quote = '"'
			}
			if c == '\\' && i+1 < len(text) {
				classes[i+1] = classLiteral
				i++
			} else if c == quote {
				state = stateCode
			}
		case stateBacktick:
			classes[i] = classLiteral
			if c == '`' {
				state = stateCode
			}
		case stateLineComment:
			if c == '\n' {
				state = stateCode
				classes[i] = classCode
				continue
			}
			classes[i] = classComment
		case stateBlockComment:
			classes[i] = classComment
			if c == '*' && next == '/' {
				classes[i+1] = classComment
				i++
				state = stateCode
			}
		}
	}
	return classes
}

// SplitStatements splits a script into statements on ';'. Semicolons inside
// strings, quoted identifiers and comments do not split. Comments are stripped
// and blank statements are dropped.
func SplitStatements(script string) []string {
	classes := classify(script)

	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		switch {
		case classes[i] == classComment:
			continue
		case classes[i] == classCode && script[i] == ';':
			flush()
		default:
			current.WriteByte(script[i])
		}
	}
	flush()
	return statements
}

// ParamNames lists the distinct $parameters referenced by text in first-use order.
func ParamNames(text string) []string {
	classes := classify(text)

	var names []string
	seen := make(map[string]struct{})
	for i := 0; i < len(text); i++ {
		if classes[i] != classCode || text[i] != '$' {
			continue
		}
		j := i + 1
		for j < len(text) && classes[j] == classCode && isIdentByte(text[j], j == i+1) {
			j++
		}
		if j == i+1 {
			continue
		}
		name := text[i+1 : j]
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
		i = j - 1
	}
	return names
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
