package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalizeDDLForHashing strips line comments, collapses runs of
// whitespace to a single space, and lowercases the result, so that
// reformatting or re-commenting a statement doesn't register as a change.
// Block comments (/* ... */) are deliberately left in place: a block
// comment can appear mid-expression (e.g. inside a function body between
// two identifiers) where stripping it would alter spacing in a way that's
// hard to reason about consistently, so only the unambiguous line-comment
// case is normalized away.
func normalizeDDLForHashing(ddl string) string {
	var b strings.Builder
	lines := strings.Split(ddl, "\n")
	for i, line := range lines {
		if idx := indexLineComment(line); idx >= 0 {
			line = line[:idx]
		}
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}

	fields := strings.Fields(b.String())
	return strings.ToLower(strings.Join(fields, " "))
}

// indexLineComment finds the start of a "--" line comment outside of any
// single-quoted string on a single line, or -1 if there is none. Only
// single quotes opened on the same line are tracked: a "--" inside a
// dollar-quoted body, a double-quoted identifier, or a string continued
// from an earlier line is treated as a comment start.
func indexLineComment(line string) int {
	inSingle := false
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'':
			inSingle = !inSingle
		case !inSingle && c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			return byteOffset(line, i)
		}
	}
	return -1
}

func byteOffset(s string, runeIdx int) int {
	count := 0
	for i := range s {
		if count == runeIdx {
			return i
		}
		count++
	}
	return len(s)
}

// ddlHash returns the hex-encoded SHA-256 digest of the normalized DDL, the
// value stored as ddl_hash and compared to detect drift between desired and
// recorded state.
func ddlHash(ddl string) string {
	sum := sha256.Sum256([]byte(normalizeDDLForHashing(ddl)))
	return hex.EncodeToString(sum[:])
}
