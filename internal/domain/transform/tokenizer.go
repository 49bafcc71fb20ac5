// Package transform derives reaction-style rewrite patterns from pairs of
// changing fragments: attachment relabelling, acyclic-bond constraints,
// exact-match locking, leaf generation, chirality enumeration and
// reversal.  Everything here works on pattern text; only ExactMatchPattern
// needs a toolkit.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// Arrow separates the reactant and product sides of a reaction pattern.
const Arrow = ">>"

// AcyclicSingleBond constrains an attachment bond to an acyclic single bond.
const AcyclicSingleBond = "-!@"

type tokenKind int

const (
	tokAtom tokenKind = iota
	tokBond
	tokRing
	tokOpen
	tokClose
	tokDot
	tokArrow
)

type token struct {
	kind tokenKind
	text string
}

const bondChars = "-=#:~/\\@!;&,"

func tokenize(s string) ([]token, error) {
	var out []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, patternError(s, fmt.Sprintf("unclosed bracket at %d", i))
			}
			out = append(out, token{tokAtom, s[i : i+end+1]})
			i += end + 1
		case strings.HasPrefix(s[i:], "Cl") || strings.HasPrefix(s[i:], "Br"):
			out = append(out, token{tokAtom, s[i : i+2]})
			i += 2
		case strings.IndexByte("BCNOPSFIbcnopsaA*", c) >= 0:
			out = append(out, token{tokAtom, s[i : i+1]})
			i++
		case c >= '0' && c <= '9':
			out = append(out, token{tokRing, s[i : i+1]})
			i++
		case c == '%':
			if i+3 > len(s) {
				return nil, patternError(s, "truncated ring number")
			}
			out = append(out, token{tokRing, s[i : i+3]})
			i += 3
		case c == '(':
			out = append(out, token{tokOpen, "("})
			i++
		case c == ')':
			out = append(out, token{tokClose, ")"})
			i++
		case c == '.':
			out = append(out, token{tokDot, "."})
			i++
		case c == '>':
			if !strings.HasPrefix(s[i:], Arrow) {
				return nil, patternError(s, fmt.Sprintf("lone '>' at %d", i))
			}
			out = append(out, token{tokArrow, Arrow})
			i += 2
		case strings.IndexByte(bondChars, c) >= 0:
			j := i
			for j < len(s) && strings.IndexByte(bondChars, s[j]) >= 0 {
				j++
			}
			out = append(out, token{tokBond, s[i:j]})
			i = j
		default:
			return nil, patternError(s, fmt.Sprintf("unexpected %q at %d", c, i))
		}
	}
	return out, nil
}

func join(tokens []token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.text)
	}
	return sb.String()
}

func patternError(pattern, detail string) *errors.AppError {
	return errors.New(errors.CodeTransformFailed, "invalid pattern").WithDetail(fmt.Sprintf("%q: %s", pattern, detail))
}

var attachmentRe = regexp.MustCompile(`^\[(\d*)\*(?::(\d+))?\]$`)

// attachmentLabel reports whether t is an attachment atom and its label:
// the map number, else the isotope, else 0.
func attachmentLabel(t token) (int, bool) {
	if t.kind != tokAtom {
		return 0, false
	}
	if t.text == "*" {
		return 0, true
	}
	m := attachmentRe.FindStringSubmatch(t.text)
	if m == nil {
		return 0, false
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		return n, true
	}
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	return 0, true
}

func isAttachment(t token) bool {
	_, ok := attachmentLabel(t)
	return ok
}

func isBoundary(tokens []token, i int) bool {
	return i < 0 || i >= len(tokens) || tokens[i].kind == tokDot || tokens[i].kind == tokArrow
}

// splitSides splits a reaction into exactly two token slices.
func splitSides(reaction string) ([]token, []token, error) {
	tokens, err := tokenize(reaction)
	if err != nil {
		return nil, nil, err
	}
	arrow := -1
	for i, t := range tokens {
		if t.kind == tokArrow {
			if arrow >= 0 {
				return nil, nil, patternError(reaction, "more than one '>>'")
			}
			arrow = i
		}
	}
	if arrow < 0 {
		return nil, nil, patternError(reaction, "missing '>>'")
	}
	return tokens[:arrow], tokens[arrow+1:], nil
}

func joinSides(left, right []token) string {
	return join(left) + Arrow + join(right)
}
