package transform

import (
	"sort"
	"strings"
)

// EnumerateChirality assigns @ and @@ to every product-side atom bonded to
// an attachment point, breadth first, one atom per round.  The result is
// the sorted set of reactions; k distinct atoms give 2^k entries.
func EnumerateChirality(reaction string) ([]string, error) {
	left, right, err := splitSides(reaction)
	if err != nil {
		return nil, err
	}
	targets := attachmentNeighbours(right)

	type state struct {
		tokens []token
		next   int
	}
	seen := make(map[string]bool)
	queue := []state{{tokens: right}}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s.next == len(targets) {
			seen[joinSides(left, s.tokens)] = true
			continue
		}
		for _, tag := range []string{"@", "@@"} {
			tokens := append([]token(nil), s.tokens...)
			tokens[targets[s.next]] = token{tokAtom, withChirality(tokens[targets[s.next]].text, tag)}
			queue = append(queue, state{tokens: tokens, next: s.next + 1})
		}
	}

	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

// attachmentNeighbours returns the sorted, distinct token indices of the
// non-attachment atoms bonded to an attachment atom.
func attachmentNeighbours(tokens []token) []int {
	set := make(map[int]bool)
	for i, t := range tokens {
		if !isAttachment(t) {
			continue
		}
		if n := atomBefore(tokens, i); n >= 0 && !isAttachment(tokens[n]) {
			set[n] = true
		}
		if n := atomAfter(tokens, i); n >= 0 && !isAttachment(tokens[n]) {
			set[n] = true
		}
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// atomBefore finds the atom that token i is bonded to on its left, skipping
// bonds, ring closures and completed branches, and stepping out of an
// enclosing branch.
func atomBefore(tokens []token, i int) int {
	depth := 0
	for j := i - 1; j >= 0; j-- {
		switch tokens[j].kind {
		case tokDot, tokArrow:
			return -1
		case tokClose:
			depth++
		case tokOpen:
			if depth > 0 {
				depth--
			}
		case tokAtom:
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// atomAfter finds the next chain atom after token i when i starts a chain
// or branch.
func atomAfter(tokens []token, i int) int {
	if !isBoundary(tokens, i-1) {
		return -1
	}
	for j := i + 1; j < len(tokens); j++ {
		switch tokens[j].kind {
		case tokAtom:
			return j
		case tokBond, tokRing:
			continue
		default:
			return -1
		}
	}
	return -1
}

// withChirality writes tag after the element of an atom token, bracketing
// bare atoms and replacing any existing tag.
func withChirality(text, tag string) string {
	if !strings.HasPrefix(text, "[") {
		return "[" + text + tag + "]"
	}
	body := strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	i := 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
	}
	switch {
	case i < len(body) && body[i] == '#':
		i++
		for i < len(body) && body[i] >= '0' && body[i] <= '9' {
			i++
		}
	case i+1 < len(body) && isUpper(body[i]) && isLower(body[i+1]):
		i += 2
	case i+1 < len(body) && (body[i:i+2] == "se" || body[i:i+2] == "as"):
		i += 2
	case i < len(body):
		i++
	}
	rest := strings.TrimLeft(body[i:], "@")
	return "[" + body[:i] + tag + rest + "]"
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
