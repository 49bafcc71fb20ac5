package transform

import (
	"strings"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// parseableSide strips query-only bond decorations so the toolkit can read
// a side of a reaction as a structure.
func parseableSide(tokens []token) string {
	clean := make([]token, len(tokens))
	for i, t := range tokens {
		if t.kind == tokBond {
			switch {
			case t.text == "-" || t.text == "=" || t.text == "#" || t.text == ":":
			case strings.HasPrefix(t.text, "-"):
				t.text = "-"
			default:
				t.text = ""
			}
		}
		clean[i] = t
	}
	return join(clean)
}

// ExactMatchPattern rewrites both sides of reaction so every atom is locked
// to its degree, hydrogen count and charge; the result matches only the
// exact substitution pattern.
func ExactMatchPattern[M any](tk toolkit.Toolkit[M], reaction string, acyclicSingle bool) (string, error) {
	left, right, err := splitSides(reaction)
	if err != nil {
		return "", err
	}
	sides := make([][]token, 0, 2)
	for _, side := range [][]token{left, right} {
		m, err := tk.Parse(parseableSide(side))
		if err != nil {
			return "", errors.Wrap(err, errors.CodeTransformFailed, "parse reaction side")
		}
		q, err := tk.ExactQuery(m)
		tk.Release(m)
		if err != nil {
			return "", errors.Wrap(err, errors.CodeTransformFailed, "exact query")
		}
		tokens, err := tokenize(q)
		if err != nil {
			return "", err
		}
		if acyclicSingle {
			tokens = constrainAttachmentBonds(tokens)
		}
		sides = append(sides, tokens)
	}
	return joinSides(sides[0], sides[1]), nil
}
