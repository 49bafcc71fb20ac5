package transform

import "fmt"

var acyclicBond = token{tokBond, AcyclicSingleBond}

// RewriteToReaction turns isotope-labelled attachments ([n*], or a bare *
// meaning label 1) into atom-mapped wildcards [*:n].  With acyclicSingle,
// every attachment bond is constrained to an acyclic single bond.  Applying
// it to its own output changes nothing.
func RewriteToReaction(pattern string, acyclicSingle bool) (string, error) {
	tokens, err := tokenize(pattern)
	if err != nil {
		return "", err
	}
	for i, t := range tokens {
		label, ok := attachmentLabel(t)
		if !ok {
			continue
		}
		if label == 0 {
			label = 1
		}
		tokens[i] = token{tokAtom, fmt.Sprintf("[*:%d]", label)}
	}
	if acyclicSingle {
		tokens = constrainAttachmentBonds(tokens)
	}
	return join(tokens), nil
}

// TransformPattern builds the reaction left>>right from two canonical
// changing fragments.
func TransformPattern(left, right string, acyclicSingle bool) (string, error) {
	return RewriteToReaction(left+Arrow+right, acyclicSingle)
}

// Reverse swaps the two sides of a reaction.
func Reverse(reaction string) (string, error) {
	left, right, err := splitSides(reaction)
	if err != nil {
		return "", err
	}
	return joinSides(right, left), nil
}

func adjacentToAttachment(tokens []token, i int) bool {
	return (i > 0 && isAttachment(tokens[i-1])) || (i+1 < len(tokens) && isAttachment(tokens[i+1]))
}

// constrainAttachmentBonds makes every bond of an attachment atom -!@.  A
// plain "-" is replaced, an implicit bond gets one inserted at the leading,
// trailing and branch-opening positions, and other bond expressions are
// left alone.
func constrainAttachmentBonds(tokens []token) []token {
	out := make([]token, 0, len(tokens)+4)
	lastIsBond := func() bool { return len(out) > 0 && out[len(out)-1].kind == tokBond }

	for i, t := range tokens {
		if t.kind == tokBond {
			if t.text == "-" && adjacentToAttachment(tokens, i) {
				t = acyclicBond
			}
			out = append(out, t)
			continue
		}
		if !isAttachment(t) {
			out = append(out, t)
			continue
		}

		nextEnd := isBoundary(tokens, i+1) || tokens[i+1].kind == tokClose
		switch {
		case i > 0 && tokens[i-1].kind == tokOpen:
			out = append(out, acyclicBond, t)
		case isBoundary(tokens, i-1):
			out = append(out, t)
			if !nextEnd && tokens[i+1].kind == tokAtom {
				out = append(out, acyclicBond)
			}
		case nextEnd && !lastIsBond():
			out = append(out, acyclicBond, t)
		default:
			out = append(out, t)
		}
	}
	return out
}
