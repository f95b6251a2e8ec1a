package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// QAPair is a question with its answer. Start and End are rune offsets of
// the pair in the normalized text.
type QAPair struct {
	Question string
	Answer   string
	Start    int
	End      int
}

const maxQuestionChars = 300

var (
	boldQuestion     = regexp.MustCompile(`^\*\*(.+?\?)\*\*\s*(.*)$`)
	prefixedQuestion = regexp.MustCompile(`(?i)^(?:q|question)\s*[:.)]\s*(.+)$`)
	prefixedAnswer   = regexp.MustCompile(`(?i)^(?:a|answer)\s*[:.)]\s*`)
	listMarker       = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
)

// questionLine recognises "**Question?** answer", "Q: question" and plain
// lines ending in a question mark.
func questionLine(line string) (question, rest string, ok bool) {
	l := strings.TrimSpace(line)
	l = strings.TrimSpace(strings.TrimLeft(l, "#"))
	l = listMarker.ReplaceAllString(l, "")

	if m := boldQuestion.FindStringSubmatch(l); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	if m := prefixedQuestion.FindStringSubmatch(l); m != nil {
		return strings.TrimSpace(m[1]), "", true
	}
	if strings.HasSuffix(l, "?") && !prefixedAnswer.MatchString(l) && utf8.RuneCountInString(l) <= maxQuestionChars {
		return l, "", true
	}
	return "", "", false
}

// ExtractFAQ returns the question/answer pairs of FAQ-like text, or nil when
// the text holds fewer than two pairs.
func ExtractFAQ(text string) []QAPair {
	var pairs []QAPair
	var cur QAPair
	var answer []string
	open := false

	flush := func() {
		if open && len(answer) > 0 {
			cur.Answer = strings.Join(answer, " ")
			pairs = append(pairs, cur)
		}
		open = false
		answer = nil
	}

	pos := 0
	for _, line := range strings.Split(text, "\n") {
		lineStart, lineEnd := pos, pos+utf8.RuneCountInString(line)
		pos = lineEnd + 1

		if q, rest, ok := questionLine(line); ok {
			flush()
			cur = QAPair{Question: q, Start: lineStart, End: lineEnd}
			open = true
			if rest != "" {
				answer = append(answer, rest)
			}
			continue
		}
		if !open {
			continue
		}
		l := strings.TrimSpace(line)
		if len(answer) == 0 {
			l = prefixedAnswer.ReplaceAllString(l, "")
		}
		if l == "" {
			continue
		}
		answer = append(answer, l)
		cur.End = lineEnd
	}
	flush()

	if len(pairs) < 2 {
		return nil
	}
	return pairs
}
