package research

import (
	"regexp"
	"strconv"
	"strings"
)

// citationPattern matches [3] and grouped markers such as [1, 4].
var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// SanitizeCitations drops citation indices outside 1..sourceCount. A group
// keeps its valid members; a group with none is removed together with the
// space in front of it. It returns the cleaned text and the cited indices in
// ascending order.
func SanitizeCitations(text string, sourceCount int) (string, []int) {
	cited := make(map[int]bool)
	var b strings.Builder
	last := 0
	for _, loc := range citationPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		var keep []string
		for _, part := range strings.Split(text[loc[2]:loc[3]], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > sourceCount {
				continue
			}
			cited[n] = true
			keep = append(keep, strconv.Itoa(n))
		}
		if len(keep) == 0 {
			prefix := text[last:start]
			b.WriteString(strings.TrimSuffix(prefix, " "))
		} else {
			b.WriteString(text[last:start])
			b.WriteString("[" + strings.Join(keep, ", ") + "]")
		}
		last = end
	}
	b.WriteString(text[last:])

	indices := make([]int, 0, len(cited))
	for i := 1; i <= sourceCount; i++ {
		if cited[i] {
			indices = append(indices, i)
		}
	}
	return b.String(), indices
}

// Citations returns the citation indices referenced by text, in order of first
// appearance, without validating them.
func Citations(text string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
