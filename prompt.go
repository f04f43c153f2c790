package studyforge

import (
	"sort"
	"strings"
)

// truncate cuts s to at most n characters on a word boundary, the same
// boundary-respecting idiom the teacher's truncateForEmbed uses (goreason.go)
// so budgeted prompt inputs never sever a word mid-token.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n], ' ')
	if cut <= 0 {
		cut = n
	}
	return strings.TrimSpace(s[:cut])
}

// bulletText flattens a page's bullet tree into plain lines, indenting by
// depth, for inclusion in a prompt (model.go's BulletPoint is a tree; agents
// only need a linear rendering of it).
func bulletText(bullets []BulletPoint) string {
	var b strings.Builder
	var walk func([]BulletPoint)
	walk = func(nodes []BulletPoint) {
		for _, n := range nodes {
			b.WriteString(strings.Repeat("  ", n.Depth))
			b.WriteString("- ")
			b.WriteString(n.Text)
			b.WriteByte('\n')
			if len(n.Children) > 0 {
				walk(n.Children)
			}
		}
	}
	walk(bullets)
	return b.String()
}

// pageText renders a page's raw text plus its bullet outline into one blob,
// truncated to maxChars, the shape every per-page agent prompts against.
func pageText(p Page, maxChars int) string {
	var b strings.Builder
	if p.Title != "" {
		b.WriteString(p.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(p.RawText)
	if bt := bulletText(p.BulletPoints); bt != "" {
		b.WriteString("\n")
		b.WriteString(bt)
	}
	return truncate(b.String(), maxChars)
}

// sampledPages implements the "first 5, last 5, every 5th middle page"
// sampling policy shared by GlobalStructure and KnowledgeClustering for long
// documents (spec.md §4.4 step 1, §4.5). threshold is the caller's own
// page-count gate (globalStructureSampleThreshold or
// knowledgeClusteringSampleThreshold) so the no-op check here always agrees
// with the `len(pages) > threshold` test the caller already made.
func sampledPages(pages []Page, threshold int) []Page {
	n := len(pages)
	if n <= threshold {
		return pages
	}
	seen := make(map[int]bool)
	var out []Page
	add := func(i int) {
		if i < 0 || i >= n || seen[i] {
			return
		}
		seen[i] = true
		out = append(out, pages[i])
	}
	for i := 0; i < 5 && i < n; i++ {
		add(i)
	}
	for i := n - 5; i < n; i++ {
		add(i)
	}
	for i := 0; i < n; i += 5 {
		add(i)
	}
	// Restore page-number order; the three passes above can interleave.
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out
}
