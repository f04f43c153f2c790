package docsource

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bbiangul/studyforge"
)

// PDFSource reads per-page raw text from a PDF via ledongthuc/pdf. Each PDF
// page becomes one studyforge.Page; no bullet/table structure is extracted
// (SPEC_FULL.md §6), though headings detected in the page text are carried
// as a flat bullet outline so GlobalStructure/PageClusterer still have
// something to walk.
type PDFSource struct{}

func (PDFSource) Load(path string) (studyforge.FileKind, []byte, []studyforge.Page, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("reading PDF: %w", err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]studyforge.Page, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		pdfPage := reader.Page(i)
		if pdfPage.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(pdfPage)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, studyforge.Page{
			PageNumber:   len(pages) + 1,
			Title:        firstHeading(text),
			RawText:      text,
			BulletPoints: headingOutline(text),
		})
	}

	if len(pages) == 0 {
		return "", nil, nil, fmt.Errorf("no extractable text in PDF")
	}

	return studyforge.FileKindPDF, raw, pages, nil
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom). The default GetPlainText reads text in PDF
// object order, which can put a heading after the body text it labels.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// isLikelyHeading flags a line as a heading when it is at most 100 bytes long
// and is either all-caps (over 2 bytes) or starts with a digit and has a "."
// within its first 10 bytes — the
// same conservative heuristic used to split regulatory-document sections,
// narrowed to the one signal lecture slides actually use (a title line).
func isLikelyHeading(line string) bool {
	if len(line) == 0 || len(line) > 100 {
		return false
	}
	if line == strings.ToUpper(line) && len(line) > 2 {
		return true
	}
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return true
	}
	return false
}

// firstHeading returns the first non-empty line of text, heading or not, as
// the Page's title.
func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isLikelyHeading(line) {
			return line
		}
		return line
	}
	return ""
}

// headingOutline turns heading lines into a flat, depth-0 bullet outline;
// everything else becomes the RawText body rather than a bullet, since a PDF
// page has no native bullet/indent structure to recover.
func headingOutline(text string) []studyforge.BulletPoint {
	var bullets []studyforge.BulletPoint
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && isLikelyHeading(line) {
			bullets = append(bullets, studyforge.BulletPoint{Text: line, Depth: 0})
		}
	}
	return bullets
}
