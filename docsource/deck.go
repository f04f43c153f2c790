package docsource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bbiangul/studyforge"
)

// deckFixture is the on-disk JSON shape DeckSource reads. It is a fixture
// format invented for this repository, not a real slide-deck export — real
// OOXML parsing stays out of scope (SPEC_FULL.md §6).
type deckFixture struct {
	Pages []deckPage `json:"pages"`
}

type deckPage struct {
	PageNumber        int                `json:"page_number"`
	Title             string             `json:"title"`
	RawText           string             `json:"raw_text"`
	BulletPoints      []deckBullet       `json:"bullet_points"`
	ImageDescriptions []string           `json:"image_descriptions"`
	BulletTable       *deckBulletTableRef `json:"bullet_table,omitempty"`
}

type deckBullet struct {
	Text     string       `json:"text"`
	Depth    int          `json:"depth"`
	Children []deckBullet `json:"children,omitempty"`
}

// deckBulletTableRef points at a sheet in a companion .xlsx workbook whose
// rows become this page's bullet points — the "optionally pulling
// bullet_points table rows from a referenced .xlsx sheet" adapter
// SPEC_FULL.md §6 describes.
type deckBulletTableRef struct {
	XLSXPath string `json:"xlsx_path"`
	Sheet    string `json:"sheet"`
}

// DeckSource reads a JSON deck-fixture file directly into Page values,
// optionally resolving a page's bullet_points from a referenced .xlsx sheet
// via excelize (SPEC_FULL.md §6).
type DeckSource struct{}

func (DeckSource) Load(path string) (studyforge.FileKind, []byte, []studyforge.Page, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("reading deck fixture: %w", err)
	}

	var fixture deckFixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return "", nil, nil, fmt.Errorf("parsing deck fixture: %w", err)
	}
	if len(fixture.Pages) == 0 {
		return "", nil, nil, fmt.Errorf("deck fixture has no pages")
	}

	pages := make([]studyforge.Page, 0, len(fixture.Pages))
	for _, dp := range fixture.Pages {
		bullets := convertBullets(dp.BulletPoints)

		if dp.BulletTable != nil {
			tableBullets, err := loadBulletTable(filepath.Join(filepath.Dir(path), dp.BulletTable.XLSXPath), dp.BulletTable.Sheet)
			if err != nil {
				return "", nil, nil, fmt.Errorf("page %d bullet table: %w", dp.PageNumber, err)
			}
			bullets = append(bullets, tableBullets...)
		}

		pages = append(pages, studyforge.Page{
			PageNumber:        dp.PageNumber,
			Title:             dp.Title,
			RawText:           dp.RawText,
			BulletPoints:      bullets,
			ImageDescriptions: dp.ImageDescriptions,
		})
	}

	return studyforge.FileKindDeck, raw, pages, nil
}

func convertBullets(in []deckBullet) []studyforge.BulletPoint {
	if len(in) == 0 {
		return nil
	}
	out := make([]studyforge.BulletPoint, len(in))
	for i, b := range in {
		out[i] = studyforge.BulletPoint{
			Text:     b.Text,
			Depth:    b.Depth,
			Children: convertBullets(b.Children),
		}
	}
	return out
}

// loadBulletTable reads one sheet of an .xlsx workbook and represents each
// row as a leaf bullet whose Text holds the pipe-joined cell values.
func loadBulletTable(xlsxPath, sheet string) ([]studyforge.BulletPoint, error) {
	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", xlsxPath, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetList()[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	bullets := make([]studyforge.BulletPoint, 0, len(rows))
	for _, row := range rows {
		text := strings.TrimSpace(strings.Join(row, " | "))
		if text == "" {
			continue
		}
		bullets = append(bullets, studyforge.BulletPoint{Text: text, Depth: 0})
	}
	return bullets, nil
}
