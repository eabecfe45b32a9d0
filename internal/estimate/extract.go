package estimate

import (
	"regexp"
	"strings"

	"github.com/practicos/internal/profile"
)

// metadataFields is the matching order of keyword metadata. A line fills at
// most one field: the first whose keyword it contains and that is still
// empty.
var metadataFields = []string{"project_name", "client", "date", "location", "total_amount"}

// ExtractMetadata scans text line by line for "<keyword>: value" entries.
// The total is taken from the text following the first "$" on its line.
func ExtractMetadata(text string, p *profile.Profile) Metadata {
	var meta Metadata
	values := map[string]*string{
		"project_name": &meta.ProjectName,
		"client":       &meta.Client,
		"date":         &meta.Date,
		"location":     &meta.Location,
		"total_amount": &meta.TotalAmount,
	}
	keywords := make(map[string]string, len(metadataFields))
	for _, field := range metadataFields {
		if kw := p.MetadataKeywords[field]; kw != "" {
			keywords[field] = Fold(kw)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := Fold(line)
		for _, field := range metadataFields {
			kw, ok := keywords[field]
			if !ok || *values[field] != "" || !strings.Contains(lower, kw) {
				continue
			}
			if field == "total_amount" {
				if _, amount, found := strings.Cut(line, "$"); found {
					*values[field] = strings.TrimSpace(amount)
				}
			} else if _, value, found := strings.Cut(line, ":"); found {
				*values[field] = strings.TrimSpace(value)
			}
			break
		}
	}
	return meta
}

// ExtractSections finds every profile section heading present in text. A
// section runs from its heading up to the closest heading of any other
// section that follows it, or to the end of the text.
func ExtractSections(text string, names []string) []Section {
	ft := foldIndexed(text)
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = Fold(n)
	}

	var sections []Section
	for i, key := range keys {
		if key == "" {
			continue
		}
		start := strings.Index(ft.text, key)
		if start < 0 {
			continue
		}
		from := start + len(key)
		end := len(ft.text)
		for j, other := range keys {
			if j == i || other == "" {
				continue
			}
			if idx := strings.Index(ft.text[from:], other); idx >= 0 && from+idx < end {
				end = from + idx
			}
		}
		content := strings.TrimSpace(text[ft.offsets[start]:ft.offsets[end]])
		sections = append(sections, Section{Name: names[i], Content: content})
	}
	return sections
}

var (
	itemCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)
	summaryLine     = regexp.MustCompile(`^(sub)?total\b|^iva\b|^importe total\b`)
)

var units = map[string]string{
	"m²": "m²", "m2": "m²", "m³": "m³", "m3": "m³",
	"ml": "ml", "kg": "kg", "ton": "ton", "pza": "pza", "lote": "lote",
	"m": "m", "pieza": "pza", "pzas": "pza", "jgo": "jgo",
}

// ParseItem splits an estimate line into code, description, unit and the
// trailing quantity, unit price and amount. It reports false for lines that
// are not items, such as totals.
func ParseItem(line string) (Item, bool) {
	line = strings.TrimSpace(line)
	if line == "" || summaryLine.MatchString(Fold(line)) || !IsEstimateItem(line) {
		return Item{}, false
	}
	tokens := strings.Fields(line)
	item := Item{Raw: line}

	if len(tokens) > 1 && itemCodePattern.MatchString(tokens[0]) && strings.ContainsAny(tokens[0], "0123456789") {
		item.Code = tokens[0]
		tokens = tokens[1:]
	}

	var numbers []float64
	for len(tokens) > 0 && len(numbers) < 3 {
		v, ok := ParseNumber(tokens[len(tokens)-1])
		if !ok {
			break
		}
		numbers = append(numbers, v)
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) > 1 {
		if u, ok := units[strings.ToLower(tokens[len(tokens)-1])]; ok {
			item.Unit = u
			tokens = tokens[:len(tokens)-1]
		}
	}
	item.Description = strings.Join(tokens, " ")
	if item.Description == "" {
		return Item{}, false
	}

	// numbers are collected right to left: amount, unit price, quantity.
	switch len(numbers) {
	case 3:
		item.Quantity = NewAmount(numbers[2])
		item.UnitPrice = NewAmount(numbers[1])
		item.Amount = NewAmount(numbers[0])
	case 2:
		item.Quantity = NewAmount(numbers[1])
		item.Amount = NewAmount(numbers[0])
	case 1:
		item.Amount = NewAmount(numbers[0])
	default:
		if item.Code == "" {
			return Item{}, false
		}
	}
	return item, true
}

// ExtractTables collects the item lines of every page. Pages without items
// produce no table.
func ExtractTables(pages []PageText) []Table {
	var tables []Table
	for _, page := range pages {
		var rows []Item
		for _, line := range strings.Split(page.Text, "\n") {
			if item, ok := ParseItem(line); ok {
				rows = append(rows, item)
			}
		}
		if len(rows) > 0 {
			tables = append(tables, Table{Page: page.Number, Rows: rows})
		}
	}
	return tables
}

// Analyze runs the local (non-AI) extraction over the cleaned page texts.
func Analyze(source string, pages []PageText, p *profile.Profile) *Document {
	text := JoinPages(pages)
	return &Document{
		Source:   source,
		Pages:    len(pages),
		Text:     text,
		Metadata: ExtractMetadata(text, p),
		Sections: ExtractSections(text, p.EstimateSections),
		Tables:   ExtractTables(pages),
	}
}
