package estimate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanText normalises raw OCR output: NFC form, single spaces inside a
// line, no blank lines, and OCR letter/digit confusions fixed inside
// numeric tokens ("l5O" becomes "150").
func CleanText(text string) string {
	text = norm.NFC.String(strings.ReplaceAll(text, "\r\n", "\n"))
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		for i, f := range fields {
			fields[i] = fixDigits(f)
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}

var digitConfusions = map[rune]rune{'l': '1', 'I': '1', 'O': '0', 'o': '0'}

func fixDigits(token string) string {
	hasDigit := false
	for _, r := range token {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(".,$%-/", r):
		case digitConfusions[r] != 0:
		default:
			return token
		}
	}
	if !hasDigit {
		return token
	}
	return strings.Map(func(r rune) rune {
		if d, ok := digitConfusions[r]; ok {
			return d
		}
		return r
	}, token)
}

// Fold lower-cases s and strips diacritics so that headings and keywords
// match regardless of OCR accent quality: "Café Ñandú" -> "cafe nandu".
func Fold(s string) string {
	return foldIndexed(s).text
}

type folded struct {
	text string
	// offsets[i] is the byte offset in the original string that produced
	// byte i of text; offsets[len(text)] is len(original).
	offsets []int
}

func foldIndexed(s string) folded {
	var b strings.Builder
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		for _, d := range norm.NFKD.String(string(r)) {
			if unicode.Is(unicode.Mn, d) {
				continue
			}
			d = unicode.ToLower(d)
			n, _ := b.WriteRune(d)
			for j := 0; j < n; j++ {
				offsets = append(offsets, i)
			}
		}
	}
	offsets = append(offsets, len(s))
	return folded{text: b.String(), offsets: offsets}
}

// JoinPages concatenates page texts with "---PÁGINA n---" markers.
func JoinPages(pages []PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, fmt.Sprintf("---PÁGINA %d---\n%s\n", p.Number, p.Text))
	}
	return strings.Join(parts, "\n")
}

var currencyPattern = regexp.MustCompile(`[$€¥£]?\s*(\d+(?:[.,]\d+)*)`)

// ExtractCurrency returns the first amount found in text. Thousands
// separators (commas) are removed before parsing.
func ExtractCurrency(text string) (float64, bool) {
	m := currencyPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseNumber parses a single numeric token such as "12,000.00", "$80",
// "1.200,50" or "75". It fails when anything but a number remains.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€¥£ ")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	if lastDot >= 0 && lastComma > lastDot {
		// 1.200,50
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var (
	codeLinePattern = regexp.MustCompile(`^\s*([A-Z0-9]{2,10})\s+(.+)$`)
	unitLinePattern = regexp.MustCompile(`^.+\s+(?:m[²³23]|ml|kg|ton|pza|lote)\s+\d+(?:\.\d+)?\s+\$?\d+(?:,\d+)*\.\d+`)
)

// IsEstimateItem reports whether a line looks like an estimate item: either
// a code followed by a description, or a description followed by unit,
// quantity and price.
func IsEstimateItem(line string) bool {
	return codeLinePattern.MatchString(line) || unitLinePattern.MatchString(line)
}
