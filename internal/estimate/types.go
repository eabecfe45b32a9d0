// Package estimate turns the OCR text of a construction estimate into
// structured data: keyword metadata, estimate sections, line-item tables and
// the AI enhancement merged on top of them.
package estimate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PageText is the cleaned OCR text of one page. Number is 1-based.
type PageText struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type Metadata struct {
	ProjectName string `json:"project_name"`
	Client      string `json:"client"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	TotalAmount string `json:"total_amount"`
}

type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Item is one priced line of an estimate table.
type Item struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
	Unit        string `json:"unit,omitempty"`
	Quantity    Amount `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
	Amount      Amount `json:"amount"`
	Raw         string `json:"raw"`
}

type Table struct {
	Page int    `json:"page"`
	Rows []Item `json:"rows"`
}

// EnhancedMetadata is the project metadata returned by the AI extractor.
type EnhancedMetadata struct {
	Client        Text   `json:"client"`
	Phone         Text   `json:"phone"`
	PhoneFixed    Text   `json:"phone_fixed"`
	Address       Text   `json:"address"`
	Email         Text   `json:"email"`
	Date          Text   `json:"date"`
	WorkOrder     Text   `json:"work_order"`
	QuantityM2    Amount `json:"quantity_m2"`
	Labor         Amount `json:"mano_obra"`
	Material      Amount `json:"material"`
	TotalMaterial Amount `json:"total_material"`
	TotalLabor    Amount `json:"total_mano_obra"`
	TotalGeneral  Amount `json:"total_general"`
}

type KeyItem struct {
	Material   Text   `json:"material"`
	Units      Text   `json:"units"`
	UnitPrice  Amount `json:"unit_price"`
	TotalPrice Amount `json:"total_price"`
}

// Enhancement is the complete AI answer.
type Enhancement struct {
	Metadata EnhancedMetadata `json:"enhanced_metadata"`
	KeyItems []KeyItem        `json:"key_items"`
}

// IsZero reports whether the enhancement carries no data at all.
func (e Enhancement) IsZero() bool {
	return e.Metadata == (EnhancedMetadata{}) && len(e.KeyItems) == 0
}

type PageError struct {
	Page  int    `json:"page"`
	Error string `json:"error"`
}

// Document is everything extracted from one PDF.
type Document struct {
	Source     string            `json:"source"`
	Digest     string            `json:"digest,omitempty"`
	Pages      int               `json:"pages"`
	Text       string            `json:"text"`
	Metadata   Metadata          `json:"metadata"`
	Sections   []Section         `json:"sections"`
	Tables     []Table           `json:"tables"`
	Enhanced   *EnhancedMetadata `json:"enhanced_metadata,omitempty"`
	KeyItems   []KeyItem         `json:"key_items,omitempty"`
	PageErrors []PageError       `json:"page_errors,omitempty"`
}

// Apply merges an AI enhancement into the document. An empty enhancement
// leaves the document untouched.
func (d *Document) Apply(e Enhancement) {
	if e.IsZero() {
		return
	}
	meta := e.Metadata
	d.Enhanced = &meta
	d.KeyItems = append(d.KeyItems, e.KeyItems...)
}

// ItemCount returns the number of parsed table rows.
func (d *Document) ItemCount() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Rows)
	}
	return n
}

// Amount is a number decoded leniently from a JSON number, a numeric
// string ("$1,200.00") or null. Valid is false when no value was present.
type Amount struct {
	Value float64
	Valid bool
}

func NewAmount(v float64) Amount { return Amount{Value: v, Valid: true} }

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = Amount{}
			return nil
		}
		v, ok := ParseNumber(s)
		if !ok {
			// Models answer "N/A" or "no especificado"; treat as absent.
			*a = Amount{}
			return nil
		}
		*a = NewAmount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("estimate: amount: %w", err)
	}
	*a = NewAmount(v)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

func (a Amount) String() string {
	if !a.Valid {
		return ""
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

// Text is a string that also accepts JSON numbers (phone numbers, work
// orders) and null.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	default:
		*t = Text(string(b))
	}
	return nil
}
