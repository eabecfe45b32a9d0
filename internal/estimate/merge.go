package estimate

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Field is one key/value pair of the merged metadata. Value is either a
// string or a float64.
type Field struct {
	Key   string
	Value any
}

// Label renders the key for display: "work_order" -> "Work Order".
func (f Field) Label() string {
	return cases.Title(language.Und).String(strings.ReplaceAll(f.Key, "_", " "))
}

func (m Metadata) fields() []Field {
	return []Field{
		{"project_name", m.ProjectName},
		{"client", m.Client},
		{"date", m.Date},
		{"location", m.Location},
		{"total_amount", m.TotalAmount},
	}
}

func (e EnhancedMetadata) fields() []Field {
	return []Field{
		{"client", string(e.Client)},
		{"phone", string(e.Phone)},
		{"phone_fixed", string(e.PhoneFixed)},
		{"address", string(e.Address)},
		{"email", string(e.Email)},
		{"date", string(e.Date)},
		{"work_order", string(e.WorkOrder)},
		{"quantity_m2", amountValue(e.QuantityM2)},
		{"mano_obra", amountValue(e.Labor)},
		{"material", amountValue(e.Material)},
		{"total_material", amountValue(e.TotalMaterial)},
		{"total_mano_obra", amountValue(e.TotalLabor)},
		{"total_general", amountValue(e.TotalGeneral)},
	}
}

func amountValue(a Amount) any {
	if !a.Valid {
		return nil
	}
	return a.Value
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return x == 0
	}
	return false
}

// MergedMetadata combines local and AI metadata. Local values come first
// and are never overwritten; AI values only fill keys that are empty or
// missing. Empty values are dropped from the result.
func (d *Document) MergedMetadata() []Field {
	merged := d.Metadata.fields()
	if d.Enhanced != nil {
		index := make(map[string]int, len(merged))
		for i, f := range merged {
			index[f.Key] = i
		}
		for _, f := range d.Enhanced.fields() {
			if isEmpty(f.Value) {
				continue
			}
			if i, ok := index[f.Key]; ok {
				if isEmpty(merged[i].Value) {
					merged[i].Value = f.Value
				}
				continue
			}
			index[f.Key] = len(merged)
			merged = append(merged, f)
		}
	}

	out := merged[:0]
	for _, f := range merged {
		if !isEmpty(f.Value) {
			out = append(out, f)
		}
	}
	return out
}

// headerKeys maps folded workbook headers to merged metadata keys.
var headerKeys = map[string][]string{
	"cliente":            {"client"},
	"celular":            {"phone"},
	"tel_fijo":           {"phone_fixed"},
	"telefono":           {"phone_fixed", "phone"},
	"direccion":          {"address", "location"},
	"e_mail":             {"email"},
	"email":              {"email"},
	"orden_de_trabajo":   {"work_order"},
	"m2":                 {"quantity_m2"},
	"mano_de_obra":       {"mano_obra"},
	"material":           {"material"},
	"total_material":     {"total_material"},
	"total_mano_de_obra": {"total_mano_obra"},
	"total_general":      {"total_general", "total_amount"},
	"proyecto":           {"project_name"},
	"fecha":              {"date"},
	"ubicacion":          {"location"},
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// HeaderKey normalises a header to its lookup form: "Tel-Fijo" -> "tel_fijo".
func HeaderKey(header string) string {
	return strings.Trim(nonWord.ReplaceAllString(Fold(header), "_"), "_")
}

// SummaryRow lays the merged metadata out under the given headers. A header
// matches a known alias or, failing that, a metadata key equal to its
// normalised form. Totals held as text are converted to numbers. ok is false
// when no header received a value.
func (d *Document) SummaryRow(headers []string) (row []any, ok bool) {
	values := make(map[string]any)
	for _, f := range d.MergedMetadata() {
		values[f.Key] = f.Value
	}
	row = make([]any, len(headers))
	for i, h := range headers {
		key := HeaderKey(h)
		candidates := headerKeys[key]
		if candidates == nil {
			candidates = []string{key}
		}
		for _, c := range candidates {
			v, found := values[c]
			if !found {
				continue
			}
			if s, isText := v.(string); isText && c == "total_amount" {
				if n, parsed := ParseNumber(s); parsed {
					v = n
				}
			}
			row[i] = v
			ok = true
			break
		}
	}
	return row, ok
}
