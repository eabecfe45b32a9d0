// Package profile describes the layout of a construction estimate: the
// workbook headers, the section headings searched in the OCR text and the
// keywords that introduce metadata lines.
package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Profile struct {
	SheetName        string            `yaml:"sheet_name"`
	TableHeaders     []string          `yaml:"table_headers"`
	EstimateSections []string          `yaml:"estimate_sections"`
	MetadataKeywords map[string]string `yaml:"metadata_keywords"`
}

// Default returns a fresh copy of the embedded profile.
func Default() *Profile {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("profile: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads a profile from path. An empty path returns Default. Fields
// missing in the file are taken from the default profile.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	p.fillFrom(Default())
	return p, p.Validate()
}

// Parse decodes a YAML profile without applying defaults.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &p, nil
}

func (p *Profile) fillFrom(def *Profile) {
	if p.SheetName == "" {
		p.SheetName = def.SheetName
	}
	if len(p.TableHeaders) == 0 {
		p.TableHeaders = def.TableHeaders
	}
	if len(p.EstimateSections) == 0 {
		p.EstimateSections = def.EstimateSections
	}
	if p.MetadataKeywords == nil {
		p.MetadataKeywords = map[string]string{}
	}
	for k, v := range def.MetadataKeywords {
		if _, ok := p.MetadataKeywords[k]; !ok {
			p.MetadataKeywords[k] = v
		}
	}
}

func (p *Profile) Validate() error {
	switch {
	case p.SheetName == "":
		return errors.New("profile: sheet_name is required")
	case utf8.RuneCountInString(p.SheetName) > 31:
		return fmt.Errorf("profile: sheet_name %q exceeds 31 characters", p.SheetName)
	case len(p.TableHeaders) == 0:
		return errors.New("profile: at least one table header is required")
	case len(p.EstimateSections) == 0:
		return errors.New("profile: at least one estimate section is required")
	}
	return nil
}
