package assembly

import "strings"

// Section is one labeled block of an assembled prompt.
type Section struct {
	Label string
	Body  string
}

// Document is an ordered list of labeled sections. Building the structure
// separately from rendering keeps formatting testable independent of data
// sourcing.
type Document struct {
	sections []Section
}

// Add appends a section. Sections with an empty body are dropped.
func (d *Document) Add(label, body string) {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return
	}
	d.sections = append(d.sections, Section{Label: label, Body: body})
}

// Sections returns the ordered sections.
func (d *Document) Sections() []Section {
	return d.sections
}

// Render produces the final text blob. Output is byte-stable for identical
// inputs.
func (d *Document) Render() string {
	var sb strings.Builder
	for i, s := range d.sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("=== ")
		sb.WriteString(s.Label)
		sb.WriteString(" ===\n")
		sb.WriteString(s.Body)
		sb.WriteString("\n")
	}
	return sb.String()
}
