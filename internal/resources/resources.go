// Package resources holds the crisis and support contacts shown to students.
package resources

import (
	"sort"
	"strings"
	"unicode"
)

// Resource is one support contact.
type Resource struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Description string `json:"description"`
	// Urgent resources answer 24/7 and are listed first.
	Urgent bool `json:"urgent"`
}

// EmergencyNumber is the number offered as the primary call-now action.
const EmergencyNumber = "988"

// CrisisTextLineSMS opens a text message to the Crisis Text Line with the HOME keyword.
const CrisisTextLineSMS = "SMSTO:741741:HOME"

var catalog = []Resource{
	{
		Name:        "BU Police Emergency",
		Contact:     "911 or (617) 353-2121",
		Description: "24/7 emergency response for life-threatening situations",
		Urgent:      true,
	},
	{
		Name:        "Crisis Text Line",
		Contact:     "Text 'HOME' to 741741",
		Description: "24/7 text-based crisis support",
		Urgent:      true,
	},
	{
		Name:        "National Suicide Prevention Lifeline",
		Contact:     "988 or 1-800-273-8255",
		Description: "24/7 suicide prevention hotline",
		Urgent:      true,
	},
	{
		Name:        "BU Student Health Services",
		Contact:     "(617) 353-3569",
		Description: "Professional counseling and psychiatric services",
		Urgent:      false,
	},
}

// Crisis returns the catalog with urgent resources first. The slice is a copy.
func Crisis() []Resource {
	out := make([]Resource, len(catalog))
	copy(out, catalog)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Urgent && !out[j].Urgent })
	return out
}

// Urgent returns only the 24/7 resources.
func Urgent() []Resource {
	var out []Resource
	for _, r := range catalog {
		if r.Urgent {
			out = append(out, r)
		}
	}
	return out
}

// Dialable returns the digits of the first number in the contact, or "" if it has none.
// "911 or (617) 353-2121" gives "911"; "Text 'HOME' to 741741" gives "741741".
func (r Resource) Dialable() string {
	first, _, _ := strings.Cut(r.Contact, " or ")
	var b strings.Builder
	for _, c := range first {
		if unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}
