package models

// CascadingSelectOption represents one selectable value of a JIRA cascading
// select field, along with the values nested underneath it. The JSON shape
// matches the "allowedValues" entries returned by the createmeta endpoint.
type CascadingSelectOption struct {
	Value         string                  `json:"value"`
	NestedOptions []CascadingSelectOption `json:"children,omitempty"`
}

// Requirement is one node of the requirement hierarchy synthesized from a
// cascading select. The type (capability, feature, ...) is assigned by depth
// in the source tree, not stored in JIRA.
type Requirement struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Narrative string        `json:"narrative"`
	Children  []Requirement `json:"children,omitempty"`
}

// TestTag is a flat (name, type) label attached to a test outcome.
type TestTag struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Release represents a release or iteration read from the release custom
// field, with any nested sub-releases.
type Release struct {
	Name     string    `json:"name"`
	Children []Release `json:"children,omitempty"`
}
