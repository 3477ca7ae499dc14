package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IssueSummary represents the subset of a JIRA issue this tool reads.
// The Names map comes from the "expand=names" query parameter and maps
// custom field IDs (customfield_NNNNN) to their display names.
type IssueSummary struct {
	Key    string            `json:"key"`
	Fields IssueFields       `json:"fields"`
	Names  map[string]string `json:"names"`
}

// IssueFields represents the fields of a JIRA issue. Custom fields are kept
// as raw JSON because their shape depends on the field type.
type IssueFields struct {
	Summary      string                     `json:"summary"`
	IssueType    JiraIssueType              `json:"issuetype"`
	FixVersions  []JiraVersion              `json:"fixVersions"`
	CustomFields map[string]json.RawMessage `json:"-"`
}

// JiraIssueType represents a JIRA issue type
type JiraIssueType struct {
	Name string `json:"name"`
}

// JiraVersion represents a JIRA project version
type JiraVersion struct {
	Name string `json:"name"`
}

// CascadingValue is the value a cascading select field stores on an issue:
// the selected option at one level, plus the selection at the next level.
type CascadingValue struct {
	Value string          `json:"value"`
	Child *CascadingValue `json:"child,omitempty"`
}

// JiraProjectInfo represents JIRA project information
type JiraProjectInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateMeta represents the createmeta response, expanded with field metadata
type CreateMeta struct {
	Projects []CreateMetaProject `json:"projects"`
}

// CreateMetaProject represents one project entry of a createmeta response
type CreateMetaProject struct {
	Key        string                `json:"key"`
	IssueTypes []CreateMetaIssueType `json:"issuetypes"`
}

// CreateMetaIssueType carries the per-field metadata for one issue type
type CreateMetaIssueType struct {
	Name   string               `json:"name"`
	Fields map[string]FieldMeta `json:"fields"`
}

// FieldMeta describes one field in createmeta. For cascading selects the
// allowed values form a nested option tree.
type FieldMeta struct {
	Name          string                  `json:"name"`
	AllowedValues []CascadingSelectOption `json:"allowedValues"`
}

// UnmarshalJSON decodes the known fields and additionally captures every
// customfield_* entry as raw JSON for later lookup by field name.
func (f *IssueFields) UnmarshalJSON(data []byte) error {
	type plain IssueFields
	var fields plain
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	fields.CustomFields = make(map[string]json.RawMessage)
	for key, raw := range all {
		if strings.HasPrefix(key, "customfield_") {
			fields.CustomFields[key] = raw
		}
	}

	*f = IssueFields(fields)
	return nil
}

// CustomFieldValues returns the cascading-select value stored under the named
// custom field as an ordered list of strings, outermost level first. A missing
// or empty field returns nil without an error; a value that cannot be decoded
// as a cascading selection is an error.
func (i *IssueSummary) CustomFieldValues(fieldName string) ([]string, error) {
	fieldID := fieldName
	for id, name := range i.Names {
		if name == fieldName {
			fieldID = id
			break
		}
	}

	raw, ok := i.Fields.CustomFields[fieldID]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var selected CascadingValue
	if err := json.Unmarshal(raw, &selected); err != nil {
		return nil, fmt.Errorf("custom field %q on issue %s has an unexpected value: %w", fieldName, i.Key, err)
	}
	if selected.Value == "" {
		return nil, nil
	}

	var values []string
	for level := &selected; level != nil; level = level.Child {
		values = append(values, level.Value)
	}
	return values, nil
}

// FixVersionNames returns the names of the issue's fix versions
func (i *IssueSummary) FixVersionNames() []string {
	var names []string
	for _, version := range i.Fields.FixVersions {
		names = append(names, version.Name)
	}
	return names
}

// IssueTypeName returns the name of the issue's type
func (i *IssueSummary) IssueTypeName() string {
	return i.Fields.IssueType.Name
}
