package services

import (
	"errors"
	"fmt"

	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/config"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/helpers"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/models"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/repositories"
)

// issueClient is the JIRA lookup surface the provider depends on. It is
// satisfied by repositories.JiraRepository.
type issueClient interface {
	FindOptionsForCascadingSelect(fieldName string) ([]models.CascadingSelectOption, error)
	FindByKey(issueKey string) (*models.IssueSummary, error)
}

// RequirementsProvider turns a cascading select custom field into a
// requirement hierarchy and maps issues onto it. The requirement forest and
// its ancestor index are fetched lazily and cached for the provider's
// lifetime; build a new provider to pick up JIRA-side changes. A provider is
// meant for a single caller: the lazy caches are not guarded against
// concurrent first use.
type RequirementsProvider struct {
	client issueClient

	requirementsField string
	releaseField      string
	requirementTypes  []string
	releaseModeActive bool

	requirements       []models.Requirement
	requirementsLoaded bool
	ancestors          map[string][]models.Requirement

	releases       []models.Release
	releasesLoaded bool
}

// NewRequirementsProvider creates a provider reading requirements via the
// given client, configured per cfg.
func NewRequirementsProvider(client issueClient, cfg *config.RequirementsConfig) *RequirementsProvider {
	return &RequirementsProvider{
		client:            client,
		requirementsField: cfg.CustomField,
		releaseField:      cfg.ReleaseField,
		requirementTypes:  cfg.Types,
		releaseModeActive: cfg.UseCustomFieldReleases,
	}
}

// GetRequirements returns the requirement forest synthesized from the
// requirements custom field. The forest is fetched once; a failure to read
// the field metadata degrades to an empty forest rather than an error.
func (p *RequirementsProvider) GetRequirements() []models.Requirement {
	if !p.requirementsLoaded {
		options, err := p.client.FindOptionsForCascadingSelect(p.requirementsField)
		if err != nil {
			helpers.PrintWarning("No root requirements found: %v", err)
			options = nil
		}
		p.requirements = p.convertToRequirements(options, 0)
		p.requirementsLoaded = true
	}
	return p.requirements
}

// convertToRequirements maps cascading options at the given depth onto
// requirements, depth-first. The requirement type is a function of depth
// alone.
func (p *RequirementsProvider) convertToRequirements(options []models.CascadingSelectOption, level int) []models.Requirement {
	requirements := []models.Requirement{}
	for _, option := range options {
		requirements = append(requirements, models.Requirement{
			Name:      option.Value,
			Type:      p.requirementType(level),
			Narrative: option.Value,
			Children:  p.convertToRequirements(option.NestedOptions, level+1),
		})
	}
	return requirements
}

// requirementType names the requirement level at the given depth. Depths
// beyond the configured list reuse its last entry.
func (p *RequirementsProvider) requirementType(level int) string {
	if level < len(p.requirementTypes) {
		return p.requirementTypes[level]
	}
	return p.requirementTypes[len(p.requirementTypes)-1]
}

// requirementKey derives the index key for a requirement. Names are assumed
// unique within a type across the forest.
func requirementKey(requirementType, name string) string {
	return requirementType + ":" + name
}

// requirementAncestors returns the cached ancestor index, building it on
// first use.
func (p *RequirementsProvider) requirementAncestors() map[string][]models.Requirement {
	if p.ancestors == nil {
		p.ancestors = make(map[string][]models.Requirement)
		for _, requirement := range p.GetRequirements() {
			p.ancestors[requirementKey(requirement.Type, requirement.Name)] = []models.Requirement{}
			p.indexChildren([]models.Requirement{requirement}, requirement.Children)
		}
	}
	return p.ancestors
}

func (p *RequirementsProvider) indexChildren(parents []models.Requirement, children []models.Requirement) {
	for _, child := range children {
		p.ancestors[requirementKey(child.Type, child.Name)] = parents
		parentsAndChild := append(append([]models.Requirement{}, parents...), child)
		p.indexChildren(parentsAndChild, child.Children)
	}
}

// AncestorsOf returns a requirement's strict ancestors, outermost root first,
// direct parent last. A top-level requirement, or one absent from the forest,
// yields an empty list.
func (p *RequirementsProvider) AncestorsOf(requirement models.Requirement) []models.Requirement {
	if parents, ok := p.requirementAncestors()[requirementKey(requirement.Type, requirement.Name)]; ok {
		return parents
	}
	return []models.Requirement{}
}

// ParentRequirementOf resolves the most specific requirement the first of the
// given issue keys is filed under, or nil if none of them leads to one. An
// issue JIRA does not know is treated as having no parent requirement; any
// other lookup failure is returned as an error.
func (p *RequirementsProvider) ParentRequirementOf(issueKeys []string) (*models.Requirement, error) {
	if len(issueKeys) == 0 {
		return nil, nil
	}
	return p.parentRequirementByIssueKey(issueKeys[0])
}

func (p *RequirementsProvider) parentRequirementByIssueKey(issueKey string) (*models.Requirement, error) {
	issue, err := p.client.FindByKey(issueKey)
	if err != nil {
		if errors.Is(err, repositories.ErrIssueNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve requirement for issue %s: %w", issueKey, err)
	}

	values, err := issue.CustomFieldValues(p.requirementsField)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve requirement for issue %s: %w", issueKey, err)
	}

	requirements := p.requirementsCalled(values)
	if len(requirements) == 0 {
		return nil, nil
	}
	return &requirements[len(requirements)-1], nil
}

// requirementsCalled rebuilds a requirement chain from the field's stored
// value list, applying the same depth-to-type rule as the tree builder. The
// chain is synthetic: it is not matched against the cached forest.
func (p *RequirementsProvider) requirementsCalled(fieldValues []string) []models.Requirement {
	var matching []models.Requirement
	for level, value := range fieldValues {
		matching = append(matching, models.Requirement{
			Name:      value,
			Type:      p.requirementType(level),
			Narrative: value,
		})
	}
	return matching
}

// AssociatedRequirementsOf returns the parent requirement of the given issue
// keys followed by its ancestors from the cached forest, outermost last.
func (p *RequirementsProvider) AssociatedRequirementsOf(issueKeys []string) ([]models.Requirement, error) {
	parent, err := p.ParentRequirementOf(issueKeys)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	associated := []models.Requirement{*parent}
	associated = append(associated, p.AncestorsOf(*parent)...)
	return associated, nil
}

// RequirementFor looks up the forest node matching the tag's (type, name)
// pair, scanning the flattened forest in depth-first order.
func (p *RequirementsProvider) RequirementFor(tag models.TestTag) (*models.Requirement, bool) {
	for _, requirement := range flattenRequirements(p.GetRequirements()) {
		if requirement.Type == tag.Type && requirement.Name == tag.Name {
			return &requirement, true
		}
	}
	return nil, false
}

// flattenRequirements lists the forest pre-order, each node before its
// children.
func flattenRequirements(requirements []models.Requirement) []models.Requirement {
	var flattened []models.Requirement
	for _, requirement := range requirements {
		flattened = append(flattened, requirement)
		flattened = append(flattened, flattenRequirements(requirement.Children)...)
	}
	return flattened
}

// TagsFor produces the union of tags for the given issue keys: the
// requirement chain each issue is filed under, a tag from the issue's own
// summary and type, and its version tags. Version tags come from the release
// custom field (typed "version") when release mode is active, otherwise from
// the fix versions (typed "Version").
func (p *RequirementsProvider) TagsFor(issueKeys []string) (map[models.TestTag]struct{}, error) {
	tags := make(map[models.TestTag]struct{})
	for _, issueKey := range issueKeys {
		if err := p.collectTagsFromIssue(issueKey, tags); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

func (p *RequirementsProvider) collectTagsFromIssue(issueKey string, tags map[models.TestTag]struct{}) error {
	parent, err := p.parentRequirementByIssueKey(issueKey)
	if err != nil {
		return err
	}
	if parent != nil {
		tags[models.TestTag{Name: parent.Name, Type: parent.Type}] = struct{}{}
		for _, ancestor := range p.AncestorsOf(*parent) {
			tags[models.TestTag{Name: ancestor.Name, Type: ancestor.Type}] = struct{}{}
		}
	}

	// The issue record is fetched again for the self and version tags; a
	// failure here only loses those tags, the requirement tags above stand.
	issue, err := p.client.FindByKey(issueKey)
	if err != nil {
		helpers.PrintError("Could not load issue %s: %v", issueKey, err)
		return nil
	}

	tags[models.TestTag{Name: issue.Fields.Summary, Type: issue.IssueTypeName()}] = struct{}{}

	if p.releaseModeActive {
		versions, err := issue.CustomFieldValues(p.releaseField)
		if err != nil {
			helpers.PrintError("Could not read releases of issue %s: %v", issueKey, err)
			return nil
		}
		for _, version := range versions {
			tags[models.TestTag{Name: version, Type: "version"}] = struct{}{}
		}
	} else {
		for _, version := range issue.FixVersionNames() {
			tags[models.TestTag{Name: version, Type: "Version"}] = struct{}{}
		}
	}

	return nil
}
