package services_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/config"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/models"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/repositories"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJiraClient struct {
	optionsByField map[string][]models.CascadingSelectOption
	optionsErr     error
	optionCalls    int
	issues         map[string]*models.IssueSummary
	issueErrs      map[string]error
}

func (f *fakeJiraClient) FindOptionsForCascadingSelect(fieldName string) ([]models.CascadingSelectOption, error) {
	f.optionCalls++
	if f.optionsErr != nil {
		return nil, f.optionsErr
	}
	return f.optionsByField[fieldName], nil
}

func (f *fakeJiraClient) FindByKey(issueKey string) (*models.IssueSummary, error) {
	if err := f.issueErrs[issueKey]; err != nil {
		return nil, err
	}
	if issue, ok := f.issues[issueKey]; ok {
		return issue, nil
	}
	return nil, fmt.Errorf("issue %s: %w", issueKey, repositories.ErrIssueNotFound)
}

// farmOptions is the demo project's requirements field: two capabilities with
// features underneath, and two without.
func farmOptions() []models.CascadingSelectOption {
	return []models.CascadingSelectOption{
		{Value: "Grow Apples", NestedOptions: []models.CascadingSelectOption{
			{Value: "Grow red apples"},
			{Value: "Grow green apples"},
		}},
		{Value: "Grow Potatoes", NestedOptions: []models.CascadingSelectOption{
			{Value: "Grow normal potatoes"},
			{Value: "Grow organic potatoes"},
		}},
		{Value: "Raise Chickens"},
		{Value: "Raise Sheep"},
	}
}

func issueFromJSON(t *testing.T, payload string) *models.IssueSummary {
	t.Helper()
	var issue models.IssueSummary
	require.NoError(t, json.Unmarshal([]byte(payload), &issue))
	return &issue
}

const demo8 = `{
	"key": "DEMO-8",
	"names": {"customfield_10001": "Requirements", "customfield_10002": "Release"},
	"fields": {
		"summary": "Potatoes are too small",
		"issuetype": {"name": "Bug"},
		"fixVersions": [{"name": "1.0.0"}],
		"customfield_10001": {"value": "Grow Potatoes", "child": {"value": "Grow normal potatoes"}},
		"customfield_10002": {"value": "Release 3", "child": {"value": "Iteration 3.1"}}
	}
}`

func defaultConfig() *config.RequirementsConfig {
	return &config.RequirementsConfig{
		CustomField:  "Requirements",
		IssueType:    "Bug",
		Types:        []string{"capability", "feature"},
		ReleaseField: "Release",
	}
}

func newFarmProvider(t *testing.T) (*services.RequirementsProvider, *fakeJiraClient) {
	t.Helper()
	client := &fakeJiraClient{
		optionsByField: map[string][]models.CascadingSelectOption{"Requirements": farmOptions()},
		issues: map[string]*models.IssueSummary{
			"DEMO-8": issueFromJSON(t, demo8),
		},
		issueErrs: map[string]error{},
	}
	return services.NewRequirementsProvider(client, defaultConfig()), client
}

func TestGetRequirementsBuildsHierarchy(t *testing.T) {
	provider, _ := newFarmProvider(t)

	requirements := provider.GetRequirements()
	require.Len(t, requirements, 4)

	var names []string
	for _, requirement := range requirements {
		names = append(names, requirement.Name)
		assert.Equal(t, "capability", requirement.Type)
		assert.Equal(t, requirement.Name, requirement.Narrative)
	}
	assert.Equal(t, []string{"Grow Apples", "Grow Potatoes", "Raise Chickens", "Raise Sheep"}, names)

	apples := requirements[0]
	require.Len(t, apples.Children, 2)
	assert.Equal(t, "Grow red apples", apples.Children[0].Name)
	assert.Equal(t, "Grow green apples", apples.Children[1].Name)
	for _, feature := range apples.Children {
		assert.Equal(t, "feature", feature.Type)
	}
}

func TestRequirementTypeAssignedByDepth(t *testing.T) {
	// A single chain four levels deep.
	chain := []models.CascadingSelectOption{
		{Value: "L0", NestedOptions: []models.CascadingSelectOption{
			{Value: "L1", NestedOptions: []models.CascadingSelectOption{
				{Value: "L2", NestedOptions: []models.CascadingSelectOption{
					{Value: "L3"},
				}},
			}},
		}},
	}

	tests := []struct {
		name      string
		types     []string
		wantTypes []string
	}{
		{
			name:      "single type repeated at every level",
			types:     []string{"capability"},
			wantTypes: []string{"capability", "capability", "capability", "capability"},
		},
		{
			name:      "last type repeated below the configured depth",
			types:     []string{"capability", "feature"},
			wantTypes: []string{"capability", "feature", "feature", "feature"},
		},
		{
			name:      "three levels configured",
			types:     []string{"epic", "capability", "feature"},
			wantTypes: []string{"epic", "capability", "feature", "feature"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeJiraClient{
				optionsByField: map[string][]models.CascadingSelectOption{"Requirements": chain},
			}
			cfg := defaultConfig()
			cfg.Types = tt.types
			provider := services.NewRequirementsProvider(client, cfg)

			requirements := provider.GetRequirements()
			var gotTypes []string
			for node := requirements; len(node) > 0; node = node[0].Children {
				gotTypes = append(gotTypes, node[0].Type)
			}
			assert.Equal(t, tt.wantTypes, gotTypes)
		})
	}
}

func TestGetRequirementsIsCached(t *testing.T) {
	provider, client := newFarmProvider(t)

	first := provider.GetRequirements()
	second := provider.GetRequirements()

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.optionCalls)
}

func TestGetRequirementsDegradesToEmptyOnMetadataFailure(t *testing.T) {
	client := &fakeJiraClient{optionsErr: errors.New("field metadata could not be decoded")}
	provider := services.NewRequirementsProvider(client, defaultConfig())

	assert.Empty(t, provider.GetRequirements())

	// The empty result is cached like a successful one.
	assert.Empty(t, provider.GetRequirements())
	assert.Equal(t, 1, client.optionCalls)
}

func TestParentRequirementOf(t *testing.T) {
	provider, _ := newFarmProvider(t)

	parent, err := provider.ParentRequirementOf([]string{"DEMO-8"})
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "Grow normal potatoes", parent.Name)
	assert.Equal(t, "feature", parent.Type)
	assert.Equal(t, "Grow normal potatoes", parent.Narrative)
}

func TestParentRequirementOfShallowSelection(t *testing.T) {
	provider, client := newFarmProvider(t)
	client.issues["DEMO-2"] = issueFromJSON(t, `{
		"key": "DEMO-2",
		"names": {"customfield_10001": "Requirements"},
		"fields": {
			"summary": "No chickens yet",
			"issuetype": {"name": "Bug"},
			"customfield_10001": {"value": "Raise Chickens"}
		}
	}`)

	parent, err := provider.ParentRequirementOf([]string{"DEMO-2"})
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "Raise Chickens", parent.Name)
	assert.Equal(t, "capability", parent.Type)
}

func TestParentRequirementOfUnknownIssue(t *testing.T) {
	provider, _ := newFarmProvider(t)

	parent, err := provider.ParentRequirementOf([]string{"DEMO-404"})
	require.NoError(t, err)
	assert.Nil(t, parent)
}

func TestParentRequirementOfLookupFailure(t *testing.T) {
	provider, client := newFarmProvider(t)
	client.issueErrs["DEMO-8"] = errors.New("JIRA API returned status 500")

	parent, err := provider.ParentRequirementOf([]string{"DEMO-8"})
	require.Error(t, err)
	assert.Nil(t, parent)
}

func TestParentRequirementOfWithoutFieldValue(t *testing.T) {
	provider, client := newFarmProvider(t)
	client.issues["DEMO-9"] = issueFromJSON(t, `{
		"key": "DEMO-9",
		"names": {"customfield_10001": "Requirements"},
		"fields": {
			"summary": "Untriaged",
			"issuetype": {"name": "Bug"},
			"customfield_10001": null
		}
	}`)

	parent, err := provider.ParentRequirementOf([]string{"DEMO-9"})
	require.NoError(t, err)
	assert.Nil(t, parent)
}

func TestParentRequirementOfWithoutIssueKeys(t *testing.T) {
	provider, _ := newFarmProvider(t)

	parent, err := provider.ParentRequirementOf(nil)
	require.NoError(t, err)
	assert.Nil(t, parent)
}

func TestAncestorChains(t *testing.T) {
	provider, _ := newFarmProvider(t)

	var verify func(parent *models.Requirement, requirements []models.Requirement)
	verify = func(parent *models.Requirement, requirements []models.Requirement) {
		for _, requirement := range requirements {
			chain := provider.AncestorsOf(requirement)
			if parent == nil {
				assert.Empty(t, chain, "root %s should have no ancestors", requirement.Name)
			} else {
				require.NotEmpty(t, chain, "%s should have ancestors", requirement.Name)
				assert.Equal(t, parent.Name, chain[len(chain)-1].Name,
					"nearest ancestor of %s should be its direct parent", requirement.Name)
			}
			for _, ancestor := range chain {
				assert.False(t, ancestor.Type == requirement.Type && ancestor.Name == requirement.Name,
					"%s must not appear in its own ancestor chain", requirement.Name)
			}
			verify(&requirement, requirement.Children)
		}
	}
	verify(nil, provider.GetRequirements())
}

func TestAncestorsOfUnknownRequirement(t *testing.T) {
	provider, _ := newFarmProvider(t)

	chain := provider.AncestorsOf(models.Requirement{Name: "Grow Pears", Type: "capability"})
	assert.NotNil(t, chain)
	assert.Empty(t, chain)
}

func TestRequirementFor(t *testing.T) {
	provider, _ := newFarmProvider(t)

	found, ok := provider.RequirementFor(models.TestTag{Name: "Grow Potatoes", Type: "capability"})
	require.True(t, ok)
	assert.Equal(t, "Grow Potatoes", found.Name)
	assert.Equal(t, "capability", found.Type)

	_, ok = provider.RequirementFor(models.TestTag{Name: "Grow Potatoes", Type: "feature"})
	assert.False(t, ok, "lookup matches on both type and name")

	_, ok = provider.RequirementFor(models.TestTag{Name: "Grow Pears", Type: "capability"})
	assert.False(t, ok)
}

func TestAssociatedRequirementsOf(t *testing.T) {
	provider, _ := newFarmProvider(t)

	associated, err := provider.AssociatedRequirementsOf([]string{"DEMO-8"})
	require.NoError(t, err)
	require.Len(t, associated, 2)
	assert.Equal(t, "Grow normal potatoes", associated[0].Name)
	assert.Equal(t, "Grow Potatoes", associated[1].Name)
}

func TestTagsFor(t *testing.T) {
	provider, _ := newFarmProvider(t)

	tags, err := provider.TagsFor([]string{"DEMO-8"})
	require.NoError(t, err)

	assert.Len(t, tags, 4)
	assert.Contains(t, tags, models.TestTag{Name: "Grow normal potatoes", Type: "feature"})
	assert.Contains(t, tags, models.TestTag{Name: "Grow Potatoes", Type: "capability"})
	assert.Contains(t, tags, models.TestTag{Name: "Potatoes are too small", Type: "Bug"})
	assert.Contains(t, tags, models.TestTag{Name: "1.0.0", Type: "Version"})
}

func TestTagsForWithCustomFieldReleases(t *testing.T) {
	client := &fakeJiraClient{
		optionsByField: map[string][]models.CascadingSelectOption{"Requirements": farmOptions()},
		issues:         map[string]*models.IssueSummary{"DEMO-8": issueFromJSON(t, demo8)},
		issueErrs:      map[string]error{},
	}
	cfg := defaultConfig()
	cfg.UseCustomFieldReleases = true
	provider := services.NewRequirementsProvider(client, cfg)

	tags, err := provider.TagsFor([]string{"DEMO-8"})
	require.NoError(t, err)

	// Release tags from the custom field use the lowercase "version" type;
	// fix versions are not consulted in this mode.
	assert.Contains(t, tags, models.TestTag{Name: "Release 3", Type: "version"})
	assert.Contains(t, tags, models.TestTag{Name: "Iteration 3.1", Type: "version"})
	assert.NotContains(t, tags, models.TestTag{Name: "1.0.0", Type: "Version"})
}

func TestTagsForUnknownIssue(t *testing.T) {
	provider, _ := newFarmProvider(t)

	tags, err := provider.TagsFor([]string{"DEMO-404"})
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestTagsForLookupFailure(t *testing.T) {
	provider, client := newFarmProvider(t)
	client.issueErrs["DEMO-8"] = errors.New("JIRA API returned status 500")

	_, err := provider.TagsFor([]string{"DEMO-8"})
	require.Error(t, err)
}

func TestTagsForUnionsAcrossIssues(t *testing.T) {
	provider, client := newFarmProvider(t)
	client.issues["DEMO-11"] = issueFromJSON(t, `{
		"key": "DEMO-11",
		"names": {"customfield_10001": "Requirements"},
		"fields": {
			"summary": "Red apples are green",
			"issuetype": {"name": "Bug"},
			"fixVersions": [{"name": "1.0.0"}],
			"customfield_10001": {"value": "Grow Apples", "child": {"value": "Grow red apples"}}
		}
	}`)

	tags, err := provider.TagsFor([]string{"DEMO-8", "DEMO-11"})
	require.NoError(t, err)

	assert.Contains(t, tags, models.TestTag{Name: "Grow normal potatoes", Type: "feature"})
	assert.Contains(t, tags, models.TestTag{Name: "Grow red apples", Type: "feature"})
	assert.Contains(t, tags, models.TestTag{Name: "Grow Apples", Type: "capability"})
	// The shared fix version appears once.
	assert.Len(t, tags, 7)
}

func TestGetReleases(t *testing.T) {
	client := &fakeJiraClient{
		optionsByField: map[string][]models.CascadingSelectOption{
			"Release": {
				{Value: "Release 1", NestedOptions: []models.CascadingSelectOption{
					{Value: "Iteration 1.1"},
					{Value: "Iteration 1.2"},
				}},
				{Value: "Release 2"},
			},
		},
	}
	cfg := defaultConfig()
	cfg.UseCustomFieldReleases = true
	provider := services.NewRequirementsProvider(client, cfg)

	assert.True(t, provider.IsActive())

	releases := provider.GetReleases()
	require.Len(t, releases, 2)
	assert.Equal(t, "Release 1", releases[0].Name)
	require.Len(t, releases[0].Children, 2)
	assert.Equal(t, "Iteration 1.1", releases[0].Children[0].Name)
	assert.Empty(t, releases[1].Children)

	provider.GetReleases()
	assert.Equal(t, 1, client.optionCalls)
}

func TestGetReleasesDegradesToEmptyOnFailure(t *testing.T) {
	client := &fakeJiraClient{optionsErr: errors.New("field metadata could not be decoded")}
	provider := services.NewRequirementsProvider(client, defaultConfig())

	assert.Empty(t, provider.GetReleases())
	assert.False(t, provider.IsActive())
}
