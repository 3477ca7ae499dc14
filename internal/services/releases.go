package services

import (
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/helpers"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/models"
)

// GetReleases returns the releases defined by the release cascading select.
// Like the requirement forest, releases are fetched once per provider and a
// metadata failure degrades to an empty list.
func (p *RequirementsProvider) GetReleases() []models.Release {
	if !p.releasesLoaded {
		helpers.PrintInfo("Loading releases from JIRA custom field %q", p.releaseField)
		options, err := p.client.FindOptionsForCascadingSelect(p.releaseField)
		if err != nil {
			helpers.PrintWarning("No releases found: %v", err)
			options = nil
		}
		p.releases = convertToReleases(options)
		p.releasesLoaded = true
	}
	return p.releases
}

// IsActive reports whether releases are read from the custom field rather
// than from fix versions.
func (p *RequirementsProvider) IsActive() bool {
	return p.releaseModeActive
}

func convertToReleases(options []models.CascadingSelectOption) []models.Release {
	releases := []models.Release{}
	for _, option := range options {
		releases = append(releases, models.Release{
			Name:     option.Value,
			Children: convertToReleases(option.NestedOptions),
		})
	}
	return releases
}
