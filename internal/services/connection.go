package services

import (
	"fmt"

	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/config"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/helpers"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/repositories"
)

// ConnectionService verifies JIRA connectivity and project access
type ConnectionService struct {
	repo   *repositories.JiraRepository
	config *config.JiraConfig
}

// NewConnectionService creates a new connection service
func NewConnectionService(repo *repositories.JiraRepository, jiraConfig *config.JiraConfig) *ConnectionService {
	return &ConnectionService{
		repo:   repo,
		config: jiraConfig,
	}
}

// TestConnection tests the JIRA connection and validates project access
func (s *ConnectionService) TestConnection() error {
	helpers.PrintInfo("Testing JIRA authentication and listing accessible projects...")

	projects, err := s.repo.TestConnection()
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	helpers.PrintSuccess("Authentication successful! Found %d accessible projects:", len(projects))

	projectFound := false
	for _, project := range projects {
		marker := "📋"
		if project.Key == s.config.ProjectKey {
			marker = "✅"
			projectFound = true
		}
		helpers.PrintInfo("  %s %s (%s)", marker, project.Key, project.Name)
	}

	if !projectFound {
		helpers.PrintWarning("Project key '%s' not found in accessible projects!", s.config.ProjectKey)
		helpers.PrintInfo("Please update your config.yaml with one of the available project keys above.")
		return fmt.Errorf("project key '%s' not found in accessible projects", s.config.ProjectKey)
	}

	helpers.PrintSuccess("JIRA connection successful")
	return nil
}
