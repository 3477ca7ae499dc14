package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/config"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/models"
)

// ErrIssueNotFound signals that JIRA reported no issue under the requested
// key. Callers distinguish it from transport or decoding failures with
// errors.Is.
var ErrIssueNotFound = errors.New("issue not found")

// JiraRepository handles JIRA API interactions
type JiraRepository struct {
	config            *config.JiraConfig
	metadataIssueType string
	client            *http.Client
}

// NewJiraRepository creates a new JIRA repository. Cascading select options
// are read from the field metadata of metadataIssueType.
func NewJiraRepository(jiraConfig *config.JiraConfig, metadataIssueType string) *JiraRepository {
	return &JiraRepository{
		config:            jiraConfig,
		metadataIssueType: metadataIssueType,
		client: &http.Client{
			Timeout: time.Duration(jiraConfig.Timeout) * time.Second,
		},
	}
}

// TestConnection tests the JIRA connection and returns accessible projects
func (r *JiraRepository) TestConnection() ([]models.JiraProjectInfo, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/project", r.config.BaseURL)

	var projects []models.JiraProjectInfo
	if err := r.get(endpoint, &projects); err != nil {
		return nil, err
	}

	return projects, nil
}

// FindByKey fetches a single issue by key, expanded with custom field names.
// A 400- or 404-class "no such issue" response maps to ErrIssueNotFound.
func (r *JiraRepository) FindByKey(issueKey string) (*models.IssueSummary, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s?expand=names", r.config.BaseURL, url.PathEscape(issueKey))

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(r.config.Username, r.config.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("issue %s: %w", issueKey, ErrIssueNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("JIRA API returned status %d: %s", resp.StatusCode, string(body))
	}

	var issue models.IssueSummary
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &issue, nil
}

// FindOptionsForCascadingSelect reads the allowed values of the named
// cascading select field from the createmeta of the configured project and
// metadata issue type.
func (r *JiraRepository) FindOptionsForCascadingSelect(fieldName string) ([]models.CascadingSelectOption, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/createmeta?projectKeys=%s&issuetypeNames=%s&expand=projects.issuetypes.fields",
		r.config.BaseURL,
		url.QueryEscape(r.config.ProjectKey),
		url.QueryEscape(r.metadataIssueType))

	var meta models.CreateMeta
	if err := r.get(endpoint, &meta); err != nil {
		return nil, err
	}

	for _, project := range meta.Projects {
		for _, issueType := range project.IssueTypes {
			for _, field := range issueType.Fields {
				if field.Name == fieldName {
					return field.AllowedValues, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("custom field %q not found in %s metadata of project %s",
		fieldName, r.metadataIssueType, r.config.ProjectKey)
}

// get performs an authenticated GET request and decodes the JSON response
func (r *JiraRepository) get(endpoint string, target interface{}) error {
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(r.config.Username, r.config.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("JIRA API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
