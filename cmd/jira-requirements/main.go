package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/config"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/helpers"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/models"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/repositories"
	"github.com/QALady/thucydides-jira-customfield-requirements-provider/internal/services"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "jira-requirements",
		Short: "Map JIRA cascading select custom fields to a requirement hierarchy",
		Long: `jira-requirements reads a cascading select custom field from a JIRA project
and turns it into a requirement hierarchy (capability/feature by default),
resolves which requirement an issue belongs to, and derives the flat tag set
used by test reports.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")

	var treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Print the requirement hierarchy",
		Long:  "Read the requirements custom field and print the synthesized requirement hierarchy",
		Args:  cobra.NoArgs,
		RunE:  runTree,
	}
	treeCmd.Flags().StringP("output", "o", "", "Save the hierarchy as JSON to this file")
	rootCmd.AddCommand(treeCmd)

	var parentCmd = &cobra.Command{
		Use:   "parent <issue-key>",
		Short: "Show the requirement an issue is filed under",
		Long:  "Resolve the most specific requirement the given issue belongs to, with its ancestors",
		Args:  cobra.ExactArgs(1),
		RunE:  runParent,
	}
	rootCmd.AddCommand(parentCmd)

	var tagsCmd = &cobra.Command{
		Use:   "tags <issue-key>...",
		Short: "Show the report tags for one or more issues",
		Long:  "Derive the requirement, summary and version tags for the given issue keys",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTags,
	}
	rootCmd.AddCommand(tagsCmd)

	var releasesCmd = &cobra.Command{
		Use:   "releases",
		Short: "Print the releases defined by the release custom field",
		Args:  cobra.NoArgs,
		RunE:  runReleases,
	}
	rootCmd.AddCommand(releasesCmd)

	var testConnectionCmd = &cobra.Command{
		Use:   "test-connection",
		Short: "Verify JIRA credentials and project access",
		Args:  cobra.NoArgs,
		RunE:  runTestConnection,
	}
	rootCmd.AddCommand(testConnectionCmd)

	if err := rootCmd.Execute(); err != nil {
		helpers.PrintError("Error: %v", err)
		os.Exit(1)
	}
}

func loadProvider() (*services.RequirementsProvider, *config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	helpers.PrintInfo("JIRA: %s (project %s, user %s)", cfg.Jira.BaseURL, cfg.Jira.ProjectKey, cfg.Jira.Username)

	repo := repositories.NewJiraRepository(&cfg.Jira, cfg.Requirements.IssueType)
	return services.NewRequirementsProvider(repo, &cfg.Requirements), cfg, nil
}

func runTree(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	provider, cfg, err := loadProvider()
	if err != nil {
		return err
	}

	helpers.PrintTitle("Requirement hierarchy from field %q", cfg.Requirements.CustomField)
	requirements := provider.GetRequirements()
	if len(requirements) == 0 {
		helpers.PrintWarning("No requirements found")
		return nil
	}

	printRequirements(requirements, 0)

	if output != "" {
		if err := helpers.SaveJSON(requirements, output); err != nil {
			return fmt.Errorf("failed to save hierarchy: %w", err)
		}
		helpers.PrintSuccess("Hierarchy saved to %s", output)
	}
	return nil
}

func printRequirements(requirements []models.Requirement, depth int) {
	for _, requirement := range requirements {
		fmt.Printf("%s%s [%s]\n", strings.Repeat("  ", depth), requirement.Name, requirement.Type)
		printRequirements(requirement.Children, depth+1)
	}
}

func runParent(cmd *cobra.Command, args []string) error {
	issueKey := args[0]

	provider, _, err := loadProvider()
	if err != nil {
		return err
	}

	associated, err := provider.AssociatedRequirementsOf([]string{issueKey})
	if err != nil {
		return err
	}
	if len(associated) == 0 {
		helpers.PrintWarning("Issue %s has no parent requirement", issueKey)
		return nil
	}

	parent := associated[0]
	helpers.PrintSuccess("Issue %s is filed under %s [%s]", issueKey, parent.Name, parent.Type)
	for _, ancestor := range associated[1:] {
		helpers.PrintInfo("  part of %s [%s]", ancestor.Name, ancestor.Type)
	}
	return nil
}

func runTags(cmd *cobra.Command, args []string) error {
	provider, _, err := loadProvider()
	if err != nil {
		return err
	}

	tags, err := provider.TagsFor(args)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		helpers.PrintWarning("No tags found for %s", strings.Join(args, ", "))
		return nil
	}

	sorted := make([]models.TestTag, 0, len(tags))
	for tag := range tags {
		sorted = append(sorted, tag)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].Name < sorted[j].Name
	})

	helpers.PrintTitle("Tags for %s", strings.Join(args, ", "))
	for _, tag := range sorted {
		fmt.Printf("  %s: %s\n", tag.Type, tag.Name)
	}
	return nil
}

func runReleases(cmd *cobra.Command, args []string) error {
	provider, cfg, err := loadProvider()
	if err != nil {
		return err
	}

	if !provider.IsActive() {
		helpers.PrintWarning("Custom field releases are not active (set requirements.use_customfield_releases)")
	}

	helpers.PrintTitle("Releases from field %q", cfg.Requirements.ReleaseField)
	releases := provider.GetReleases()
	if len(releases) == 0 {
		helpers.PrintWarning("No releases found")
		return nil
	}
	printReleases(releases, 0)
	return nil
}

func printReleases(releases []models.Release, depth int) {
	for _, release := range releases {
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), release.Name)
		printReleases(release.Children, depth+1)
	}
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	repo := repositories.NewJiraRepository(&cfg.Jira, cfg.Requirements.IssueType)
	return services.NewConnectionService(repo, &cfg.Jira).TestConnection()
}
