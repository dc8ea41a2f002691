// Package filter selects target projects for bulk operations from a
// compact key:value expression.
package filter

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/internal/acc"
)

// Platform restricts matching to one project platform generation.
type Platform string

// Platform values.
const (
	PlatformACC    Platform = "acc"
	PlatformBIM360 Platform = "bim360"
)

// ProjectStatus restricts matching to one project lifecycle status.
type ProjectStatus string

// ProjectStatus values.
const (
	StatusActive   ProjectStatus = "active"
	StatusInactive ProjectStatus = "inactive"
	StatusArchived ProjectStatus = "archived"
)

// Region restricts matching to one hosting region.
type Region string

// Region values.
const (
	RegionUS   Region = "us"
	RegionEMEA Region = "emea"
)

// InvalidFilterError is a malformed filter expression. The operation never
// starts when parsing fails.
type InvalidFilterError struct {
	Message string
}

func (e *InvalidFilterError) Error() string {
	return "invalid filter: " + e.Message
}

// ProjectFilter is a conjunction of optional predicates. A project matches
// iff every present predicate holds; the zero value matches everything.
type ProjectFilter struct {
	// Glob pattern matched case-sensitively against the project name.
	NamePattern string `json:"name_pattern,omitempty"`
	// Lifecycle status the project must report.
	Status *ProjectStatus `json:"status,omitempty"`
	// Platform generation the project must report.
	Platform *Platform `json:"platform,omitempty"`
	// Only projects created at or after this instant.
	CreatedAfter *time.Time `json:"created_after,omitempty"`
	// Only projects created at or before this instant.
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	// Hosting region the project must report.
	Region *Region `json:"region,omitempty"`
	// Explicit allow-list of project ids.
	IncludeIDs []string `json:"include_ids,omitempty"`
	// Explicit deny-list of project ids.
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
}

// ParseExpression parses a filter of the form `key:value[,key:value]*`.
// Whitespace around keys and values is ignored and an empty expression
// matches everything. Parsing is all-or-nothing: any unknown key or
// malformed value fails with InvalidFilterError.
//
// Keys: name (glob), status (active|inactive|archived), platform
// (acc|bim360), region (us|emea), created (>YYYY-MM-DD or <YYYY-MM-DD).
func ParseExpression(expr string) (*ProjectFilter, error) {
	filter := &ProjectFilter{}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, found := strings.Cut(part, ":")
		if !found {
			return nil, &InvalidFilterError{
				Message: fmt.Sprintf("invalid syntax %q, expected 'key:value'", part),
			}
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			filter.NamePattern = value
		case "status":
			switch strings.ToLower(value) {
			case "active":
				filter.Status = statusPtr(StatusActive)
			case "inactive":
				filter.Status = statusPtr(StatusInactive)
			case "archived":
				filter.Status = statusPtr(StatusArchived)
			default:
				return nil, &InvalidFilterError{
					Message: fmt.Sprintf(
						"invalid status %q, expected: active, inactive, archived", value),
				}
			}
		case "platform":
			switch strings.ToLower(value) {
			case "acc":
				filter.Platform = platformPtr(PlatformACC)
			case "bim360":
				filter.Platform = platformPtr(PlatformBIM360)
			default:
				return nil, &InvalidFilterError{
					Message: fmt.Sprintf("invalid platform %q, expected: acc, bim360", value),
				}
			}
		case "region":
			switch strings.ToLower(value) {
			case "us":
				filter.Region = regionPtr(RegionUS)
			case "emea":
				filter.Region = regionPtr(RegionEMEA)
			default:
				return nil, &InvalidFilterError{
					Message: fmt.Sprintf("invalid region %q, expected: us, emea", value),
				}
			}
		case "created":
			switch {
			case strings.HasPrefix(value, ">"):
				date, err := parseDate(strings.TrimSpace(value[1:]))
				if err != nil {
					return nil, err
				}
				filter.CreatedAfter = &date
			case strings.HasPrefix(value, "<"):
				date, err := parseDate(strings.TrimSpace(value[1:]))
				if err != nil {
					return nil, err
				}
				filter.CreatedBefore = &date
			default:
				return nil, &InvalidFilterError{
					Message: fmt.Sprintf(
						"invalid created filter %q, use >YYYY-MM-DD or <YYYY-MM-DD", value),
				}
			}
		default:
			return nil, &InvalidFilterError{
				Message: fmt.Sprintf(
					"unknown key %q, valid keys: name, status, platform, created, region", key),
			}
		}
	}

	return filter, nil
}

// MatchesName reports whether a project name matches the name pattern. An
// unparseable pattern matches nothing.
func (f *ProjectFilter) MatchesName(projectName string) bool {
	if f.NamePattern == "" {
		return true
	}
	matched, err := path.Match(f.NamePattern, projectName)
	return err == nil && matched
}

// Matches reports whether the project satisfies every present predicate.
// Projects without a createdAt pass the date predicates; projects without
// a region pass the region predicate.
func (f *ProjectFilter) Matches(project *acc.AccountProject) bool {
	if !f.MatchesName(project.Name) {
		return false
	}

	if f.Status != nil {
		status := strings.ToLower(project.Status)
		if status == "" {
			status = string(StatusActive)
		}
		if status != string(*f.Status) {
			return false
		}
	}

	if f.Platform != nil {
		switch *f.Platform {
		case PlatformACC:
			if !project.IsACC() {
				return false
			}
		case PlatformBIM360:
			if !project.IsBIM360() {
				return false
			}
		}
	}

	if f.Region != nil && project.Region != "" {
		if !strings.EqualFold(project.Region, string(*f.Region)) {
			return false
		}
	}

	if f.CreatedAfter != nil && project.CreatedAt != nil {
		if project.CreatedAt.Before(*f.CreatedAfter) {
			return false
		}
	}
	if f.CreatedBefore != nil && project.CreatedAt != nil {
		if project.CreatedAt.After(*f.CreatedBefore) {
			return false
		}
	}

	if len(f.IncludeIDs) > 0 && !containsID(f.IncludeIDs, project.ID) {
		return false
	}
	if containsID(f.ExcludeIDs, project.ID) {
		return false
	}

	return true
}

// Apply returns the projects that match the filter.
func (f *ProjectFilter) Apply(projects []acc.AccountProject) []acc.AccountProject {
	matched := make([]acc.AccountProject, 0, len(projects))
	for i := range projects {
		if f.Matches(&projects[i]) {
			matched = append(matched, projects[i])
		}
	}
	return matched
}

// String renders the expression-representable predicates back into the
// `key:value` grammar. Include and exclude id lists have no expression
// form and are omitted.
func (f *ProjectFilter) String() string {
	var parts []string
	if f.NamePattern != "" {
		parts = append(parts, "name:"+f.NamePattern)
	}
	if f.Status != nil {
		parts = append(parts, "status:"+string(*f.Status))
	}
	if f.Platform != nil {
		parts = append(parts, "platform:"+string(*f.Platform))
	}
	if f.Region != nil {
		parts = append(parts, "region:"+string(*f.Region))
	}
	if f.CreatedAfter != nil {
		parts = append(parts, "created:>"+f.CreatedAfter.Format("2006-01-02"))
	}
	if f.CreatedBefore != nil {
		parts = append(parts, "created:<"+f.CreatedBefore.Format("2006-01-02"))
	}
	return strings.Join(parts, ",")
}

func parseDate(s string) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, &InvalidFilterError{
			Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s),
		}
	}
	return date, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func statusPtr(s ProjectStatus) *ProjectStatus { return &s }
func platformPtr(p Platform) *Platform         { return &p }
func regionPtr(r Region) *Region               { return &r }
