// Package acc provides clients for the construction-cloud admin REST
// surface: account administration, project users and folder permissions.
package acc

import (
	"strings"
	"time"
)

// AccountUser is a user at the account level.
type AccountUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
}

// AccountProject is a project as reported by the account admin API.
type AccountProject struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status,omitempty"`
	Platform       string     `json:"platform,omitempty"`
	Classification string     `json:"classification,omitempty"`
	Region         string     `json:"region,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// IsACC reports whether the project lives on the current-generation
// platform.
func (p *AccountProject) IsACC() bool {
	return strings.EqualFold(p.Platform, "acc")
}

// IsBIM360 reports whether the project lives on the legacy platform.
func (p *AccountProject) IsBIM360() bool {
	return strings.EqualFold(p.Platform, "bim360")
}

// ProductAccess describes a user's access to one product within a project.
type ProductAccess struct {
	Key    string `json:"key"`
	Access string `json:"access"`
}

// ProjectUser is a user's membership in a single project.
type ProjectUser struct {
	ID       string          `json:"id"`
	Email    string          `json:"email,omitempty"`
	Name     string          `json:"name,omitempty"`
	RoleID   string          `json:"roleId,omitempty"`
	Status   string          `json:"status,omitempty"`
	Products []ProductAccess `json:"products,omitempty"`
}

// AddProjectUserRequest is the payload for adding a user to a project.
type AddProjectUserRequest struct {
	UserID   string          `json:"userId"`
	RoleID   string          `json:"roleId,omitempty"`
	Products []ProductAccess `json:"products,omitempty"`
}

// UpdateProjectUserRequest is the payload for updating a project member.
// Nil fields are left unchanged.
type UpdateProjectUserRequest struct {
	RoleID   *string          `json:"roleId,omitempty"`
	Products *[]ProductAccess `json:"products,omitempty"`
}

// FolderPermission is one subject's permission entry on a folder.
type FolderPermission struct {
	SubjectID     string   `json:"subjectId"`
	SubjectType   string   `json:"subjectType"`
	Actions       []string `json:"actions"`
	InheritedFrom string   `json:"inheritedFrom,omitempty"`
}

// UpdatePermissionRequest grants a subject a set of actions on a folder.
type UpdatePermissionRequest struct {
	SubjectID   string   `json:"subjectId"`
	SubjectType string   `json:"subjectType"`
	Actions     []string `json:"actions"`
}

// BatchUpdatePermissionsRequest is the batch-update payload.
type BatchUpdatePermissionsRequest struct {
	Permissions []UpdatePermissionRequest `json:"permissions"`
}

// SubjectTypeUser is the subject type for individual users.
const SubjectTypeUser = "USER"

// pagination is the offset-based page descriptor used by the admin API.
type pagination struct {
	Limit        int `json:"limit"`
	Offset       int `json:"offset"`
	TotalResults int `json:"totalResults"`
}

func (p pagination) hasMore() bool {
	return p.Offset+p.Limit < p.TotalResults
}

func (p pagination) nextOffset() int {
	return p.Offset + p.Limit
}

// normalizeProjectID ensures the "b." prefix the data management API
// expects.
func normalizeProjectID(projectID string) string {
	if strings.HasPrefix(projectID, "b.") {
		return projectID
	}
	return "b." + projectID
}

// normalizeAccountID strips the "b." prefix the admin API rejects.
func normalizeAccountID(accountID string) string {
	return strings.TrimPrefix(accountID, "b.")
}
