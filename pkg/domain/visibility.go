package domain

import (
	"errors"
	"fmt"
)

// ErrConflictingVisibility is returned when both a group and a role level are set.
var ErrConflictingVisibility = errors.New("visibility may restrict to a group or a role, not both")

// Visibility restricts a comment or worklog to the members of a group or of a
// project role. The zero value is unrestricted.
type Visibility struct {
	GroupLevel string
	RoleLevel  string
}

// Unrestricted is the visibility of public content.
var Unrestricted = Visibility{}

func NewVisibility(groupLevel, roleLevel string) (Visibility, error) {
	if groupLevel != "" && roleLevel != "" {
		return Visibility{}, fmt.Errorf("group %q, role %q: %w", groupLevel, roleLevel, ErrConflictingVisibility)
	}
	return Visibility{GroupLevel: groupLevel, RoleLevel: roleLevel}, nil
}

func GroupVisibility(group string) Visibility { return Visibility{GroupLevel: group} }

func RoleVisibility(role string) Visibility { return Visibility{RoleLevel: role} }

func (v Visibility) IsRestricted() bool {
	return v.GroupLevel != "" || v.RoleLevel != ""
}

func (v Visibility) String() string {
	switch {
	case v.GroupLevel != "":
		return "group:" + v.GroupLevel
	case v.RoleLevel != "":
		return "role:" + v.RoleLevel
	default:
		return "public"
	}
}
