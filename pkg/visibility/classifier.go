/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package visibility

import (
	"context"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/metrics"
)

// Checker reports whether a recipient may see content restricted by level.
type Checker interface {
	HasVisibility(ctx context.Context, level domain.Visibility, r domain.Recipient, issue *domain.Issue) bool
}

// Classifier resolves group and project role levels against the directory.
// Any lookup failure is treated as "not visible".
type Classifier struct {
	groups domain.GroupManager
	roles  domain.ProjectRoleManager
	log    *zap.SugaredLogger
}

func NewClassifier(groups domain.GroupManager, roles domain.ProjectRoleManager, log *zap.SugaredLogger) *Classifier {
	return &Classifier{
		groups: groups,
		roles:  roles,
		log:    log.Named("visibility"),
	}
}

// HasVisibility returns true for unrestricted content. Group levels require
// group membership; role levels require membership of the project role on the
// issue's project, so they never match without an issue or a resolved user.
func (c *Classifier) HasVisibility(ctx context.Context, level domain.Visibility, r domain.Recipient, issue *domain.Issue) bool {
	switch {
	case !level.IsRestricted():
		return true
	case level.GroupLevel != "":
		return c.inGroup(ctx, level.GroupLevel, r)
	default:
		return c.inRole(ctx, level.RoleLevel, r, issue)
	}
}

func (c *Classifier) inGroup(ctx context.Context, group string, r domain.Recipient) bool {
	u := r.User()
	if u == nil {
		return false
	}
	ok, err := c.groups.IsUserInGroup(ctx, u.Name, group)
	if err != nil {
		c.log.Warnw("Group membership lookup failed, treating recipient as not visible",
			"user", u.Name,
			"group", group,
			"error", err)
		metrics.VisibilityLookupErrors.WithLabelValues("group").Inc()
		return false
	}
	return ok
}

func (c *Classifier) inRole(ctx context.Context, role string, r domain.Recipient, issue *domain.Issue) bool {
	u := r.User()
	if issue == nil || u == nil {
		return false
	}
	ok, err := c.roles.IsUserInRole(ctx, u, role, issue.Project)
	if err != nil {
		c.log.Warnw("Project role lookup failed, treating recipient as not visible",
			"user", u.Name,
			"role", role,
			"issue", issue.Key,
			"error", err)
		metrics.VisibilityLookupErrors.WithLabelValues("role").Inc()
		return false
	}
	return ok
}
