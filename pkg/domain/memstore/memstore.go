// Package memstore is an in-memory implementation of the domain lookups. It
// backs tests and the standalone mode of the mailer, where the directory is
// seeded from a YAML fixture.
package memstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/telekom/issuemail/pkg/auth"
	"github.com/telekom/issuemail/pkg/domain"
)

// Store holds users, groups, roles, issues and subscriptions in memory.
// All methods are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	users         map[string]*domain.User
	groups        map[string]map[string]struct{}
	roles         map[string]map[string]struct{} // "projectKey/role" -> user names
	issues        map[int64]*domain.Issue
	comments      map[int64]*domain.Comment
	worklogs      map[int64]*domain.Worklog
	filters       map[int64]*domain.Filter
	subscriptions map[int64]*domain.Subscription
	// results maps filter IDs to the issues the filter matches.
	results map[int64][]int64
	// hidden maps user names to issue IDs they may not browse.
	hidden map[string]map[int64]struct{}
	// watchers maps issue IDs to the recipients notified about them.
	watchers map[int64][]domain.Recipient
	// messageIDs maps legacy Message-IDs to issue IDs.
	messageIDs map[string]int64

	// GroupErr, when set, is returned by every group membership lookup.
	GroupErr error
	// RoleErr, when set, is returned by every role membership lookup.
	RoleErr error
	// AnonymousBrowse lets recipients without a user account browse issues.
	AnonymousBrowse bool
}

func New() *Store {
	return &Store{
		users:         map[string]*domain.User{},
		groups:        map[string]map[string]struct{}{},
		roles:         map[string]map[string]struct{}{},
		issues:        map[int64]*domain.Issue{},
		comments:      map[int64]*domain.Comment{},
		worklogs:      map[int64]*domain.Worklog{},
		filters:       map[int64]*domain.Filter{},
		subscriptions: map[int64]*domain.Subscription{},
		results:       map[int64][]int64{},
		hidden:        map[string]map[int64]struct{}{},
		watchers:      map[int64][]domain.Recipient{},
		messageIDs:    map[string]int64{},
	}
}

func (s *Store) AddUser(u *domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Name] = u
	return u
}

func (s *Store) RemoveUser(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, name)
}

func (s *Store) AddToGroup(group string, userNames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[group]
	if !ok {
		members = map[string]struct{}{}
		s.groups[group] = members
	}
	for _, n := range userNames {
		members[n] = struct{}{}
	}
}

func (s *Store) AddToRole(project *domain.Project, role string, userNames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roleKey(project, role)
	members, ok := s.roles[key]
	if !ok {
		members = map[string]struct{}{}
		s.roles[key] = members
	}
	for _, n := range userNames {
		members[n] = struct{}{}
	}
}

func (s *Store) AddIssue(i *domain.Issue) *domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[i.ID] = i
	return i
}

func (s *Store) AddComment(c *domain.Comment) *domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c
	return c
}

func (s *Store) AddWorklog(w *domain.Worklog) *domain.Worklog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worklogs[w.ID] = w
	return w
}

// AddFilter registers a filter together with the issues it matches.
func (s *Store) AddFilter(f *domain.Filter, issueIDs ...int64) *domain.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[f.ID] = f
	s.results[f.ID] = issueIDs
	return f
}

func (s *Store) AddSubscription(sub *domain.Subscription) *domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
	return sub
}

// HideIssue revokes browse permission on an issue for a user.
func (s *Store) HideIssue(userName string, issueID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hidden[userName]
	if !ok {
		h = map[int64]struct{}{}
		s.hidden[userName] = h
	}
	h[issueID] = struct{}{}
}

func (s *Store) AddWatcher(issueID int64, r domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[issueID] = append(s.watchers[issueID], r)
}

// AddMessageID records a Message-ID issued before the current id format.
func (s *Store) AddMessageID(messageID string, issueID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageIDs[messageID] = issueID
}

func (s *Store) IssueIDForMessageID(_ context.Context, messageID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.messageIDs[messageID]
	return id, ok, nil
}

func (s *Store) UserByName(_ context.Context, name string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[name], nil
}

func (s *Store) IsUserInGroup(_ context.Context, userName, group string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GroupErr != nil {
		return false, s.GroupErr
	}
	_, ok := s.groups[group][userName]
	return ok, nil
}

func (s *Store) GroupMembers(_ context.Context, group string) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GroupErr != nil {
		return nil, s.GroupErr
	}
	members, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("group %q does not exist", group)
	}
	names := make([]string, 0, len(members))
	for n := range members {
		names = append(names, n)
	}
	sort.Strings(names)
	users := make([]*domain.User, 0, len(names))
	for _, n := range names {
		if u, ok := s.users[n]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *Store) IsUserInRole(_ context.Context, user *domain.User, role string, project *domain.Project) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.RoleErr != nil {
		return false, s.RoleErr
	}
	if user == nil || project == nil {
		return false, nil
	}
	_, ok := s.roles[roleKey(project, role)][user.Name]
	return ok, nil
}

func (s *Store) CanBrowse(_ context.Context, user *domain.User, issue *domain.Issue) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if issue == nil {
		return false, nil
	}
	if user == nil {
		return s.AnonymousBrowse, nil
	}
	_, hidden := s.hidden[user.Name][issue.ID]
	return !hidden, nil
}

func (s *Store) IssueByID(_ context.Context, id int64) (*domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issues[id], nil
}

func (s *Store) CommentByID(_ context.Context, id int64) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.comments[id], nil
}

func (s *Store) WorklogByID(_ context.Context, id int64) (*domain.Worklog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worklogs[id], nil
}

func (s *Store) SubscriptionByID(_ context.Context, id int64) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptions[id], nil
}

func (s *Store) FilterByID(_ context.Context, id int64) (*domain.Filter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters[id], nil
}

// Search returns the filter's issues the acting user in ctx may browse.
func (s *Store) Search(ctx context.Context, filter *domain.Filter, limit int) (domain.SearchResults, error) {
	if filter == nil {
		return domain.SearchResults{}, fmt.Errorf("search requires a filter")
	}
	actor := auth.UserFrom(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var visible []*domain.Issue
	for _, id := range s.results[filter.ID] {
		issue, ok := s.issues[id]
		if !ok {
			continue
		}
		if actor != nil {
			if _, hidden := s.hidden[actor.Name][id]; hidden {
				continue
			}
		}
		visible = append(visible, issue)
	}
	res := domain.SearchResults{Total: len(visible), Issues: visible}
	if limit > 0 && len(visible) > limit {
		res.Issues = visible[:limit]
	}
	return res, nil
}

// Recipients returns the watchers registered for the event's issue.
func (s *Store) Recipients(_ context.Context, event *domain.IssueEvent) ([]domain.Recipient, error) {
	if event == nil || event.Issue == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Recipient(nil), s.watchers[event.Issue.ID]...), nil
}

func roleKey(project *domain.Project, role string) string {
	if project == nil {
		return "/" + role
	}
	return project.Key + "/" + role
}

// Fixture is the YAML shape accepted by LoadFixture.
type Fixture struct {
	AnonymousBrowse bool `yaml:"anonymousBrowse"`
	Users           []struct {
		Name        string `yaml:"name"`
		DisplayName string `yaml:"displayName"`
		Email       string `yaml:"email"`
		Locale      string `yaml:"locale"`
	} `yaml:"users"`
	Groups   map[string][]string `yaml:"groups"`
	Projects []struct {
		ID    int64               `yaml:"id"`
		Key   string              `yaml:"key"`
		Name  string              `yaml:"name"`
		Roles map[string][]string `yaml:"roles"`
	} `yaml:"projects"`
	Issues []struct {
		ID       int64  `yaml:"id"`
		Key      string `yaml:"key"`
		Summary  string `yaml:"summary"`
		Project  string `yaml:"project"`
		Reporter string `yaml:"reporter"`
		Assignee string `yaml:"assignee"`
		Watchers []struct {
			User   string `yaml:"user"`
			Email  string `yaml:"email"`
			Format string `yaml:"format"`
		} `yaml:"watchers"`
		Comments []struct {
			ID     int64  `yaml:"id"`
			Author string `yaml:"author"`
			Body   string `yaml:"body"`
			Group  string `yaml:"group"`
			Role   string `yaml:"role"`
		} `yaml:"comments"`
		Worklogs []struct {
			ID        int64         `yaml:"id"`
			Author    string        `yaml:"author"`
			Comment   string        `yaml:"comment"`
			TimeSpent time.Duration `yaml:"timeSpent"`
			Group     string        `yaml:"group"`
			Role      string        `yaml:"role"`
		} `yaml:"worklogs"`
	} `yaml:"issues"`
	Filters []struct {
		ID     int64   `yaml:"id"`
		Name   string  `yaml:"name"`
		Owner  string  `yaml:"owner"`
		Issues []int64 `yaml:"issues"`
	} `yaml:"filters"`
	Subscriptions []struct {
		ID           int64  `yaml:"id"`
		Filter       int64  `yaml:"filter"`
		Owner        string `yaml:"owner"`
		Group        string `yaml:"group"`
		EmailOnEmpty bool   `yaml:"emailOnEmpty"`
	} `yaml:"subscriptions"`
}

// LoadFixture seeds a store from a YAML file.
func LoadFixture(path string) (*Store, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory fixture %s: %w", path, err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(content, &fx); err != nil {
		return nil, fmt.Errorf("parsing directory fixture %s: %w", path, err)
	}

	s := New()
	s.AnonymousBrowse = fx.AnonymousBrowse
	for _, u := range fx.Users {
		s.AddUser(&domain.User{
			Name:        u.Name,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			Locale:      u.Locale,
			Active:      true,
		})
	}
	for group, members := range fx.Groups {
		s.AddToGroup(group, members...)
	}
	projects := map[string]*domain.Project{}
	for _, p := range fx.Projects {
		project := &domain.Project{ID: p.ID, Key: strings.ToUpper(p.Key), Name: p.Name}
		projects[project.Key] = project
		for role, members := range p.Roles {
			s.AddToRole(project, role, members...)
		}
	}

	for _, i := range fx.Issues {
		issue := s.AddIssue(&domain.Issue{
			ID:       i.ID,
			Key:      i.Key,
			Summary:  i.Summary,
			Project:  projects[strings.ToUpper(i.Project)],
			Reporter: s.users[i.Reporter],
			Assignee: s.users[i.Assignee],
		})
		for _, w := range i.Watchers {
			format := domain.FormatHTML
			if w.Format == string(domain.FormatText) {
				format = domain.FormatText
			}
			if u, ok := s.users[w.User]; ok {
				s.AddWatcher(issue.ID, domain.NewUserRecipient(u, format))
			} else if w.Email != "" {
				s.AddWatcher(issue.ID, domain.NewEmailRecipient(w.Email, format))
			}
		}
		for _, c := range i.Comments {
			v, err := domain.NewVisibility(c.Group, c.Role)
			if err != nil {
				return nil, fmt.Errorf("comment %d of %s: %w", c.ID, i.Key, err)
			}
			s.AddComment(&domain.Comment{ID: c.ID, IssueID: issue.ID, Author: s.users[c.Author], Body: c.Body, Visibility: v})
		}
		for _, w := range i.Worklogs {
			v, err := domain.NewVisibility(w.Group, w.Role)
			if err != nil {
				return nil, fmt.Errorf("worklog %d of %s: %w", w.ID, i.Key, err)
			}
			s.AddWorklog(&domain.Worklog{ID: w.ID, IssueID: issue.ID, Author: s.users[w.Author], Comment: w.Comment, TimeSpent: w.TimeSpent, Visibility: v})
		}
	}
	for _, f := range fx.Filters {
		s.AddFilter(&domain.Filter{ID: f.ID, Name: f.Name, Owner: s.users[f.Owner]}, f.Issues...)
	}
	for _, sub := range fx.Subscriptions {
		s.AddSubscription(&domain.Subscription{
			ID:           sub.ID,
			FilterID:     sub.Filter,
			Owner:        s.users[sub.Owner],
			GroupName:    sub.Group,
			EmailOnEmpty: sub.EmailOnEmpty,
		})
	}
	return s, nil
}
