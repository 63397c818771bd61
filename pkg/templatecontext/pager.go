package templatecontext

import (
	"github.com/telekom/issuemail/pkg/config"
)

// DefaultMaxIssues bounds subscription emails when no valid limit is configured.
const DefaultMaxIssues = 200

// MaxIssues reads the subscription issue limit. An unset, unparsable or zero
// value yields DefaultMaxIssues; a negative value means unbounded and is
// returned as is.
func MaxIssues(props config.Properties) int {
	v, ok := config.IntProperty(props, config.PropMailMaxIssues)
	if !ok || v == 0 {
		return DefaultMaxIssues
	}
	return v
}
