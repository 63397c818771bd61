package templatecontext

import (
	"strings"
)

// Request stands in for a web request when templates are rendered from a
// background job. Only ContextPath and RequestURI carry real values; every
// other accessor returns an empty result.
type Request struct {
	contextPath string
	requestURI  string
}

func NewRequest(contextPath string) Request {
	cp := strings.TrimRight(contextPath, "/")
	return Request{contextPath: cp, requestURI: cp + "/secure/IssueNavigator.jspa"}
}

func (r Request) ContextPath() string          { return r.contextPath }
func (r Request) RequestURI() string           { return r.requestURI }
func (r Request) Method() string               { return "GET" }
func (r Request) Header(string) string         { return "" }
func (r Request) Parameter(string) string      { return "" }
func (r Request) Attribute(string) any         { return nil }
func (r Request) RemoteUser() string           { return "" }
func (r Request) IsSecure() bool               { return false }
func (r Request) Cookie(string) (string, bool) { return "", false }
