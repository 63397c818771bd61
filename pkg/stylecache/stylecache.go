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

package stylecache

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/douceur/inliner"
	"github.com/aymerick/douceur/parser"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/metrics"
)

// DefaultIdle is how long an unused stylesheet is kept.
const DefaultIdle = 30 * time.Second

// Stylesheets are concatenated in this order; later files override earlier selectors.
var Stylesheets = []string{"css/base.css", "css/layout.css", "css/issue.css", "css/overrides.css"}

//go:embed css/*.css
var cssFS embed.FS

// Loader produces the stylesheet source.
type Loader func() (string, error)

// EmbeddedLoader concatenates the bundled stylesheets. A missing file is an error.
func EmbeddedLoader() (string, error) {
	var sb strings.Builder
	for _, name := range Stylesheets {
		b, err := cssFS.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("reading stylesheet %s: %w", name, err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Cache holds at most one parsed stylesheet. It is safe for concurrent use by
// many senders and the background sweeper.
type Cache struct {
	loader Loader
	idle   time.Duration
	now    func() time.Time
	log    *zap.SugaredLogger

	mu         sync.Mutex
	css        string
	populated  bool
	lastAccess time.Time
}

// Option configures a Cache.
type Option func(*Cache)

func WithLoader(l Loader) Option { return func(c *Cache) { c.loader = l } }

func WithIdle(d time.Duration) Option { return func(c *Cache) { c.idle = d } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func New(log *zap.SugaredLogger, opts ...Option) *Cache {
	c := &Cache{
		loader: EmbeddedLoader,
		idle:   DefaultIdle,
		now:    time.Now,
		log:    log.Named("stylecache"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.idle <= 0 {
		c.idle = DefaultIdle
	}
	return c
}

// Idle returns the configured idle expiry.
func (c *Cache) Idle() time.Duration { return c.idle }

// ApplyStyles inlines the stylesheet into html. A nil input is returned as nil.
// Failing to load or parse the stylesheet is returned as an error rather than
// producing unstyled mail.
//
// The slot holds the loaded and validated CSS text. The inliner only accepts
// HTML and parses the injected <style> block on every call.
func (c *Cache) ApplyStyles(html *string) (*string, error) {
	if html == nil {
		return nil, nil
	}
	css, err := c.stylesheet()
	if err != nil {
		return nil, err
	}
	out, err := inliner.Inline(injectStyle(*html, css))
	if err != nil {
		return nil, fmt.Errorf("inlining styles: %w", err)
	}
	return &out, nil
}

// stylesheet returns the cached normalised stylesheet, computing it when the
// slot is empty or has been idle past its expiry.
func (c *Cache) stylesheet() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.populated && now.Sub(c.lastAccess) >= c.idle {
		c.evictLocked("expired")
	}
	if !c.populated {
		src, err := c.loader()
		if err != nil {
			return "", fmt.Errorf("loading stylesheets: %w", err)
		}
		sheet, err := parser.Parse(src)
		if err != nil {
			return "", fmt.Errorf("parsing stylesheets: %w", err)
		}
		c.css = sheet.String()
		c.populated = true
		metrics.StyleCacheLoads.Inc()
		c.log.Debugw("Stylesheet bundle computed", "rules", len(sheet.Rules))
	}
	c.lastAccess = now
	return c.css, nil
}

// CleanUp evicts the stylesheet if it has been idle past its expiry.
func (c *Cache) CleanUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.populated && c.now().Sub(c.lastAccess) >= c.idle {
		c.evictLocked("idle")
	}
}

// Populated reports whether a stylesheet is currently cached.
func (c *Cache) Populated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.populated
}

func (c *Cache) evictLocked(reason string) {
	c.css = ""
	c.populated = false
	metrics.StyleCacheEvictions.Inc()
	c.log.Debugw("Stylesheet bundle evicted", "reason", reason)
}

func injectStyle(html, css string) string {
	style := "<style type=\"text/css\">\n" + css + "\n</style>"
	lower := strings.ToLower(html)
	if idx := strings.Index(lower, "</head>"); idx >= 0 {
		return html[:idx] + style + html[idx:]
	}
	if idx := strings.Index(lower, "<body"); idx >= 0 {
		return html[:idx] + "<head>" + style + "</head>" + html[idx:]
	}
	return "<html><head>" + style + "</head><body>" + html + "</body></html>"
}
