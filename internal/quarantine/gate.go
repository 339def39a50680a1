// Package quarantine validates URLs and content blobs before anything
// externally visible happens with them. The gate is a hard precondition:
// callers check the report and refuse to act on violations, they never
// downgrade one to a warning.
package quarantine

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// Violation codes. Every blocked subject carries at least one.
const (
	CodeInvalidScheme      = "invalid_url_scheme"
	CodeInsecureHTTP       = "insecure_http_url"
	CodeMissingHost        = "missing_host"
	CodeHostNotAllowlisted = "host_not_allowlisted"
	CodeTooManyURLs        = "too_many_urls"
	CodePatternBlocked     = "pattern_blocked"
)

// Violation is one reason a subject was blocked.
type Violation struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
	Detail  string `json:"detail,omitempty"`
}

// Report collects the violations found for one subject.
type Report struct {
	Subject    string      `json:"subject"`
	Violations []Violation `json:"violations,omitempty"`
}

// OK reports whether the subject passed the gate.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Codes returns the distinct violation codes in order of first occurrence.
func (r *Report) Codes() []string {
	var codes []string
	seen := make(map[string]bool)
	for _, v := range r.Violations {
		if !seen[v.Code] {
			seen[v.Code] = true
			codes = append(codes, v.Code)
		}
	}
	return codes
}

func (r *Report) add(code, subject, detail string) {
	r.Violations = append(r.Violations, Violation{Code: code, Subject: subject, Detail: detail})
}

// Gate validates URLs against the host allow-list and content blobs against
// the embedded-URL cap and the adversarial pattern set.
type Gate struct {
	allowExact   map[string]bool
	allowGlobs   []glob.Glob
	maxURLs      int
	scanPatterns bool
	logger       *logging.Logger
}

// NewGate compiles the allow-list. Entries containing a wildcard compile as
// glob patterns matched against the full host; plain entries match the host
// exactly or as a parent domain.
func NewGate(cfg config.QuarantineConfig, logger *logging.Logger) (*Gate, error) {
	g := &Gate{
		allowExact:   make(map[string]bool),
		maxURLs:      cfg.MaxEmbeddedURLs,
		scanPatterns: cfg.ScanPatterns,
		logger:       logger,
	}
	for _, entry := range cfg.AllowedHosts {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.ContainsAny(entry, "*?[") {
			compiled, err := glob.Compile(entry, '.')
			if err != nil {
				return nil, fmt.Errorf("allow-list entry %q: %w", entry, err)
			}
			g.allowGlobs = append(g.allowGlobs, compiled)
			continue
		}
		g.allowExact[entry] = true
	}
	return g, nil
}

// CheckURL validates a single URL against the scheme, loopback, and
// allow-list rules.
func (g *Gate) CheckURL(raw string) *Report {
	report := &Report{Subject: raw}
	g.checkURLInto(report, raw)
	if !report.OK() {
		g.logger.Warn("url blocked", "url", raw, "codes", strings.Join(report.Codes(), ","))
	}
	return report
}

func (g *Gate) checkURLInto(report *Report, raw string) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		report.add(CodeInvalidScheme, raw, "unparsable URL")
		return
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		report.add(CodeInvalidScheme, raw, fmt.Sprintf("scheme %q is not http or https", parsed.Scheme))
		return
	}

	host := normalizeHost(parsed.Hostname())
	if host == "" {
		report.add(CodeMissingHost, raw, "URL has no host")
		return
	}

	if scheme == "http" && !isLoopback(host) {
		report.add(CodeInsecureHTTP, raw, "plain http is only allowed for loopback hosts")
		return
	}

	if !isLoopback(host) && !g.hostAllowed(host) {
		report.add(CodeHostNotAllowlisted, raw, fmt.Sprintf("host %q is not on the allow-list", host))
	}
}

// CheckContent extracts every embedded URL from the blob, validates each, and
// optionally scans the text for adversarial patterns. The URL count cap is
// itself a violation when exceeded.
func (g *Gate) CheckContent(blob string) *Report {
	report := &Report{Subject: summarize(blob)}

	urls := extractURLs(blob)
	if len(urls) > g.maxURLs {
		report.add(CodeTooManyURLs, report.Subject,
			fmt.Sprintf("%d embedded URLs exceed the cap of %d", len(urls), g.maxURLs))
		urls = urls[:g.maxURLs]
	}
	for _, u := range urls {
		g.checkURLInto(report, u)
	}

	if g.scanPatterns {
		for _, p := range adversarialPatterns {
			if m := p.re.FindString(blob); m != "" {
				report.add(CodePatternBlocked, summarize(m), p.label)
			}
		}
	}

	if !report.OK() {
		g.logger.Warn("content blocked",
			"codes", strings.Join(report.Codes(), ","),
			"violations", len(report.Violations))
	}
	return report
}

// Enforce converts a failed report into the tagged safety error. A passing
// report returns nil.
func (g *Gate) Enforce(report *Report) error {
	if report.OK() {
		return nil
	}
	return errors.NewSafetyViolationError(report.Subject, report.Codes())
}

// hostAllowed reports whether the host matches the allow-list exactly, as a
// subdomain of an entry, or via a wildcard entry.
func (g *Gate) hostAllowed(host string) bool {
	if g.allowExact[host] {
		return true
	}
	for entry := range g.allowExact {
		if strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	for _, compiled := range g.allowGlobs {
		if compiled.Match(host) {
			return true
		}
	}
	return false
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// summarize clips long content for report messages, cutting on a rune
// boundary so the summary stays valid UTF-8.
func summarize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 120 {
		return s
	}
	cut := 120
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
