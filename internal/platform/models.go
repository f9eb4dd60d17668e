package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"magpie/internal/faults"
)

// Capability describes one feature a platform supports.
type Capability string

const (
	CapMetadata       Capability = "metadata"
	CapMultiFile      Capability = "multiFile"
	CapRequiresAuth   Capability = "requiresAuth"
	CapSupportsResume Capability = "supportsResume"
)

// AuthRequirement describes how the capability gate treats a platform.
type AuthRequirement string

const (
	AuthNone     AuthRequirement = "none"
	AuthOptional AuthRequirement = "optional"
	AuthRequired AuthRequirement = "required"
)

var allAuthRequirements = []AuthRequirement{AuthNone, AuthOptional, AuthRequired}

// ParseAuthRequirement converts a string into a known AuthRequirement.
func ParseAuthRequirement(value string) (AuthRequirement, error) {
	normalized := AuthRequirement(strings.ToLower(strings.TrimSpace(value)))
	for _, req := range allAuthRequirements {
		if req == normalized {
			return req, nil
		}
	}
	return "", fmt.Errorf("unknown auth requirement %q", value)
}

// ErrInvalidURL reports a URL that could not be parsed into a dispatchable
// request. It carries the invalid-input marker for API classification.
var ErrInvalidURL = fmt.Errorf("%w: unrecognized or malformed url", faults.ErrInvalidInput)

// Matcher is one URL pattern a platform claims. Host matching is by suffix
// (github.com also covers gist.github.com); PathPattern, when set, must also
// match the URL path.
type Matcher struct {
	HostSuffix  string
	PathPattern *regexp.Regexp
}

func (m Matcher) matches(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	suffix := strings.ToLower(strings.TrimSpace(m.HostSuffix))
	if suffix == "" {
		return false
	}
	if host != suffix && !strings.HasSuffix(host, "."+suffix) {
		return false
	}
	if m.PathPattern != nil && !m.PathPattern.MatchString(u.Path) {
		return false
	}
	return true
}

// Descriptor describes one platform the engine can dispatch to.
type Descriptor struct {
	ID           string
	Name         string
	Matchers     []Matcher
	Capabilities []Capability
	Auth         AuthRequirement
}

// HasCapability reports whether the descriptor advertises the capability.
func (d *Descriptor) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

var titleCaser = cases.Title(language.English)

// DisplayName returns the platform's human-readable name, deriving one from
// the ID when the descriptor does not set it explicitly.
func (d *Descriptor) DisplayName() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return name
	}
	return titleCaser.String(d.ID)
}
