package platform

import "regexp"

var vimeoVideoPath = regexp.MustCompile(`^/(channels/[^/]+/)?\d+`)

// Builtin returns the descriptor table the daemon registers at startup.
// Order matters: resolution is first-match and generic is forced last by
// the registry even though it is listed last here for readability.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID:   "github",
			Name: "GitHub",
			Matchers: []Matcher{
				{HostSuffix: "github.com"},
				{HostSuffix: "githubusercontent.com"},
			},
			Capabilities: []Capability{CapMetadata, CapMultiFile, CapSupportsResume},
			Auth:         AuthOptional,
		},
		{
			ID:   "youtube",
			Name: "YouTube",
			Matchers: []Matcher{
				{HostSuffix: "youtube.com"},
				{HostSuffix: "youtu.be"},
			},
			Capabilities: []Capability{CapMetadata, CapSupportsResume},
			Auth:         AuthNone,
		},
		{
			ID: "telegram",
			Matchers: []Matcher{
				{HostSuffix: "t.me"},
				{HostSuffix: "telegram.me"},
				{HostSuffix: "telegram.org"},
			},
			Capabilities: []Capability{CapMetadata, CapMultiFile, CapRequiresAuth},
			Auth:         AuthRequired,
		},
		{
			ID: "instagram",
			Matchers: []Matcher{
				{HostSuffix: "instagram.com"},
			},
			Capabilities: []Capability{CapMetadata, CapMultiFile, CapRequiresAuth},
			Auth:         AuthRequired,
		},
		{
			ID:   "twitter",
			Name: "Twitter/X",
			Matchers: []Matcher{
				{HostSuffix: "twitter.com"},
				{HostSuffix: "x.com"},
			},
			Capabilities: []Capability{CapMetadata, CapMultiFile},
			Auth:         AuthOptional,
		},
		{
			ID: "reddit",
			Matchers: []Matcher{
				{HostSuffix: "reddit.com"},
				{HostSuffix: "redd.it"},
			},
			Capabilities: []Capability{CapMetadata},
			Auth:         AuthOptional,
		},
		{
			ID:   "tiktok",
			Name: "TikTok",
			Matchers: []Matcher{
				{HostSuffix: "tiktok.com"},
			},
			Capabilities: []Capability{CapMetadata},
			Auth:         AuthNone,
		},
		{
			ID: "vimeo",
			Matchers: []Matcher{
				{HostSuffix: "vimeo.com", PathPattern: vimeoVideoPath},
			},
			Capabilities: []Capability{CapMetadata, CapSupportsResume},
			Auth:         AuthNone,
		},
		{
			ID:   "soundcloud",
			Name: "SoundCloud",
			Matchers: []Matcher{
				{HostSuffix: "soundcloud.com"},
			},
			Capabilities: []Capability{CapMetadata},
			Auth:         AuthNone,
		},
		{
			ID:           GenericID,
			Capabilities: []Capability{CapMetadata},
			Auth:         AuthNone,
		},
	}
}
