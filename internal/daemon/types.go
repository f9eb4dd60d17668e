package daemon

import (
	"magpie/internal/platform"
)

// PlatformInfo is the wire shape for one registered platform.
type PlatformInfo struct {
	ID           string   `json:"platform_id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Auth         string   `json:"auth"`
	HasAPIKey    bool     `json:"has_api_key"`
}

// Parse resolves a URL against the registry without side effects.
func (d *Daemon) Parse(url string) (PlatformInfo, error) {
	desc, err := d.registry.Resolve(url)
	if err != nil {
		return PlatformInfo{}, err
	}
	return d.platformInfo(desc), nil
}

// Platforms lists the registered platforms in resolution order.
func (d *Daemon) Platforms() []PlatformInfo {
	descriptors := d.registry.Descriptors()
	out := make([]PlatformInfo, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, d.platformInfo(desc))
	}
	return out
}

func (d *Daemon) platformInfo(desc *platform.Descriptor) PlatformInfo {
	caps := make([]string, 0, len(desc.Capabilities))
	for _, c := range desc.Capabilities {
		caps = append(caps, string(c))
	}
	_, hasKey := d.creds.Get(desc.ID)
	return PlatformInfo{
		ID:           desc.ID,
		Name:         desc.DisplayName(),
		Capabilities: caps,
		Auth:         string(desc.Auth),
		HasAPIKey:    hasKey,
	}
}
