// Package gate decides whether a resolved job may dispatch to its platform
// handler given the credential state. It runs before any handler call or
// filesystem side effect.
package gate

import (
	"fmt"

	"magpie/internal/creds"
	"magpie/internal/faults"
	"magpie/internal/platform"
)

// CredentialReader is the slice of the credential store the gate needs.
type CredentialReader interface {
	Get(platformID string) (creds.Record, bool)
}

// Decision is the gate's verdict for a dispatch. A rejected dispatch never
// produces a Decision; Authorize returns an error instead.
type Decision struct {
	// Token accompanies the handler request. Empty when the platform needs
	// no auth or when the dispatch is degraded.
	Token string
	// Degraded marks a dispatch that proceeds without usable credentials on
	// an auth-optional platform. Handlers must omit auth entirely.
	Degraded bool
	// Reason explains a degraded dispatch for operators and progress events.
	Reason string
}

// Authorize applies the auth policy for the platform:
//
//	none:     proceed, no credential attached even if one is stored
//	optional: proceed with the credential when usable, degrade when a stored
//	          credential is known invalid, proceed plain when none is stored
//	required: reject unless a usable credential is stored
//
// A credential is usable when its validity is valid or unchecked.
func Authorize(desc *platform.Descriptor, store CredentialReader) (Decision, error) {
	if desc == nil {
		return Decision{}, fmt.Errorf("%w: nil platform descriptor", faults.ErrInvalidInput)
	}

	switch desc.Auth {
	case platform.AuthNone:
		return Decision{}, nil

	case platform.AuthOptional:
		rec, ok := store.Get(desc.ID)
		if !ok {
			return Decision{}, nil
		}
		if rec.Validity == creds.ValidityInvalid {
			return Decision{
				Degraded: true,
				Reason:   fmt.Sprintf("stored credential for %s is invalid; continuing without auth", desc.ID),
			}, nil
		}
		return Decision{Token: rec.Token}, nil

	case platform.AuthRequired:
		rec, ok := store.Get(desc.ID)
		if !ok {
			return Decision{}, faults.Wrap(faults.ErrAuthRequired, "gate", "authorize",
				fmt.Sprintf("platform %s requires credentials and none are stored", desc.ID), nil)
		}
		if rec.Validity == creds.ValidityInvalid {
			return Decision{}, faults.Wrap(faults.ErrAuthRequired, "gate", "authorize",
				fmt.Sprintf("stored credential for %s is invalid", desc.ID), nil)
		}
		return Decision{Token: rec.Token}, nil

	default:
		return Decision{}, fmt.Errorf("%w: unknown auth requirement %q", faults.ErrInvalidInput, desc.Auth)
	}
}
