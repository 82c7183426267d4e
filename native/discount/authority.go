package discount

import (
	"fmt"
	"strings"
)

// Authority decides whether a caller may rewrite discount records.
type Authority interface {
	Authorize(caller [20]byte) error
}

// Authority modes selectable from configuration.
const (
	AuthorityStrict     = "strict"
	AuthorityPermissive = "permissive"
)

// StrictAuthority admits only the designated administrator.
type StrictAuthority struct {
	Admin [20]byte
}

// Authorize implements Authority.
func (a StrictAuthority) Authorize(caller [20]byte) error {
	if a.Admin == ([20]byte{}) || caller != a.Admin {
		return ErrUnauthorized
	}
	return nil
}

// PermissiveAuthority admits any caller. It exists so test networks can drive
// the ledger without the administrator key and must never back production.
type PermissiveAuthority struct{}

// Authorize implements Authority.
func (PermissiveAuthority) Authorize([20]byte) error {
	return nil
}

// NewAuthority resolves the configured mode into an Authority.
func NewAuthority(mode string, admin [20]byte) (Authority, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", AuthorityStrict:
		if admin == ([20]byte{}) {
			return nil, fmt.Errorf("discount: strict authority requires an admin address")
		}
		return StrictAuthority{Admin: admin}, nil
	case AuthorityPermissive:
		return PermissiveAuthority{}, nil
	default:
		return nil, fmt.Errorf("discount: unknown authority mode %q", mode)
	}
}
