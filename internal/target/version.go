package target

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SupportedVersions is the range of TBSA architecture versions this harness
// can certify against.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// CheckVersion reports whether v is a TBSA version the harness supports.
func CheckVersion(v string) error {
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return fmt.Errorf("parse version constraint: %w", err)
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("tbsa_version %q: %w", v, err)
	}
	if !constraint.Check(sv) {
		return fmt.Errorf("tbsa_version %s not supported (want %s)", sv, SupportedVersions)
	}
	return nil
}
