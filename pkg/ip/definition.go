package ip

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/marketplace"
)

// Definition is a reference to an IP as typed by a user or declared as a
// dependency: an optional vendor, a name and a version range. It may not be
// resolved yet.
type Definition struct {
	Vendor      string
	Name        string
	VersionSpec string

	// FindResults is set once the marketplace has been asked about this IP.
	FindResults *marketplace.FindResponse
}

// ParseDefinition parses "vendor/name" or "name". Parts are trimmed and lower-cased.
func ParseDefinition(text string) (*Definition, error) {
	parts := strings.Split(text, "/")
	d := &Definition{VersionSpec: "*"}
	switch len(parts) {
	case 1:
		d.Name = strings.ToLower(strings.TrimSpace(parts[0]))
	case 2:
		d.Vendor = strings.ToLower(strings.TrimSpace(parts[0]))
		d.Name = strings.ToLower(strings.TrimSpace(parts[1]))
	default:
		return nil, engine.NewUserError(fmt.Sprintf("invalid IP definition: %s", text), nil).
			WithCode(engine.ErrCodeInvalidIPDefinition)
	}
	if d.Name == "" {
		return nil, engine.NewUserError(fmt.Sprintf("invalid IP definition: %s", text), nil).
			WithCode(engine.ErrCodeInvalidIPDefinition)
	}
	return d, nil
}

// HasVendor reports whether a vendor was given.
func (d *Definition) HasVendor() bool {
	return d.Vendor != ""
}

// String returns "vendor/name" or "name".
func (d *Definition) String() string {
	if d.HasVendor() {
		return d.Vendor + "/" + d.Name
	}
	return d.Name
}

// Key identifies the IP regardless of the requested version.
func (d *Definition) Key() string {
	return d.Vendor + "/" + d.Name
}

// VendorOrWildcard returns the vendor, or "*" when none was given.
func (d *Definition) VendorOrWildcard() string {
	if d.HasVendor() {
		return d.Vendor
	}
	return "*"
}

// Constraints parses the version range. An empty range matches everything.
func (d *Definition) Constraints() (*semver.Constraints, error) {
	return semver.NewConstraint(config.NormalizeVersionSpec(d.VersionSpec))
}

// Matches reports whether version satisfies the version range.
func (d *Definition) Matches(v *semver.Version) bool {
	c, err := d.Constraints()
	if err != nil {
		return false
	}
	return c.Check(v)
}

// InstallationDirectoryName is the directory an IP found on the marketplace is
// extracted into. It only exists once the marketplace has been queried.
func (d *Definition) InstallationDirectoryName() (string, error) {
	if d.FindResults == nil || !d.FindResults.Found {
		return "", fmt.Errorf("IP definition '%s' has not been checked against the marketplace", d)
	}
	v, err := semver.NewVersion(d.FindResults.Version)
	if err != nil {
		return "", fmt.Errorf("marketplace returned invalid version %q for '%s': %w", d.FindResults.Version, d, err)
	}
	return versionedName(d.Vendor, d.Name, v), nil
}

func versionedName(vendor, name string, v *semver.Version) string {
	version := "v" + strings.ReplaceAll(v.String(), ".", "p")
	if vendor != "" {
		return vendor + "__" + name + "__" + version
	}
	return name + "__" + version
}
