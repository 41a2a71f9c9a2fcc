package config

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

var (
	nameRegex         = regexp.MustCompile(`^\w+$`)
	posixPathRegex    = regexp.MustCompile(`^(~|.)?/?([\w\-.]+/)*[\w\-.]+/?$`)
	posixDirNameRegex = regexp.MustCompile(`^[\w\-.]+$`)
	ipDefinitionRegex = regexp.MustCompile(`^(?:(\w+)/)?(\w+)$`)
	timescaleRegex    = regexp.MustCompile(`^\d+(ms|us|ns|ps|fs)/\d+(ms|us|ns|ps|fs)$`)
)

// NewValidator returns a validator with the mio tags registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "mio_name", regexTag(nameRegex))
	mustRegister(v, "posix_path", regexTag(posixPathRegex))
	mustRegister(v, "posix_dir_name", regexTag(posixDirNameRegex))
	mustRegister(v, "mio_ip_definition", regexTag(ipDefinitionRegex))
	mustRegister(v, "timescale", regexTag(timescaleRegex))
	mustRegister(v, "semver_version", func(fl validator.FieldLevel) bool {
		_, err := semver.StrictNewVersion(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "semver_spec", func(fl validator.FieldLevel) bool {
		_, err := semver.NewConstraint(NormalizeVersionSpec(fl.Field().String()))
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func regexTag(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// NormalizeVersionSpec rewrites a version range into the constraint syntax:
// "==" becomes "=" and an empty range matches any version.
func NormalizeVersionSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "*"
	}
	return strings.ReplaceAll(spec, "==", "=")
}

// IsValidName reports whether s is a valid IP, target or project name.
func IsValidName(s string) bool {
	return nameRegex.MatchString(s)
}
