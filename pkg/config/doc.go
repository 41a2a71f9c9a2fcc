// Package config loads, merges and validates mio configuration.
//
// # Overview
//
// A mio run sees three layers of mio.toml configuration, merged in order:
//
//   - the defaults embedded in the binary (defaults.toml)
//   - the user configuration at $MIO_HOME/mio.toml (~/.mio/mio.toml by default)
//   - the project configuration, the mio.toml found by walking up from the working directory
//
// Later layers override earlier ones key by key. Environment variables with the
// MIO_ prefix override the merged result, e.g. MIO_MARKETPLACE_URL for
// marketplace.url.
//
// # Usage Example
//
//	loader := config.NewLoader(config.HomeDir())
//	defaults, _ := loader.LoadDefault()
//	user, _ := loader.LoadUser()
//	project, _ := loader.LoadFile("/work/proj/mio.toml")
//
//	cfg, err := config.Merge(defaults, user, project)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Validation
//
// NewValidator returns a validator/v10 instance with the tags shared by the
// configuration and the IP descriptor: mio_name, posix_path, posix_dir_name,
// mio_ip_definition, semver_version, semver_spec and timescale.
//
// # User Data
//
// User holds the marketplace identity persisted in $MIO_HOME/user.yml.
package config
