package ip

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/telemetry"
)

// Options configures a Database.
type Options struct {
	// InstalledDir is where IPs fetched from the marketplace are extracted (.mio/installed).
	InstalledDir string

	// TempDir receives tarballs built for publishing (.mio/temp).
	TempDir string

	// Remote is the marketplace. Remote operations fail when nil.
	Remote Remote

	// Encryptor produces per-simulator encrypted sources for commercial publishing.
	Encryptor Encryptor

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Database is the registry of every IP known to one run. It discovers IPs on
// disk, resolves their dependency edges and installs what is missing from the
// marketplace. It is owned by a single run and is not safe for concurrent use.
type Database struct {
	ips []*IP

	pending    []*Definition
	needRemote bool
	toInstall  []*Definition

	installedDir string
	tempDir      string
	remote       Remote
	encryptor    Encryptor

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// NewDatabase creates an empty database.
func NewDatabase(opts Options) *Database {
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNopLogger()
	}
	return &Database{
		installedDir: opts.InstalledDir,
		tempDir:      opts.TempDir,
		remote:       opts.Remote,
		encryptor:    opts.Encryptor,
		logger:       opts.Logger.NewComponentLogger("ip"),
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
	}
}

// SetRemote sets the marketplace client.
func (db *Database) SetRemote(r Remote) {
	db.remote = r
}

// SetEncryptor sets the encryptor used for commercial publishing.
func (db *Database) SetEncryptor(e Encryptor) {
	db.encryptor = e
}

// InstalledDir returns the installation directory.
func (db *Database) InstalledDir() string {
	return db.installedDir
}

// Add registers an IP.
func (db *Database) Add(ip *IP) {
	db.ips = append(db.ips, ip)
}

// All returns every registered IP in discovery order. The slice is a copy.
func (db *Database) All() []*IP {
	out := make([]*IP, len(db.ips))
	copy(out, db.ips)
	return out
}

// Len returns the number of registered IPs.
func (db *Database) Len() int {
	return len(db.ips)
}

// Discover walks path for descriptor files and registers the IPs not known yet.
// Hidden directories below path are skipped.
// Malformed descriptors are returned as errors when errorOnMalformed is set and
// skipped with a warning otherwise.
func (db *Database) Discover(path string, location LocationType, errorOnMalformed, errorOnNothingFound bool) ([]*IP, error) {
	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == path {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() && p != path && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if !d.IsDir() && d.Name() == DescriptorFileName {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	if len(files) == 0 {
		if errorOnNothingFound {
			return nil, engine.NewDomainError(fmt.Sprintf("no '%s' files found in the '%s' directory", DescriptorFileName, location), nil).
				WithCode(engine.ErrCodeNotFound).
				WithDetail("path", path)
		}
		return nil, nil
	}

	var added []*IP
	for _, file := range files {
		ip, err := Load(file, location)
		if err != nil {
			if errorOnMalformed {
				return added, err
			}
			db.logger.WithField("file", file).WithError(err).Warn("skipping IP definition")
			continue
		}
		if existing := db.find(ip.Name(), ip.Vendor(), "="+ip.Version().String()); existing != nil {
			continue
		}
		if err := ip.Check(); err != nil {
			return added, err
		}
		db.Add(ip)
		added = append(added, ip)
	}

	db.metrics.RecordIPsDiscovered(string(location), len(added))
	db.logger.WithField("path", path).WithField("count", len(added)).Debug("discovered IPs")
	return added, nil
}

// Find returns the IP matching name, vendor ("*" for any) and version range.
// When several IPs match, the highest version wins; equal versions keep
// registration order.
func (db *Database) Find(name, vendor, versionSpec string) (*IP, error) {
	if ip := db.find(name, vendor, versionSpec); ip != nil {
		return ip, nil
	}
	return nil, engine.NewDomainError(
		fmt.Sprintf("IP with name '%s', owner '%s', version '%s' not found", name, vendor, versionSpec), nil).
		WithCode(engine.ErrCodeNotFound)
}

// FindDefinition finds the IP a definition refers to.
func (db *Database) FindDefinition(def *Definition) (*IP, error) {
	return db.Find(def.Name, def.VendorOrWildcard(), def.VersionSpec)
}

// Lookup is FindDefinition without the not-found error.
func (db *Database) Lookup(def *Definition) *IP {
	return db.find(def.Name, def.VendorOrWildcard(), def.VersionSpec)
}

func (db *Database) find(name, vendor, versionSpec string) *IP {
	def := &Definition{Name: name, VersionSpec: versionSpec}
	c, err := def.Constraints()
	if err != nil {
		return nil
	}
	var best *IP
	for _, ip := range db.ips {
		if ip.Name() != name || (vendor != "*" && ip.Vendor() != vendor) {
			continue
		}
		if !c.Check(ip.Version()) {
			continue
		}
		if best == nil || ip.Version().GreaterThan(best.Version()) {
			best = ip
		}
	}
	return best
}

// ResolveDependencies records an edge for every declared dependency of ip found
// locally. Missing ones are queued for a marketplace lookup. With recursive set,
// the whole dependency tree below ip is walked, including edges resolved by an
// earlier pass; each IP is visited once per call.
func (db *Database) ResolveDependencies(ip *IP, recursive, resetPending bool) error {
	if resetPending {
		db.resetPending()
	}
	return db.resolve(ip, recursive, 0, make(map[*IP]bool))
}

func (db *Database) resolve(ip *IP, recursive bool, depth int, visited map[*IP]bool) error {
	if depth > MaxDepth {
		return engine.NewDomainError(fmt.Sprintf("loop detected in IP dependencies after depth of %d", depth), nil).
			WithCode(engine.ErrCodeDependencyCycle).
			WithIP(ip.QualifiedName())
	}
	if visited[ip] {
		return nil
	}
	visited[ip] = true

	defs, err := ip.Dependencies()
	if err != nil {
		return fmt.Errorf("IP '%s' declares an invalid dependency: %w", ip, err)
	}
	for _, def := range defs {
		dep := ip.resolvedDependency(def)
		if dep != nil && dep.Uninstalled() {
			dep = nil
		}
		if dep == nil {
			if dep = db.Lookup(def); dep == nil {
				ip.AddPendingDependency(def)
				db.addPending(def)
				continue
			}
			ip.AddResolvedDependency(def, dep)
		}
		if recursive {
			if err := db.resolve(dep, true, depth+1, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveLocalDependencies resolves the dependencies of every registered IP
// without recursion, starting from an empty pending list.
func (db *Database) ResolveLocalDependencies() error {
	db.resetPending()
	for _, ip := range db.All() {
		if err := db.resolve(ip, false, 0, make(map[*IP]bool)); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the definitions waiting for a marketplace lookup.
func (db *Database) Pending() []*Definition {
	return db.pending
}

// NeedsRemote reports whether some dependencies could not be resolved locally.
func (db *Database) NeedsRemote() bool {
	return db.needRemote
}

// AddPending queues a definition for a marketplace lookup.
func (db *Database) AddPending(def *Definition) {
	db.addPending(def)
}

func (db *Database) addPending(def *Definition) {
	db.pending = append(db.pending, def)
	db.needRemote = true
}

func (db *Database) resetPending() {
	db.pending = nil
	db.needRemote = false
	for _, ip := range db.ips {
		ip.clearPending()
	}
}

// Uninstall removes ip and, with recursive set, every dependency resolved for
// it, dependencies first. Only installed IPs are removed from disk and from the
// registry. Uninstalling an IP twice is a no-op.
func (db *Database) Uninstall(ip *IP, recursive bool) error {
	return db.uninstall(ip, recursive, make(map[*IP]bool))
}

func (db *Database) uninstall(ip *IP, recursive bool, visited map[*IP]bool) error {
	if ip.Uninstalled() || visited[ip] {
		return nil
	}
	visited[ip] = true

	if recursive {
		for _, dep := range ip.ResolvedDependencies() {
			if err := db.uninstall(dep, true, visited); err != nil {
				return err
			}
		}
	}

	if ip.Location() != LocationInstalled {
		return nil
	}
	if err := ip.removeFromDisk(); err != nil {
		return engine.NewDomainError(fmt.Sprintf("failed to uninstall IP '%s'", ip), err).
			WithCode(engine.ErrCodeFilesystem).
			WithIP(ip.QualifiedName())
	}
	db.remove(ip)
	db.logger.WithIP(ip.QualifiedName()).Debug("uninstalled")
	return nil
}

// UninstallAll uninstalls every registered IP without recursion: the registry
// already holds every dependency as its own entry.
func (db *Database) UninstallAll() error {
	for _, ip := range db.All() {
		if err := db.Uninstall(ip, false); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) remove(ip *IP) {
	for idx, candidate := range db.ips {
		if candidate == ip {
			db.ips = append(db.ips[:idx], db.ips[idx+1:]...)
			return
		}
	}
}

