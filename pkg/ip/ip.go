package ip

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/mooreio/mio/pkg/engine"
)

// IP is one discovered package: its descriptor, where it lives on disk and the
// dependency edges resolved so far.
type IP struct {
	Descriptor *Descriptor

	location LocationType
	filePath string
	rootPath string
	version  *semver.Version

	srcPath      string
	docsPath     string
	scriptsPath  string
	examplesPath string

	hdlDirectories []string
	sharedObjects  []string
	topSVFiles     []string
	topVHDLFiles   []string

	// per simulator, for licensed installed IPs
	encryptedHDLDirectories map[string][]string
	encryptedSharedObjects  map[string][]string
	encryptedTopSVFiles     map[string][]string
	encryptedTopVHDLFiles   map[string][]string

	resolved      map[string]*resolvedEdge
	resolvedOrder []string
	pending       []*Definition

	uninstalled bool
}

type resolvedEdge struct {
	definition *Definition
	ip         *IP
}

// New creates an IP from a descriptor found at filePath.
func New(d *Descriptor, filePath string, location LocationType) *IP {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filePath
	}
	return &IP{
		Descriptor:              d,
		location:                location,
		filePath:                abs,
		rootPath:                filepath.Dir(abs),
		version:                 d.IP.SemVer(),
		encryptedHDLDirectories: make(map[string][]string),
		encryptedSharedObjects:  make(map[string][]string),
		encryptedTopSVFiles:     make(map[string][]string),
		encryptedTopVHDLFiles:   make(map[string][]string),
		resolved:                make(map[string]*resolvedEdge),
	}
}

// Load reads the descriptor at filePath and creates the IP.
func Load(filePath string, location LocationType) (*IP, error) {
	d, err := LoadDescriptor(filePath)
	if err != nil {
		return nil, err
	}
	return New(d, filePath, location), nil
}

// String returns "vendor name vX.Y.Z".
func (i *IP) String() string {
	if i.HasVendor() {
		return fmt.Sprintf("%s %s v%s", i.Vendor(), i.Name(), i.version)
	}
	return fmt.Sprintf("%s v%s", i.Name(), i.version)
}

// Name returns the IP name.
func (i *IP) Name() string { return i.Descriptor.IP.Name }

// Vendor returns the IP vendor, empty if none.
func (i *IP) Vendor() string { return i.Descriptor.IP.Vendor }

// HasVendor reports whether the IP declares a vendor.
func (i *IP) HasVendor() bool { return i.Descriptor.IP.Vendor != "" }

// Version returns the IP version.
func (i *IP) Version() *semver.Version { return i.version }

// PkgType returns the package type.
func (i *IP) PkgType() PkgType { return i.Descriptor.IP.PkgType }

// Location returns where the IP was discovered.
func (i *IP) Location() LocationType { return i.location }

// FilePath returns the absolute path of the descriptor.
func (i *IP) FilePath() string { return i.filePath }

// RootPath returns the directory holding the descriptor.
func (i *IP) RootPath() string { return i.rootPath }

// QualifiedName returns "vendor/name", or "<no owner>/name".
func (i *IP) QualifiedName() string {
	if i.HasVendor() {
		return i.Vendor() + "/" + i.Name()
	}
	return "<no owner>/" + i.Name()
}

// Definition returns a definition matching exactly this IP.
func (i *IP) Definition() *Definition {
	return &Definition{Vendor: i.Vendor(), Name: i.Name(), VersionSpec: "=" + i.version.String()}
}

// ArchiveName is the identity of the IP: two IPs with the same archive name are equal.
func (i *IP) ArchiveName() string {
	return versionedName(i.Vendor(), i.Name(), i.version)
}

// InstallationDirectoryName is the directory the IP is installed into.
func (i *IP) InstallationDirectoryName() string {
	return versionedName(i.Vendor(), i.Name(), i.version)
}

// LibName is the simulator library name of the IP.
func (i *IP) LibName() string {
	return versionedName(i.Vendor(), i.Name(), i.version)
}

// ImageName is the simulator snapshot name of the IP.
func (i *IP) ImageName() string {
	return "img__" + versionedName(i.Vendor(), i.Name(), i.version)
}

// WorkDirectoryName is the simulator work directory of the IP.
func (i *IP) WorkDirectoryName() string {
	if i.HasVendor() {
		return i.Vendor() + "__" + i.Name()
	}
	return i.Name()
}

// ResultFileName is the base name of result files produced for the IP.
func (i *IP) ResultFileName() string {
	if i.HasVendor() {
		return i.Vendor() + "_" + i.Name()
	}
	return i.Name()
}

// Equal compares IPs by identity.
func (i *IP) Equal(other *IP) bool {
	return other != nil && i.ArchiveName() == other.ArchiveName()
}

// SrcPath returns the resolved HDL source path (valid after Check).
func (i *IP) SrcPath() string { return i.srcPath }

// DocsPath returns the resolved docs path, empty if none.
func (i *IP) DocsPath() string { return i.docsPath }

// ScriptsPath returns the resolved scripts path, empty if none.
func (i *IP) ScriptsPath() string { return i.scriptsPath }

// ExamplesPath returns the resolved examples path, empty if none.
func (i *IP) ExamplesPath() string { return i.examplesPath }

// HasDocs reports whether the IP has a docs directory.
func (i *IP) HasDocs() bool { return i.docsPath != "" }

// HasScripts reports whether the IP has a scripts directory.
func (i *IP) HasScripts() bool { return i.scriptsPath != "" }

// HasExamples reports whether the IP has an examples directory.
func (i *IP) HasExamples() bool { return i.examplesPath != "" }

// HDLDirectories returns the resolved include directories.
func (i *IP) HDLDirectories() []string { return i.hdlDirectories }

// SharedObjects returns the resolved shared objects.
func (i *IP) SharedObjects() []string { return i.sharedObjects }

// TopSVFiles returns the resolved top SystemVerilog files.
func (i *IP) TopSVFiles() []string { return i.topSVFiles }

// TopVHDLFiles returns the resolved top VHDL files.
func (i *IP) TopVHDLFiles() []string { return i.topVHDLFiles }

// EncryptedHDLDirectories returns the include directories for one simulator.
func (i *IP) EncryptedHDLDirectories(simulator string) []string {
	return i.encryptedHDLDirectories[simulator]
}

// EncryptedSharedObjects returns the shared objects for one simulator.
func (i *IP) EncryptedSharedObjects(simulator string) []string {
	return i.encryptedSharedObjects[simulator]
}

// EncryptedTopSVFiles returns the top SystemVerilog files for one simulator.
func (i *IP) EncryptedTopSVFiles(simulator string) []string {
	return i.encryptedTopSVFiles[simulator]
}

// EncryptedTopVHDLFiles returns the top VHDL files for one simulator.
func (i *IP) EncryptedTopVHDLFiles(simulator string) []string {
	return i.encryptedTopVHDLFiles[simulator]
}

// IsEncrypted reports whether the IP ships per-simulator encrypted sources.
func (i *IP) IsEncrypted() bool {
	return i.Descriptor.IP.MLicensed && i.location == LocationInstalled
}

// HasVHDLContent reports whether the IP has top VHDL files.
func (i *IP) HasVHDLContent() bool {
	if len(i.topVHDLFiles) > 0 {
		return true
	}
	for _, files := range i.encryptedTopVHDLFiles {
		if len(files) > 0 {
			return true
		}
	}
	return false
}

// Uninstalled reports whether the IP was uninstalled.
func (i *IP) Uninstalled() bool { return i.uninstalled }

// Check resolves the declared paths against the IP root and verifies that they exist.
// Licensed installed IPs carry one source tree per simulator named "<src>.<simulator>".
func (i *IP) Check() error {
	i.srcPath = filepath.Join(i.rootPath, i.Descriptor.Structure.HDLSrcPath)
	i.hdlDirectories = nil
	i.sharedObjects = nil
	i.topSVFiles = nil
	i.topVHDLFiles = nil

	if i.IsEncrypted() {
		if len(i.Descriptor.IP.Encrypted) == 0 {
			return i.checkError("is licensed but has no simulators specified in 'encrypted'", "")
		}
		for _, sim := range i.Descriptor.IP.Encrypted {
			if err := i.checkHDLSrc(i.srcPath+"."+sim, sim); err != nil {
				return err
			}
		}
	} else if err := i.checkHDLSrc(i.srcPath, ""); err != nil {
		return err
	}

	s := i.Descriptor.Structure
	var err error
	if i.scriptsPath, err = i.checkOptionalDir("scripts", s.ScriptsPath); err != nil {
		return err
	}
	if i.docsPath, err = i.checkOptionalDir("docs", s.DocsPath); err != nil {
		return err
	}
	if i.examplesPath, err = i.checkOptionalDir("examples", s.ExamplesPath); err != nil {
		return err
	}
	return nil
}

func (i *IP) checkOptionalDir(kind, rel string) (string, error) {
	if rel == "" {
		return "", nil
	}
	path := filepath.Join(i.rootPath, rel)
	if !dirExists(path) {
		return "", i.checkError(kind+" path does not exist", path)
	}
	return path, nil
}

func (i *IP) checkHDLSrc(path, simulator string) error {
	if !dirExists(path) {
		return i.checkError("src path does not exist", path)
	}
	src := i.Descriptor.HDLSrc

	var dirs []string
	for _, dir := range src.Directories {
		p := filepath.Join(path, dir)
		if !dirExists(p) {
			return i.checkError("HDL src path does not exist", p)
		}
		dirs = append(dirs, p)
	}
	if src.TestsPath != "" {
		p := filepath.Join(path, src.TestsPath)
		if !dirExists(p) {
			return i.checkError("HDL tests src path does not exist", p)
		}
		dirs = append(dirs, p)
	}

	var svFiles []string
	for _, f := range src.TopSVFiles {
		p := filepath.Join(path, f)
		if !fileExists(p) {
			return i.checkError("src SystemVerilog file does not exist", p)
		}
		svFiles = append(svFiles, p)
	}

	var vhdlFiles []string
	for _, f := range src.TopVHDLFiles {
		p := filepath.Join(path, f)
		if !fileExists(p) {
			return i.checkError("src VHDL file does not exist", p)
		}
		vhdlFiles = append(vhdlFiles, p)
	}

	var sos []string
	for _, so := range src.SOLibs {
		name := so + ".so"
		if simulator != "" {
			name = so + "." + simulator + ".so"
		}
		p := filepath.Join(path, name)
		if !fileExists(p) {
			return i.checkError("src shared object does not exist", p)
		}
		sos = append(sos, p)
	}

	if simulator == "" {
		i.hdlDirectories = dirs
		i.topSVFiles = svFiles
		i.topVHDLFiles = vhdlFiles
		i.sharedObjects = sos
	} else {
		i.encryptedHDLDirectories[simulator] = dirs
		i.encryptedTopSVFiles[simulator] = svFiles
		i.encryptedTopVHDLFiles[simulator] = vhdlFiles
		i.encryptedSharedObjects[simulator] = sos
	}
	return nil
}

func (i *IP) checkError(msg, path string) error {
	full := fmt.Sprintf("IP '%s' %s", i, msg)
	if path != "" {
		full = fmt.Sprintf("%s: '%s'", full, path)
	}
	return engine.NewDomainError(full, nil).
		WithCode(engine.ErrCodeFilesystem).
		WithIP(i.QualifiedName())
}

// Dependencies returns the declared dependencies as definitions, in a stable order.
func (i *IP) Dependencies() ([]*Definition, error) {
	keys := make([]string, 0, len(i.Descriptor.Dependencies))
	for k := range i.Descriptor.Dependencies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	defs := make([]*Definition, 0, len(keys))
	for _, k := range keys {
		d, err := ParseDefinition(k)
		if err != nil {
			return nil, err
		}
		d.VersionSpec = strings.TrimSpace(i.Descriptor.Dependencies[k])
		if d.VersionSpec == "" {
			d.VersionSpec = "*"
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// AddResolvedDependency records the IP a declared dependency resolved to.
// Edges are keyed by identity, so resolving the same dependency twice does not
// count twice.
func (i *IP) AddResolvedDependency(def *Definition, dep *IP) {
	key := def.Key()
	if _, ok := i.resolved[key]; !ok {
		i.resolvedOrder = append(i.resolvedOrder, key)
	}
	i.resolved[key] = &resolvedEdge{definition: def, ip: dep}
}

// IsResolved reports whether a declared dependency already has an edge.
func (i *IP) IsResolved(def *Definition) bool {
	_, ok := i.resolved[def.Key()]
	return ok
}

func (i *IP) resolvedDependency(def *Definition) *IP {
	if edge, ok := i.resolved[def.Key()]; ok {
		return edge.ip
	}
	return nil
}

// DependenciesResolved is true iff every declared dependency has a resolved edge.
func (i *IP) DependenciesResolved() bool {
	return len(i.resolved) == len(i.Descriptor.Dependencies)
}

// ResolvedDependencies returns the resolved dependencies in resolution order.
func (i *IP) ResolvedDependencies() []*IP {
	deps := make([]*IP, 0, len(i.resolvedOrder))
	for _, key := range i.resolvedOrder {
		deps = append(deps, i.resolved[key].ip)
	}
	return deps
}

// AddPendingDependency marks a dependency to be looked up on the marketplace.
func (i *IP) AddPendingDependency(def *Definition) {
	i.pending = append(i.pending, def)
}

// PendingDependencies returns the dependencies still to be found remotely.
func (i *IP) PendingDependencies() []*Definition {
	return i.pending
}

func (i *IP) clearPending() {
	i.pending = nil
}

func (i *IP) removeFromDisk() error {
	if i.location != LocationInstalled || i.uninstalled {
		return nil
	}
	if err := os.RemoveAll(i.rootPath); err != nil {
		return fmt.Errorf("failed to remove %s: %w", i.rootPath, err)
	}
	i.uninstalled = true
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
