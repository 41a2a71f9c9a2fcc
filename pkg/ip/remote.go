package ip

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/marketplace"
)

// Remote is the marketplace as seen by the database. *marketplace.Client
// implements it.
type Remote interface {
	Call(ctx context.Context, method, endpoint string, payload, out any) error
}

// EncryptionLicense carries the license a commercial IP is encrypted for.
type EncryptionLicense struct {
	ID  int
	Key string
}

// Encryptor encrypts the sources of an IP for one simulator and returns the
// directory holding the encrypted tree.
type Encryptor interface {
	Encrypt(ctx context.Context, ip *IP, simulator string, license EncryptionLicense) (string, error)
}

var versionLiteral = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// FindAllMissingDependenciesOnServer asks the marketplace about every pending
// definition. Requests for the same IP are merged into one conjunction of
// version ranges, which must be satisfiable.
func (db *Database) FindAllMissingDependenciesOnServer(ctx context.Context) error {
	ctx, span := db.tracer.StartSpan(ctx, "ip.find_missing")
	defer span.End()

	merged, err := mergePending(db.pending)
	if err != nil {
		db.tracer.RecordError(span, err)
		return err
	}
	db.pending = merged
	db.toInstall = nil

	var notFound []string
	for _, def := range merged {
		res, err := db.findOnServer(ctx, def)
		if err != nil {
			db.tracer.RecordError(span, err)
			return err
		}
		def.FindResults = res
		if res.Found {
			db.toInstall = append(db.toInstall, def)
			continue
		}
		db.logger.WithIP(def.String()).Warn("could not find IP dependency on the server")
		notFound = append(notFound, def.String())
	}

	if len(notFound) > 0 {
		err := engine.NewDomainError(
			fmt.Sprintf("could not resolve all dependencies for the following IP: %s", strings.Join(notFound, ", ")), nil).
			WithCode(engine.ErrCodeRemoteNotFound)
		db.tracer.RecordError(span, err)
		return err
	}
	return nil
}

// mergePending groups definitions by identity in first-seen order and joins
// their version ranges. "*" is dropped unless it is the only range.
func mergePending(pending []*Definition) ([]*Definition, error) {
	var order []string
	groups := make(map[string]*Definition)
	specs := make(map[string][]string)

	for _, def := range pending {
		key := def.Key()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			groups[key] = &Definition{Vendor: def.Vendor, Name: def.Name}
		}
		spec := strings.TrimSpace(def.VersionSpec)
		if spec == "" {
			spec = "*"
		}
		seen := false
		for _, s := range specs[key] {
			if s == spec {
				seen = true
				break
			}
		}
		if !seen {
			specs[key] = append(specs[key], spec)
		}
	}

	merged := make([]*Definition, 0, len(order))
	for _, key := range order {
		var kept []string
		for _, s := range specs[key] {
			if s != "*" {
				kept = append(kept, s)
			}
		}
		def := groups[key]
		if len(kept) == 0 {
			def.VersionSpec = "*"
		} else {
			def.VersionSpec = strings.Join(kept, ", ")
		}
		if len(kept) > 1 {
			if err := checkSatisfiable(def); err != nil {
				return nil, err
			}
		}
		merged = append(merged, def)
	}
	return merged, nil
}

// checkSatisfiable tests the merged range with versions built from every
// literal it mentions.
func checkSatisfiable(def *Definition) error {
	c, err := def.Constraints()
	if err != nil {
		return engine.NewDomainError(fmt.Sprintf("invalid version range '%s' for IP '%s'", def.VersionSpec, def), err).
			WithCode(engine.ErrCodeContradictorySpecs)
	}

	candidates := []*semver.Version{semver.MustParse("0.0.0")}
	for _, lit := range versionLiteral.FindAllString(def.VersionSpec, -1) {
		v, err := semver.NewVersion(lit)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
		patch, minor, major := v.IncPatch(), v.IncMinor(), v.IncMajor()
		candidates = append(candidates, &patch, &minor, &major)
	}
	for _, v := range candidates {
		if c.Check(v) {
			return nil
		}
	}
	return engine.NewDomainError(fmt.Sprintf("contradictory version ranges for IP '%s': %s", def, def.VersionSpec), nil).
		WithCode(engine.ErrCodeContradictorySpecs).
		WithIP(def.String())
}

func (db *Database) findOnServer(ctx context.Context, def *Definition) (*marketplace.FindResponse, error) {
	if db.remote == nil {
		return nil, engine.NewDomainError("no marketplace configured", nil).WithCode(engine.ErrCodeRemoteCall)
	}
	req := marketplace.FindRequest{
		Name:        def.Name,
		Vendor:      def.VendorOrWildcard(),
		VersionSpec: def.VersionSpec,
	}
	var res marketplace.FindResponse
	if err := db.remote.Call(ctx, http.MethodPost, marketplace.EndpointFindIP, req, &res); err != nil {
		return nil, engine.NewDomainError(fmt.Sprintf("error while getting IP '%s' information from server", def), err).
			WithCode(engine.ErrCodeRemoteCall).
			WithIP(def.String())
	}
	return &res, nil
}

// InstallAllMissingDependenciesFromServer installs every definition found by
// the last FindAllMissingDependenciesOnServer.
func (db *Database) InstallAllMissingDependenciesFromServer(ctx context.Context) error {
	failed := 0
	for _, def := range db.toInstall {
		if err := db.InstallFromServer(ctx, def); err != nil {
			db.logger.WithIP(def.String()).WithError(err).Error("failed to install IP")
			failed++
		}
	}
	db.toInstall = nil
	if failed > 0 {
		return engine.NewDomainError(fmt.Sprintf("failed to install %d IPs from remote", failed), nil).
			WithCode(engine.ErrCodeInstallFailed)
	}
	return nil
}

// InstallFromServer downloads one IP version and extracts it into the
// installation directory.
func (db *Database) InstallFromServer(ctx context.Context, def *Definition) (err error) {
	ctx, span := db.tracer.StartIPSpan(ctx, "install", def.String())
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			db.tracer.RecordError(span, err)
		}
		db.metrics.RecordRemoteInstall(status)
		span.End()
	}()

	dirName, err := def.InstallationDirectoryName()
	if err != nil {
		return err
	}
	if db.remote == nil {
		return engine.NewDomainError("no marketplace configured", nil).WithCode(engine.ErrCodeRemoteCall)
	}

	versionID := def.FindResults.VersionID
	req := marketplace.GetRequest{VersionID: versionID, LicenseID: def.FindResults.LicenseID}
	var res marketplace.GetResponse
	if err := db.remote.Call(ctx, http.MethodPost, marketplace.EndpointGetIP, req, &res); err != nil {
		return engine.NewDomainError(fmt.Sprintf("failed to get IP version '%d' from server", versionID), err).
			WithCode(engine.ErrCodeRemoteCall).
			WithIP(def.String())
	}
	if !res.Success {
		return engine.NewDomainError(fmt.Sprintf("failed to get IP version '%d' from server", versionID), nil).
			WithCode(engine.ErrCodeInstallFailed).
			WithIP(def.String())
	}

	data, err := base64.StdEncoding.DecodeString(res.Payload)
	if err != nil {
		return fmt.Errorf("failed to decode payload for IP version '%d': %w", versionID, err)
	}
	dest := filepath.Join(db.installedDir, dirName)
	if err := ExtractArchive(data, dest); err != nil {
		return fmt.Errorf("failed to decompress tgz data for IP version '%d' from server: %w", versionID, err)
	}
	db.logger.WithIP(def.String()).WithField("path", dest).Debug("installed IP")
	return nil
}

// InstallMissing installs from the marketplace until every dependency resolves
// locally. With no targets every registered IP is resolved; otherwise only the
// targets and their transitive dependencies are, and targets missing locally
// are installed first. It returns the number of rounds used and fails once
// MaxDepth rounds did not suffice.
func (db *Database) InstallMissing(ctx context.Context, targets []*Definition) (int, error) {
	for round := 1; round <= MaxDepth; round++ {
		db.metrics.RecordResolutionRound()

		if err := db.resolveTargets(targets); err != nil {
			return round, err
		}
		if !db.needRemote {
			return round, nil
		}
		db.logger.WithField("round", round).WithField("pending", len(db.pending)).Debug("resolving dependencies on the server")

		if err := db.FindAllMissingDependenciesOnServer(ctx); err != nil {
			return round, err
		}
		if err := db.InstallAllMissingDependenciesFromServer(ctx); err != nil {
			return round, err
		}
		if _, err := db.Discover(db.installedDir, LocationInstalled, true, false); err != nil {
			return round, err
		}
	}
	return MaxDepth, engine.NewDomainError(fmt.Sprintf("failed to resolve all dependencies after %d attempts", MaxDepth), nil).
		WithCode(engine.ErrCodeResolutionExhausted)
}

func (db *Database) resolveTargets(targets []*Definition) error {
	if len(targets) == 0 {
		return db.ResolveLocalDependencies()
	}
	db.resetPending()
	visited := make(map[*IP]bool)
	for _, def := range targets {
		ip := db.Lookup(def)
		if ip == nil {
			db.addPending(def)
			continue
		}
		if err := db.resolve(ip, true, 0, visited); err != nil {
			return err
		}
	}
	return nil
}

// PublishToServer publishes a new version of a local IP. Commercial IPs are
// encrypted for every simulator listed in their descriptor.
func (db *Database) PublishToServer(ctx context.Context, ip *IP, customer string) (*marketplace.Certificate, error) {
	ctx, span := db.tracer.StartIPSpan(ctx, "publish", ip.QualifiedName())
	defer span.End()

	cert, err := db.publish(ctx, ip, customer)
	if err != nil {
		db.tracer.RecordError(span, err)
		return nil, err
	}
	return cert, nil
}

func (db *Database) publish(ctx context.Context, ip *IP, customer string) (*marketplace.Certificate, error) {
	if ip.Location() != LocationLocal {
		return nil, engine.NewUserError(fmt.Sprintf("only local IPs can be published: '%s' is %s", ip, ip.Location()), nil).
			WithIP(ip.QualifiedName())
	}
	if db.remote == nil {
		return nil, engine.NewDomainError("no marketplace configured", nil).WithCode(engine.ErrCodeRemoteCall)
	}

	req := marketplace.CertificateRequest{
		Vendor:    ip.Vendor(),
		IPName:    ip.Name(),
		IPID:      ip.Descriptor.IP.SyncID,
		IPVersion: ip.Version().String(),
		Customer:  customer,
	}
	var cert marketplace.Certificate
	if err := db.remote.Call(ctx, http.MethodPost, marketplace.EndpointPublishCertificate, req, &cert); err != nil {
		return nil, engine.NewDomainError(fmt.Sprintf("failed to get publishing certificate for IP '%s'", ip), err).
			WithCode(engine.ErrCodeRemoteCall).
			WithIP(ip.QualifiedName())
	}
	if !cert.Granted {
		return nil, engine.NewDomainError(fmt.Sprintf("IP %s is not available for publishing", ip), nil).
			WithIP(ip.QualifiedName())
	}

	commercial := LicenseType(cert.LicenseType) == LicenseCommercial
	dest := filepath.Join(db.tempDir, ip.ArchiveName()+".tgz")
	if commercial {
		if err := db.createCommercialArchive(ctx, ip, &cert, dest); err != nil {
			return nil, err
		}
	} else if err := CreateArchive(ip, dest); err != nil {
		return nil, fmt.Errorf("failed to create compressed tarball for %s: %w", ip, err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode IP %s compressed tarball: %w", ip, err)
	}
	payload := base64.StdEncoding.EncodeToString(data)

	var (
		endpoint string
		body     any
	)
	if commercial {
		endpoint = marketplace.EndpointPublishCommercialPayload
		body = marketplace.CommercialPayloadRequest{
			VersionID:  cert.VersionID,
			LicenseID:  cert.LicenseID,
			LicenseKey: cert.LicenseKey,
			Payload:    payload,
		}
	} else {
		endpoint = marketplace.EndpointPublishPayload
		body = marketplace.PayloadRequest{ID: cert.VersionID, Payload: payload}
	}

	var confirmation marketplace.Confirmation
	if err := db.remote.Call(ctx, http.MethodPost, endpoint, body, &confirmation); err != nil {
		return nil, engine.NewDomainError(fmt.Sprintf("failed to push IP payload to server for '%s'", ip), err).
			WithCode(engine.ErrCodeRemoteCall).
			WithIP(ip.QualifiedName())
	}
	if !confirmation.Success {
		return nil, engine.NewDomainError(fmt.Sprintf("failed to push IP payload to server for '%s'", ip), nil).
			WithIP(ip.QualifiedName())
	}
	db.logger.WithIP(ip.QualifiedName()).WithField("version_id", cert.VersionID).Info("published IP")
	return &cert, nil
}

func (db *Database) createCommercialArchive(ctx context.Context, ip *IP, cert *marketplace.Certificate, dest string) error {
	if !ip.Descriptor.IP.MLicensed {
		return engine.NewDomainError("attempting to publish Open-Source/Private IP to a Commercial license", nil).
			WithIP(ip.QualifiedName())
	}
	if cert.LicenseID == marketplace.Unset || cert.LicenseKey == "" || cert.CustomerID == marketplace.Unset {
		return engine.NewDomainError("invalid certificate received for Commercial IP", nil).
			WithIP(ip.QualifiedName())
	}
	if db.encryptor == nil {
		return fmt.Errorf("cannot encrypt IP '%s': no encryptor configured", ip)
	}

	license := EncryptionLicense{ID: cert.LicenseID, Key: cert.LicenseKey}
	encrypted := make(map[string]string, len(ip.Descriptor.IP.Encrypted))
	defer func() {
		for _, dir := range encrypted {
			os.RemoveAll(dir)
		}
	}()
	for _, sim := range ip.Descriptor.IP.Encrypted {
		dir, err := db.encryptor.Encrypt(ctx, ip, sim, license)
		if err != nil {
			return fmt.Errorf("could not encrypt IP %s for simulator '%s': %w", ip, sim, err)
		}
		encrypted[sim] = dir
	}
	if err := createEncryptedArchive(ip, dest, encrypted); err != nil {
		return fmt.Errorf("failed to create encrypted compressed tarball for %s: %w", ip, err)
	}
	return nil
}
