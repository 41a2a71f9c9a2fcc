// Package marketplacetest provides an in-memory marketplace served over
// httptest for tests.
package marketplacetest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/marketplace"
)

// Version is one published or reserved IP version.
type Version struct {
	Vendor      string
	Name        string
	Version     *semver.Version
	IPID        int
	VersionID   int
	LicenseType string
	LicenseID   int
	LicenseKey  string
	CustomerID  int
	Payload     []byte
}

// Published reports whether a payload was uploaded for the version.
func (v *Version) Published() bool {
	return len(v.Payload) > 0
}

// Server is a fake marketplace.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]string
	tokens   map[string]string
	licenses map[string]string
	versions []*Version
	nextID   int
	calls    map[string]int
}

// NewServer starts a fake marketplace. Close it when done.
func NewServer() *Server {
	s := &Server{
		users:    make(map[string]string),
		tokens:   make(map[string]string),
		licenses: make(map[string]string),
		calls:    make(map[string]int),
		nextID:   1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/"+marketplace.EndpointAuthToken, s.handleToken)
	mux.HandleFunc("/"+marketplace.EndpointFindIP, s.authorized(s.handleFind))
	mux.HandleFunc("/"+marketplace.EndpointGetIP, s.authorized(s.handleGet))
	mux.HandleFunc("/"+marketplace.EndpointPublishCertificate, s.authorized(s.handleCertificate))
	mux.HandleFunc("/"+marketplace.EndpointPublishPayload, s.authorized(s.handlePayload))
	mux.HandleFunc("/"+marketplace.EndpointPublishCommercialPayload, s.authorized(s.handleCommercialPayload))
	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers credentials. Once a user exists every endpoint but
// auth/token requires a token.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// SetLicense sets the license granted to future versions of vendor/name.
func (s *Server) SetLicense(vendor, name, licenseType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[vendor+"/"+name] = licenseType
}

// Seed publishes a version directly.
func (s *Server) Seed(vendor, name, version string, payload []byte) *Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.reserve(vendor, name, semver.MustParse(version))
	v.Payload = payload
	return v
}

// Versions returns the published versions of vendor/name.
func (s *Server) Versions(vendor, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, v := range s.versions {
		if v.Vendor == vendor && v.Name == name && v.Published() {
			out = append(out, v.Version.String())
		}
	}
	return out
}

// Calls returns how many times endpoint was called.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

func (s *Server) reserve(vendor, name string, version *semver.Version) *Version {
	ipID := 0
	for _, v := range s.versions {
		if v.Vendor == vendor && v.Name == name {
			ipID = v.IPID
			if v.Version.Equal(version) {
				return v
			}
		}
	}
	if ipID == 0 {
		ipID = s.nextID
		s.nextID++
	}
	license := s.licenses[vendor+"/"+name]
	if license == "" {
		license = "public_open_source"
	}
	v := &Version{
		Vendor:      vendor,
		Name:        name,
		Version:     version,
		IPID:        ipID,
		VersionID:   s.nextID,
		LicenseType: license,
		LicenseID:   marketplace.Unset,
		CustomerID:  marketplace.Unset,
	}
	s.nextID++
	if license == "commercial" {
		v.LicenseID = s.nextID
		v.LicenseKey = fmt.Sprintf("key-%d", v.LicenseID)
		v.CustomerID = 1
		s.nextID++
	}
	s.versions = append(s.versions, v)
	return v
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[strings.TrimPrefix(r.URL.Path, "/")]++
		needsAuth := len(s.users) > 0
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		_, valid := s.tokens[token]
		s.mu.Unlock()

		if needsAuth && !valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req marketplace.TokenRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[marketplace.EndpointAuthToken]++
	if pass, ok := s.users[req.Username]; !ok || pass != req.Password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token := fmt.Sprintf("token-%s-%d", req.Username, len(s.tokens)+1)
	s.tokens[token] = req.Username
	encode(w, marketplace.TokenResponse{Token: token})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	var req marketplace.FindRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := semver.NewConstraint(config.NormalizeVersionSpec(req.VersionSpec))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Version
	for _, v := range s.versions {
		if !v.Published() || v.Name != req.Name || (req.Vendor != "*" && v.Vendor != req.Vendor) {
			continue
		}
		if c.Check(v.Version) && (best == nil || v.Version.GreaterThan(best.Version)) {
			best = v
		}
	}
	if best == nil {
		encode(w, marketplace.FindResponse{Found: false, IPID: marketplace.Unset, LicenseID: marketplace.Unset, VersionID: marketplace.Unset})
		return
	}
	encode(w, marketplace.FindResponse{
		Found:       true,
		IPID:        best.IPID,
		Timestamp:   time.Now().UTC(),
		LicenseType: best.LicenseType,
		LicenseID:   best.LicenseID,
		Version:     best.Version.String(),
		VersionID:   best.VersionID,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req marketplace.GetRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.VersionID == req.VersionID && v.Published() {
			encode(w, marketplace.GetResponse{Success: true, Payload: base64.StdEncoding.EncodeToString(v.Payload)})
			return
		}
	}
	encode(w, marketplace.GetResponse{Success: false})
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	var req marketplace.CertificateRequest
	if !decode(w, r, &req) {
		return
	}
	version, err := semver.StrictNewVersion(req.IPVersion)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.reserve(req.Vendor, req.IPName, version)
	cert := marketplace.Certificate{
		Granted:      !v.Published(),
		Certificator: "marketplacetest",
		Timestamp:    time.Now().UTC(),
		LicenseType:  v.LicenseType,
		VersionID:    v.VersionID,
		LicenseID:    v.LicenseID,
		LicenseKey:   v.LicenseKey,
		CustomerID:   v.CustomerID,
	}
	encode(w, cert)
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	var req marketplace.PayloadRequest
	if !decode(w, r, &req) {
		return
	}
	s.store(w, req.ID, req.Payload)
}

func (s *Server) handleCommercialPayload(w http.ResponseWriter, r *http.Request) {
	var req marketplace.CommercialPayloadRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	for _, v := range s.versions {
		if v.VersionID == req.VersionID && (v.LicenseID != req.LicenseID || v.LicenseKey != req.LicenseKey) {
			s.mu.Unlock()
			http.Error(w, "license mismatch", http.StatusForbidden)
			return
		}
	}
	s.mu.Unlock()
	s.store(w, req.VersionID, req.Payload)
}

func (s *Server) store(w http.ResponseWriter, versionID int, payload string) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.VersionID == versionID {
			v.Payload = data
			encode(w, marketplace.Confirmation{Success: true, Certificator: "marketplacetest", Timestamp: time.Now().UTC(), LicenseType: v.LicenseType})
			return
		}
	}
	encode(w, marketplace.Confirmation{Success: false, Timestamp: time.Now().UTC()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func encode(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
