package marketplace

import "time"

// Endpoints served by the marketplace.
const (
	EndpointAuthToken                = "auth/token"
	EndpointFindIP                   = "find-ip"
	EndpointGetIP                    = "get-ip"
	EndpointPublishCertificate       = "publish-ip/certificate"
	EndpointPublishPayload           = "publish-ip/payload"
	EndpointPublishCommercialPayload = "publish-ip/commercial-payload"
)

// Unset marks an absent numeric id in marketplace responses.
const Unset = -1

// TokenRequest is the body of auth/token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the answer of auth/token.
type TokenResponse struct {
	Token string `json:"token"`
}

// FindRequest asks whether an IP matching a version range is published.
// Vendor is "*" when the request does not name one.
type FindRequest struct {
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	VersionSpec string `json:"version_spec"`
}

// FindResponse is the answer of find-ip.
type FindResponse struct {
	Found       bool      `json:"found"`
	IPID        int       `json:"ip_id"`
	Timestamp   time.Time `json:"timestamp"`
	LicenseType string    `json:"license_type"`
	LicenseID   int       `json:"license_id"`
	Version     string    `json:"version"`
	VersionID   int       `json:"version_id"`
}

// GetRequest asks for the payload of one IP version.
type GetRequest struct {
	VersionID int `json:"version_id"`
	LicenseID int `json:"license_id"`
}

// GetResponse carries a base64 encoded gzip tarball.
type GetResponse struct {
	Success bool   `json:"success"`
	Payload string `json:"payload"`
}

// CertificateRequest asks for permission to publish a new IP version.
type CertificateRequest struct {
	Vendor    string `json:"vendor"`
	IPName    string `json:"ip_name"`
	IPID      int    `json:"ip_id"`
	IPVersion string `json:"ip_version"`
	Customer  string `json:"customer"`
}

// Certificate is the answer of publish-ip/certificate.
type Certificate struct {
	Granted      bool      `json:"granted"`
	Certificator string    `json:"certificator"`
	Timestamp    time.Time `json:"timestamp"`
	LicenseType  string    `json:"license_type"`
	VersionID    int       `json:"version_id"`
	LicenseID    int       `json:"license_id"`
	LicenseKey   string    `json:"license_key"`
	CustomerID   int       `json:"customer_id"`
}

// PayloadRequest uploads the tarball of an open-source or private IP version.
type PayloadRequest struct {
	ID      int    `json:"id"`
	Payload string `json:"payload"`
}

// CommercialPayloadRequest uploads the encrypted tarball of a commercial IP version.
type CommercialPayloadRequest struct {
	VersionID  int    `json:"version_id"`
	LicenseID  int    `json:"license_id"`
	LicenseKey string `json:"license_key"`
	Payload    string `json:"payload"`
}

// Confirmation is the answer of the payload endpoints.
type Confirmation struct {
	Success      bool      `json:"success"`
	Certificator string    `json:"certificator,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	LicenseType  string    `json:"license_type,omitempty"`
}
