package api

import "strings"

// Service names the independently-deployable backends the client talks to.
type Service string

const (
	ServiceGateway  Service = "gateway"
	ServiceUser     Service = "user"
	ServiceDocument Service = "document"
	ServiceVersion  Service = "version"
)

// KnownServices returns every service the health monitor must probe.
func KnownServices() []Service {
	return []Service{ServiceGateway, ServiceUser, ServiceDocument, ServiceVersion}
}

// Endpoints holds the gateway base URL and the per-service direct URLs used
// when the gateway is unreachable. Request paths are relative to whichever
// base answers.
type Endpoints struct {
	Gateway string
	Direct  map[Service]string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Gateway: "http://localhost:8080/api",
		Direct: map[Service]string{
			ServiceUser:     "http://localhost:8081",
			ServiceDocument: "http://localhost:8082",
			ServiceVersion:  "http://localhost:8083",
		},
	}
}

// DirectBase returns the direct URL registered for the service, or "" when
// there is none. The gateway has no fallback of its own.
func (e Endpoints) DirectBase(svc Service) string {
	if e.Direct == nil {
		return ""
	}
	return normalizeBase(e.Direct[svc])
}

func (e Endpoints) GatewayBase() string {
	return normalizeBase(e.Gateway)
}

// ProbeURL is the lightweight GET target used by health checks. Each service
// is probed at its own base URL; the probe never uses the fallback, or a dead
// gateway would be reported healthy through it.
func (e Endpoints) ProbeURL(svc Service) string {
	switch svc {
	case ServiceGateway:
		return e.GatewayBase() + "/users"
	case ServiceUser:
		return e.DirectBase(ServiceUser) + "/users"
	case ServiceDocument:
		return e.DirectBase(ServiceDocument) + "/documents"
	case ServiceVersion:
		return e.DirectBase(ServiceVersion) + "/versions"
	default:
		return ""
	}
}

func normalizeBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return base
}
