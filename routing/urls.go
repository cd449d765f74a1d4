// Package routing derives the externally reachable URL and the reverse
// proxy metadata for a session. Everything here is a pure function of
// the session id and the environment; the proxy itself consumes the
// labels, we never talk to it.
package routing

import "fmt"

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Labels carry the traefik routing rule for one session container.
type Labels map[string]string

// Build returns the access URL for a session plus the routing labels
// the reverse proxy needs. Development uses a bare per-session local
// hostname; production uses a TLS subdomain under the parent domain.
func Build(sessionID string, env Environment, parentDomain string) (string, Labels) {
	if env == EnvProduction {
		host := fmt.Sprintf("%s.%s", sessionID, parentDomain)
		routerName := "session-" + sessionID
		return "https://" + host, Labels{
			"traefik.enable": "true",
			fmt.Sprintf("traefik.http.routers.%s.rule", routerName):             fmt.Sprintf("Host(`%s`)", host),
			fmt.Sprintf("traefik.http.routers.%s.entrypoints", routerName):      "websecure",
			fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", routerName): "letsencrypt",
		}
	}

	host := fmt.Sprintf("%s.localhost", sessionID)
	routerName := "session-" + sessionID
	return "http://" + host, Labels{
		"traefik.enable": "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", routerName):        fmt.Sprintf("Host(`%s`)", host),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", routerName): "web",
	}
}
