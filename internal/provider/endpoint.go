package provider

import (
	"net"
	"net/url"
	"os"
	"strings"
)

// hostGateway is the Docker host alias reachable from inside a container.
const hostGateway = "host.docker.internal"

// ResolveBaseURL normalizes a self-hosted endpoint URL. Inside a container,
// loopback addresses point at the container itself rather than the machine
// running the model server, so they are rewritten to the host gateway alias.
// The port and path are preserved. Outside a container the URL passes
// through unchanged.
func ResolveBaseURL(raw string) string {
	if raw == "" || !containerCheck() {
		return raw
	}
	return rewriteLoopback(raw)
}

// containerCheck is a seam for tests.
var containerCheck = runningInContainer

func rewriteLoopback(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := u.Hostname()
	if !isLoopbackHost(host) {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(hostGateway, port)
	} else {
		u.Host = hostGateway
	}
	return u.String()
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// runningInContainer reports whether the process appears to be inside a
// container. Docker creates /.dockerenv; Kubernetes and some runtimes set
// container env markers instead.
func runningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	return os.Getenv("DOCLOOM_IN_CONTAINER") == "1"
}
