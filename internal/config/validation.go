package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate rejects configurations the server or client cannot act on.
// It returns the first problem found; warnings are not modeled, a value
// is either usable or it is not.
func Validate(config *Config) error {
	if err := validateServer(&config.Server); err != nil {
		return err
	}
	if err := validateRender(&config.Render); err != nil {
		return err
	}
	if err := validateClient(&config.Client); err != nil {
		return err
	}

	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", config.Log.Level)
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", config.Log.Format)
	}

	return nil
}

func validateServer(server *ServerConfig) error {
	if server.Port < 1 || server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", server.Port)
	}
	if err := validateHostname(server.Host); err != nil {
		return err
	}

	for _, origin := range server.AllowedOrigins {
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: allowed origin %q is not a valid URL", origin)
		}
	}

	return nil
}

func validateRender(render *RenderConfig) error {
	switch render.Mode {
	case "streaming", "eager":
	default:
		return fmt.Errorf("config: unknown render mode %q", render.Mode)
	}
	if render.MaxDepth < 1 {
		return fmt.Errorf("config: render max_depth must be positive, got %d", render.MaxDepth)
	}

	return nil
}

func validateClient(client *ClientConfig) error {
	for _, endpoint := range client.Endpoints {
		parsed, err := url.Parse(endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: client endpoint %q is not a valid URL", endpoint)
		}
	}
	if client.Retries < 0 {
		return fmt.Errorf("config: client retries must not be negative, got %d", client.Retries)
	}
	if client.Backoff < 0 {
		return fmt.Errorf("config: client backoff must not be negative, got %s", client.Backoff)
	}

	return nil
}

func validateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("config: server host must not be empty")
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	// Hostname labels: alphanumerics and hyphens, dot separated.
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return fmt.Errorf("config: server host %q has an empty label", host)
		}
		for _, r := range label {
			valid := r == '-' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9')
			if !valid {
				return fmt.Errorf("config: server host %q contains invalid character %q", host, r)
			}
		}
	}

	return nil
}
