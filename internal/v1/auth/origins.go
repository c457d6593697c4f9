package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/khanmassab/flixers/internal/v1/logging"
	"go.uber.org/zap"
)

// ParseAllowedOrigins splits a comma-separated origin list. An empty list
// means deny-all in production; development mode substitutes localhost
// defaults so a local extension build can connect.
func ParseAllowedOrigins(originsStr string, development bool) []string {
	if originsStr == "" {
		if development {
			defaults := []string{"http://localhost:3000", "http://localhost:8080"}
			logging.Warn(context.Background(), "ALLOWED_ORIGINS not set. Using default development origins", zap.Strings("origins", defaults))
			return defaults
		}
		return nil
	}

	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// ValidateOrigin checks if the request origin is in the allowed list.
// Requests without an Origin header are allowed (non-browser clients).
func ValidateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.GetLogger().Debug("No origin header - allowing non-browser client")
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		logging.Warn(context.Background(), "Invalid origin URL", zap.String("origin", origin), zap.Error(err))
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return nil
		}
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	logging.Warn(context.Background(), "Origin not in allowed list", zap.String("origin", origin), zap.Strings("allowedOrigins", allowedOrigins))
	return fmt.Errorf("origin not allowed: %s", origin)
}
