package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"

	"parley/internal/gateway/handlers"
)

// VersionConfig configures API version negotiation.
type VersionConfig struct {
	// CurrentVersion is the semantic version the server speaks.
	CurrentVersion string
	// Deprecated maps major versions to their sunset dates.
	Deprecated map[uint64]time.Time
}

// DefaultVersionConfig returns the default version configuration.
func DefaultVersionConfig() VersionConfig {
	return VersionConfig{
		CurrentVersion: "1.0.0",
		Deprecated:     make(map[uint64]time.Time),
	}
}

// Version returns middleware that negotiates the API version.
// Clients may send a semver constraint in Accept-Version ("1", "^1.2",
// ">=1.0 <2"); requests whose constraint the served version cannot
// satisfy are rejected with 406. Every response carries the served
// version in API-Version, plus Deprecation and Sunset headers (RFC 8594)
// when the served major has a sunset date.
func Version(config VersionConfig) func(http.Handler) http.Handler {
	current := semver.MustParse(config.CurrentVersion)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("API-Version", current.String())

			if sunset, deprecated := config.Deprecated[current.Major()]; deprecated {
				w.Header().Set("Deprecation", "true")
				w.Header().Set("Sunset", sunset.Format(http.TimeFormat))
			}

			if requested := r.Header.Get("Accept-Version"); requested != "" {
				constraint, err := semver.NewConstraint(requested)
				if err != nil {
					handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest,
						fmt.Sprintf("malformed Accept-Version %q", requested))
					return
				}
				if !constraint.Check(current) {
					handlers.SendError(w, http.StatusNotAcceptable, handlers.ErrCodeUnsupportedVersion,
						fmt.Sprintf("this server speaks API version %s", current))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
