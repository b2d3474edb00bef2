package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/007-bg/Live-Attendance-System/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// The service refuses to start without a usable credential secret.
func ValidateSecurityConfig(cfg Config) error {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return fmt.Errorf("security policy: %sJWT_SECRET is missing: %w", EnvPrefix, token.ErrSecretMissing)
	}
	if len(secret) < token.MinSecretBytes {
		return fmt.Errorf("security policy: %sJWT_SECRET is too short (min %d bytes): %w", EnvPrefix, token.MinSecretBytes, token.ErrSecretTooShort)
	}
	if cfg.JWTTTL < 0 {
		return errors.New("security policy: JWT TTL must not be negative")
	}
	if cfg.WSOriginRequired && len(cfg.WSAllowedOrigins) == 0 {
		return fmt.Errorf("security policy: %sWS_ORIGIN_REQUIRED=true needs %sWS_ALLOWED_ORIGINS", EnvPrefix, EnvPrefix)
	}
	return nil
}
