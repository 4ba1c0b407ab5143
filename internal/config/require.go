package config

import (
	"bytes"
	"log"
)

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

// MustDistinctSecrets stops startup when access and refresh tokens would share a key.
func MustDistinctSecrets(access, refresh []byte) {
	if bytes.Equal(access, refresh) {
		log.Fatalf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
}

// Validate runs every required check for the server binary.
func (c Config) Validate() {
	MustNonEmpty(c.DatabaseURL, "DATABASE_URL")
	MustNonEmptyBytes(c.JWTAccessSecret, "JWT_ACCESS_SECRET")
	MustNonEmptyBytes(c.JWTRefreshSecret, "JWT_REFRESH_SECRET")
	MustDistinctSecrets(c.JWTAccessSecret, c.JWTRefreshSecret)
}
