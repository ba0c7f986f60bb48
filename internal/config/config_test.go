package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret"))

	t.Run("valid", func(t *testing.T) {
		cfg, err := NewConfig(":8080", "postgres://localhost/chat", "localhost:6379",
			secret, []string{"http://localhost:3000"}, "migrations")
		assert.NoError(t, err)
		assert.Equal(t, ":8080", cfg.ServerAddr)
		assert.Equal(t, []byte("super-secret"), cfg.SigningKey, "expected the signing secret to be decoded")
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
		assert.Equal(t, "migrations", cfg.MigrationsPath)
	})

	t.Run("missing required values", func(t *testing.T) {
		tests := []struct {
			name                               string
			serverAddr, dsn, redisAddr, secret string
		}{
			{"empty server address", "", "dsn", "localhost:6379", secret},
			{"empty database dsn", ":8080", "", "localhost:6379", secret},
			{"empty redis address", ":8080", "dsn", "", secret},
			{"empty signing secret", ":8080", "dsn", "localhost:6379", ""},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				cfg, err := NewConfig(tc.serverAddr, tc.dsn, tc.redisAddr, tc.secret, nil, "")
				assert.Error(t, err)
				assert.Nil(t, cfg)
			})
		}
	})

	t.Run("invalid signing secret", func(t *testing.T) {
		cfg, err := NewConfig(":8080", "dsn", "localhost:6379", "not-base64!!", nil, "")
		assert.Error(t, err, "expected an error for a non-base64 signing secret")
		assert.Nil(t, cfg)
	})
}
