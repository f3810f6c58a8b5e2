package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantErr    error
		wantPrefix string
	}{
		{name: "disabled without address", cfg: Config{}, wantPrefix: "castwave"},
		{name: "enabled without address", cfg: Config{Enabled: true}, wantErr: ErrAddressRequired},
		{name: "custom prefix", cfg: Config{Enabled: true, Address: "localhost:6379", Prefix: "dev"}, wantPrefix: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, tt.cfg.Prefix)
		})
	}
}

func TestConfig_PrefixKey(t *testing.T) {
	cfg := &Config{Prefix: "castwave"}
	assert.Equal(t, "castwave:session", cfg.PrefixKey("session"))

	cfg.Prefix = ""
	assert.Equal(t, "session", cfg.PrefixKey("session"))
}

func TestNewOptions(t *testing.T) {
	opt, err := NewOptions(&Config{Address: "redis://:secret@localhost:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	opt, err = NewOptions(&Config{Address: "localhost:6379", Password: "pw", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 3, opt.DB)

	_, err = NewOptions(&Config{})
	assert.ErrorIs(t, err, ErrAddressRequired)

	_, err = NewOptions(&Config{Address: "redis://localhost:6379/notanumber"})
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()).Err())
}
