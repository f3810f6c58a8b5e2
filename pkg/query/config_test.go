package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantErr  error
		wantOpts int
	}{
		{name: "defaults", cfg: Config{}, wantOpts: 0},
		{name: "eviction and guard", cfg: Config{CacheTime: time.Minute, GenerationGuard: true}, wantOpts: 2},
		{name: "negative cache time", cfg: Config{CacheTime: -time.Second}, wantErr: ErrNegativeDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
			assert.Len(t, tt.cfg.Options(), tt.wantOpts)
		})
	}
}
