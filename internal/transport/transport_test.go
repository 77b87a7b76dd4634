package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordkv/internal/config"
	"github.com/zde37/chordkv/pkg"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		wantType  any
		wantErr   bool
	}{
		{name: "udp", transport: config.TransportUDP, wantType: &UDPTransport{}},
		{name: "grpc", transport: config.TransportGRPC, wantType: &GRPCTransport{}},
		{name: "unknown", transport: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Transport = tt.transport

			tr, err := New(cfg, "127.0.0.1:0", pkg.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, tr)
				return
			}
			require.NoError(t, err)
			defer tr.Close()
			assert.IsType(t, tt.wantType, tr)
		})
	}

	_, err := New(nil, "127.0.0.1:0", pkg.NewNop())
	assert.Error(t, err)
}
