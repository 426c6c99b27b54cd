package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Main: MainSettings{Name: "test"},
		Store: StoreSettings{
			ModelsPath:    "models/",
			MaxModelStore: 10,
		},
		Sealing:   SealingSettings{KeyPath: "sealing.key"},
		WebServer: WebServerSettings{Enabled: true, Host: "127.0.0.1", Port: "8080"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:   "valid settings",
			mutate: func(s *Settings) {},
		},
		{
			name:    "empty models path",
			mutate:  func(s *Settings) { s.Store.ModelsPath = "" },
			wantErr: "store.modelspath",
		},
		{
			name:    "negative capacity",
			mutate:  func(s *Settings) { s.Store.MaxModelStore = -1 },
			wantErr: "store.maxmodelstore",
		},
		{
			name:    "empty sealing key path",
			mutate:  func(s *Settings) { s.Sealing.KeyPath = "" },
			wantErr: "sealing.keypath",
		},
		{
			name: "preload entry without path",
			mutate: func(s *Settings) {
				s.Store.LoadModels = []LoadModelConfig{{ModelID: "m1"}}
			},
			wantErr: "path must not be empty",
		},
		{
			name: "preload entry without id",
			mutate: func(s *Settings) {
				s.Store.LoadModels = []LoadModelConfig{{Path: "/opt/models/a.tflite"}}
			},
			wantErr: "modelid must not be empty",
		},
		{
			name: "preload entry with negative dims",
			mutate: func(s *Settings) {
				s.Store.LoadModels = []LoadModelConfig{{
					Path:       "/opt/models/a.tflite",
					ModelID:    "m1",
					InputFacts: []ModelFactConfig{{Dims: []int{1, -3}}},
				}}
			},
			wantErr: "dims must not be negative",
		},
		{
			name: "web server enabled without port",
			mutate: func(s *Settings) {
				s.WebServer.Port = ""
			},
			wantErr: "webserver.port",
		},
		{
			name: "web server disabled without port is fine",
			mutate: func(s *Settings) {
				s.WebServer.Enabled = false
				s.WebServer.Port = ""
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := validSettings()
			tt.mutate(settings)

			err := ValidateSettings(settings)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
