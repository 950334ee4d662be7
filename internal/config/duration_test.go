package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds string", yaml: "10s", want: 10 * time.Second},
		{name: "compound string", yaml: "1m30s", want: 90 * time.Second},
		{name: "milliseconds string", yaml: "250ms", want: 250 * time.Millisecond},
		{name: "integer nanoseconds", yaml: "5000000000", want: 5 * time.Second},
		{name: "not a duration", yaml: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := yaml.Unmarshal([]byte(tt.yaml), &d)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}
