package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceAttributes(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"service.namespace=imageflow", map[string]string{"service.namespace": "imageflow"}},
		{" a = 1 , broken, =x, b=2=3", map[string]string{"a": "1", "b": "2=3"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseResourceAttributes(tt.raw), tt.raw)
	}
}

func TestInit_NoEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "processor"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
