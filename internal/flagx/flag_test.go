package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-a", "127.0.0.1:5000", "-x", "other"},
			allowed: []string{"-a"},
			want:    []string{"-a", "127.0.0.1:5000"},
		},
		{
			name:    "equals form",
			args:    []string{"--config=conf.json", "-v"},
			allowed: []string{"--config"},
			want:    []string{"--config=conf.json"},
		},
		{
			name:    "flag followed by another flag keeps only the flag",
			args:    []string{"-a", "-b", "val"},
			allowed: []string{"-a"},
			want:    []string{"-a"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "1", "-b", "2"},
			allowed: []string{"-z"},
			want:    []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FilterArgs(tc.args, tc.allowed))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"finsync", "-c", "conf.json"}
	assert.Equal(t, "conf.json", JsonConfigFlags())

	os.Args = []string{"finsync", "-config=other.json"}
	assert.Equal(t, "other.json", JsonConfigFlags())

	os.Args = []string{"finsync"}
	assert.Equal(t, "", JsonConfigFlags())
}
