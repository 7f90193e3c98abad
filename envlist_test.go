package stevedore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEnvListUnmarshalYAML(t *testing.T) {
	t.Parallel()

	var holder struct {
		Env EnvList `yaml:"env"`
	}
	input := `
env:
  DEPLOY_ENV: production
  APP_NAME: checkout
  ANSWER: "42"
`
	require.NoError(t, yaml.Unmarshal([]byte(input), &holder))

	want := EnvList{
		{Key: "DEPLOY_ENV", Value: "production"},
		{Key: "APP_NAME", Value: "checkout"},
		{Key: "ANSWER", Value: "42"},
	}
	assert.Equal(t, want, holder.Env)
}

func TestEnvListRejectsNonMapping(t *testing.T) {
	t.Parallel()

	var holder struct {
		Env EnvList `yaml:"env"`
	}
	input := `
env:
- DEPLOY_ENV=production
`
	assert.Error(t, yaml.Unmarshal([]byte(input), &holder))
}

func TestEnvListRejectsNonScalarValue(t *testing.T) {
	t.Parallel()

	var holder struct {
		Env EnvList `yaml:"env"`
	}
	input := `
env:
  GOOD: ok
  BAD:
    nested: 1
`
	err := yaml.Unmarshal([]byte(input), &holder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD")
}

func TestEnvListAsExport(t *testing.T) {
	t.Parallel()

	env := EnvList{
		{Key: "DEPLOY_ENV", Value: "production"},
		{Key: "RELEASE", Value: "v4.2.0"},
	}
	assert.Equal(t, `export DEPLOY_ENV="production"; export RELEASE="v4.2.0"; `, env.AsExport())
	assert.Equal(t, "", EnvList(nil).AsExport())
}

func TestFileModeUnmarshalYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    FileMode
		wantErr bool
	}{
		{input: "644", want: "644"},
		{input: `"644"`, want: "644"},
		{input: "0644", want: "644"},
		{input: "0o644", want: "644"},
		{input: "0O644", want: "644"},
		{input: "4755", want: "4755"},
		{input: "0", want: "0"},
		{input: "999", wantErr: true},
		{input: "rw-r--r--", wantErr: true},
		{input: "77777", wantErr: true},
		{input: `""`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var holder struct {
				Mode FileMode `yaml:"mode"`
			}
			err := yaml.Unmarshal([]byte("mode: "+tt.input+"\n"), &holder)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, holder.Mode)
		})
	}
}
