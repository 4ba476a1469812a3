package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docloom/docloom/internal/config"
)

// noContainer disables the loopback rewrite so httptest URLs survive.
func noContainer(t *testing.T) {
	t.Helper()
	prev := containerCheck
	containerCheck = func() bool { return false }
	t.Cleanup(func() { containerCheck = prev })
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "hosted", want: KindHosted},
		{input: "self_hosted", want: KindSelfHosted},
		{input: "openai", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrInvalidProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	t.Run("hosted requires api key", func(t *testing.T) {
		s := Settings{Kind: KindHosted, Model: "gpt-4o-mini"}
		assert.ErrorIs(t, s.Validate(), config.ErrMissingAPIKey)

		s.APIKey = "sk-test"
		assert.NoError(t, s.Validate())
	})

	t.Run("self-hosted requires base url", func(t *testing.T) {
		s := Settings{Kind: KindSelfHosted, Model: "llama3"}
		assert.ErrorIs(t, s.Validate(), config.ErrMissingBaseURL)

		s.BaseURL = "http://localhost:11434"
		assert.NoError(t, s.Validate())
	})

	t.Run("self-hosted needs no api key", func(t *testing.T) {
		s := Settings{Kind: KindSelfHosted, Model: "llama3", BaseURL: "http://localhost:11434"}
		assert.NoError(t, s.Validate())
	})

	t.Run("model required", func(t *testing.T) {
		s := Settings{Kind: KindHosted, APIKey: "sk-test"}
		assert.ErrorIs(t, s.Validate(), config.ErrInvalidModelName)
	})

	t.Run("unknown kind", func(t *testing.T) {
		s := Settings{Kind: "azure", Model: "gpt-4o-mini"}
		assert.ErrorIs(t, s.Validate(), config.ErrInvalidProvider)
	})
}
