package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

func TestClassifyAccessText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		granted bool
		wantErr error
	}{
		{
			name: "daily limit reached",
			text: "Só é permitido o acesso a 30 processos por dia",
			wantErr: verify.ErrAccessLimit,
		},
		{
			name:    "limit reached variant",
			text:    "O usuário atingiu o limite de consultas",
			wantErr: verify.ErrAccessLimit,
		},
		{
			name:    "must wait means already granted",
			text:    "Usuário tem que esperar 24h para solicitar acesso novamente",
			granted: true,
		},
		{
			name:    "already has access",
			text:    "O usuário já tem acesso ao processo",
			granted: true,
		},
		{
			name: "plain interstitial needs confirmation",
			text: "Deseja realmente acessar o processo?",
		},
		{
			name: "case insensitive",
			text: "USUÁRIO JÁ TEM ACESSO",
			granted: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			granted, err := classifyAccessText(tc.text)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.granted, granted)
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, "https://projudi.tjgo.jus.br", cfg.BaseURL)
	assert.NotZero(t, cfg.LoginTimeout)
	assert.NotZero(t, cfg.VerifyTimeout)
	assert.NotZero(t, cfg.PollInterval)
	assert.NotZero(t, cfg.SearchInterval)

	custom := Config{BaseURL: "https://staging.example"}.withDefaults()
	assert.Equal(t, "https://staging.example", custom.BaseURL)
}
