package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractProtocolDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "labeled date", text: "Data de Protocolo: 13/11/2025", want: "13/11/2025", ok: true},
		{name: "alternate label", text: "Data do Protocolo: 13/11/2025", want: "13/11/2025", ok: true},
		{name: "dotted format", text: "Protocolada em 13.11.2025", want: "13/11/2025", ok: true},
		{name: "dashed format", text: "Protocolado em 13-11-2025", want: "13/11/2025", ok: true},
		{name: "iso dashed", text: "Protocolo 2025-11-13", want: "13/11/2025", ok: true},
		{name: "iso slashed", text: "Protocolo 2025/11/13", want: "13/11/2025", ok: true},
		{name: "no keyword takes first date", text: "manifestacao 13/11/2025 _9565_56790_", want: "13/11/2025", ok: true},
		{name: "keyword picks nearest date", text: "Juntada em 12/11/2025 — Protocolo em 13/11/2025", want: "13/11/2025", ok: true},
		{name: "invalid month rejected", text: "Protocolo 13/13/2025", ok: false},
		{name: "invalid day rejected", text: "Protocolo 32/01/2025", ok: false},
		{name: "no date at all", text: "Protocolo pendente", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractProtocolDate(tt.text)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractProtocolDateFromTitles(t *testing.T) {
	t.Parallel()

	titles := []string{
		"id_999_doc._00_5188032_43_2019_8_09_0152_9565_56790_manifestacao_13.11.2025.pdf",
		"id_999_doc._00_5188032_43_2019_8_09_0152_9565_56790_manifestacao_13/11/2025.pdf",
		"id_999_doc._00_5188032_43_2019_8_09_0152_9565_56790_manifestacao_13-11-2025.pdf",
	}
	for _, title := range titles {
		got, ok := ExtractProtocolDate(title)
		require.True(t, ok, title)
		require.Equal(t, "13/11/2025", got, title)
	}
}
