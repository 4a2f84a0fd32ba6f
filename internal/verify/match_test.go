package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractIdentifierPrefersLiteralTarget(t *testing.T) {
	t.Parallel()

	title := "id_483887823_doc._00_5188032_43_2019_8_09_0152_9565_56790_manifestacao.pdf"
	got := ExtractIdentifier(title, "_9565_56790_")
	require.Equal(t, "_9565_56790_", got.Identifier)
	require.False(t, got.Ambiguous)
}

func TestExtractIdentifierTargetGroups(t *testing.T) {
	t.Parallel()

	// Target without its trailing separator still resolves through the
	// candidate containing both numeric groups.
	title := "cumprimento_15553_56747_final.pdf"
	got := ExtractIdentifier(title, "_15553_56747")
	require.NotEmpty(t, got.Identifier)
	require.Equal(t, "15553_56747", NormalizeIdentifier(got.Identifier))
}

func TestExtractIdentifierHeuristic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		title     string
		want      string
		ambiguous bool
	}{
		{
			name:  "rightmost structurally valid pair",
			title: "manifestacao_9565_56790_.pdf",
			want:  "9565_56790",
		},
		{
			name:  "short groups are skipped",
			title: "doc_12_34_ anexo _555_666_",
			want:  "555_666",
		},
		{
			name:  "year-like first group is skipped",
			title: "peticao_2024_5678_ final _4321_8765_",
			want:  "4321_8765",
		},
		{
			name:      "two valid pairs flag ambiguity",
			title:     "rel_111222_333444_ e _555666_777888_",
			want:      "555666_777888",
			ambiguous: true,
		},
		{
			name:  "no candidates",
			title: "certidao simples.pdf",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIdentifier(tt.title, "")
			require.Equal(t, tt.want, NormalizeIdentifier(got.Identifier))
			require.Equal(t, tt.ambiguous, got.Ambiguous)
		})
	}
}

func TestFindAttachment(t *testing.T) {
	t.Parallel()

	attachments := []Attachment{
		{Title: "despacho_1111_2222_.pdf"},
		{Title: "id_99_doc_0152_9565_manifestacao _9565_56790_.pdf"},
		{Title: "certidao_3333_4444_.pdf"},
	}

	got, ok := FindAttachment("_9565_56790_", attachments)
	require.True(t, ok)
	require.Equal(t, attachments[1].Title, got.Title)

	// Order independence: the same attachment wins from any position.
	reordered := []Attachment{attachments[2], attachments[0], attachments[1]}
	got, ok = FindAttachment("_9565_56790_", reordered)
	require.True(t, ok)
	require.Equal(t, attachments[1].Title, got.Title)

	_, ok = FindAttachment("_7777_8888_", attachments)
	require.False(t, ok)

	_, ok = FindAttachment("", attachments)
	require.False(t, ok)
}

func TestFindAttachmentEarlyStop(t *testing.T) {
	t.Parallel()

	// The match sits first; the scan must not depend on later entries being
	// parseable at all.
	attachments := []Attachment{
		{Title: "manifestacao _9565_56790_.pdf"},
		{Title: string([]byte{0xff, 0xfe})},
	}
	got, ok := FindAttachment("9565_56790", attachments)
	require.True(t, ok)
	require.Equal(t, attachments[0].Title, got.Title)
}

func TestSimilarNames(t *testing.T) {
	t.Parallel()

	attachments := []Attachment{
		{Title: "manifestacao _9565_56790_v2.pdf"},
		{Title: "despacho_1111_2222_.pdf"},
		{Title: "anexo _9565_56790_v3.pdf"},
	}
	names := SimilarNames("_9565_56790_", attachments, 3)
	require.Equal(t, []string{"manifestacao _9565_56790_v2.pdf", "anexo _9565_56790_v3.pdf"}, names)

	require.Nil(t, SimilarNames("", attachments, 3))
}

func TestDetectDocType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Manifestação", DetectDocType("arquivo_manifestação_final.pdf"))
	require.Equal(t, "Cumprimento", DetectDocType("doc_cumprimento_.pdf"))
	require.Equal(t, "", DetectDocType("arquivo_generico.pdf"))
}
