package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasaforge/forge/internal/core/domain"
)

func TestBuildSitePrompt_DefaultsAndBriefingFields(t *testing.T) {
	prompt := BuildSitePrompt(SiteBriefing{
		Title:  "Padaria do Bairro",
		Prompt: "site para padaria",
		Tone:   "acolhedor",
	})

	assert.Contains(t, prompt, "setor: negocio")
	assert.Contains(t, prompt, "Navy escuro com roxo vibrante")
	assert.Contains(t, prompt, "locale: pt-BR")
	assert.Contains(t, prompt, "Tom de voz: acolhedor")
	assert.NotContains(t, prompt, "Instrucoes extras")

	withExtras := BuildSitePrompt(SiteBriefing{
		Prompt:                 "x",
		Sector:                 "saude",
		Palette:                "verde e branco",
		Locale:                 "en-US",
		AdditionalInstructions: "incluir secao de convenios",
	})
	assert.Contains(t, withExtras, "setor: saude")
	assert.Contains(t, withExtras, "verde e branco")
	assert.Contains(t, withExtras, "locale: en-US")
	assert.Contains(t, withExtras, "Instrucoes extras: incluir secao de convenios")
}

func TestBuildEditPrompt_EmbedsSectionAndInstruction(t *testing.T) {
	section := &domain.SiteSection{ID: "hero", Type: domain.SectionHero, Headline: "Old headline"}

	prompt, err := BuildEditPrompt(section, "troque o titulo")
	require.NoError(t, err)
	assert.Contains(t, prompt, `"headline": "Old headline"`)
	assert.Contains(t, prompt, "troque o titulo")
}

func TestParseSiteDocument(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		doc, err := ParseSiteDocument(`{"version":"1.0.0","pages":[{"route":"/","sections":[]}]}`)
		require.NoError(t, err)
		assert.Equal(t, "/", doc.Pages[0].Route)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		doc, err := ParseSiteDocument("```json\n{\"pages\":[{\"route\":\"/\"}]}\n```")
		require.NoError(t, err)
		assert.Len(t, doc.Pages, 1)
	})

	t.Run("prose is rejected", func(t *testing.T) {
		_, err := ParseSiteDocument("Here is your website! ...")
		require.Error(t, err)
		assert.Equal(t, domain.FailureInvalidOutput, domain.ClassifyError(err))
	})

	t.Run("empty pages are rejected", func(t *testing.T) {
		_, err := ParseSiteDocument(`{"version":"1.0.0","pages":[]}`)
		require.Error(t, err)
		assert.Equal(t, domain.FailureInvalidOutput, domain.ClassifyError(err))
	})
}

func TestMergeSection(t *testing.T) {
	original := &domain.SiteSection{
		ID:       "hero",
		Type:     domain.SectionHero,
		Headline: "Old headline",
		Body:     "old body",
		Actions:  []domain.SectionAction{{Label: "Comprar", Href: "/buy"}},
	}

	t.Run("proposal overrides only present keys", func(t *testing.T) {
		merged, err := MergeSection(original, `{"headline":"New headline"}`)
		require.NoError(t, err)
		assert.Equal(t, "New headline", merged.Headline)
		assert.Equal(t, "old body", merged.Body)
		assert.Equal(t, "hero", merged.ID)
		require.Len(t, merged.Actions, 1)
	})

	t.Run("original is not mutated", func(t *testing.T) {
		_, err := MergeSection(original, `{"headline":"Changed"}`)
		require.NoError(t, err)
		assert.Equal(t, "Old headline", original.Headline)
	})

	t.Run("garbage proposal is invalid output", func(t *testing.T) {
		_, err := MergeSection(original, "I changed the headline for you")
		require.Error(t, err)
		assert.Equal(t, domain.FailureInvalidOutput, domain.ClassifyError(err))
	})
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                      `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"```\n{\"a\":1}\n```":            `{"a":1}`,
		"  \n```json\n{\"a\":1}\n```\n ": `{"a":1}`,
	}
	for input, want := range cases {
		assert.Equal(t, want, stripCodeFence(input))
	}
}
