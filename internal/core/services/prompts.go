package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brasaforge/forge/internal/core/domain"
)

// SiteBriefing is the serialized briefing blob carried inside a
// generate_site payload's prompt field.
type SiteBriefing struct {
	Title                  string `json:"title"`
	Prompt                 string `json:"prompt"`
	Tone                   string `json:"tone"`
	Palette                string `json:"palette,omitempty"`
	Sector                 string `json:"sector,omitempty"`
	AdditionalInstructions string `json:"additionalInstructions,omitempty"`
	Locale                 string `json:"locale,omitempty"`
}

// siteSchemaDescription is embedded in the generation prompt so the model
// returns JSON matching domain.SiteDocument.
const siteSchemaDescription = `{
  "version": "1.0.0",
  "site": {
    "name": "string",
    "description": "string",
    "locale": "string",
    "palette": {"primary": "string", "secondary": "string", "background": "string", "accent": "string"}
  },
  "pages": [
    {
      "route": "/",
      "title": "string",
      "seo": {"title": "string", "description": "string", "keywords": ["string"]},
      "sections": [
        {
          "id": "string",
          "type": "hero|features|cta|pricing|faq|testimonials|gallery|stats|contact|footer",
          "headline": "string",
          "subhead": "string",
          "body": "string",
          "media": [{"kind": "image|video", "prompt": "string", "alt": "string"}],
          "actions": [{"label": "string", "href": "string", "style": "primary|secondary|ghost"}],
          "items": [{"title": "string", "description": "string", "icon": "string"}],
          "metadata": {"layout": "grid|list|carousel", "ariaLabel": "string"}
        }
      ]
    }
  ]
}`

// BuildSitePrompt renders the provider-agnostic text prompt for a full site
// generation from the user's briefing.
func BuildSitePrompt(b SiteBriefing) string {
	sector := b.Sector
	if sector == "" {
		sector = "negocio"
	}
	palette := b.Palette
	if palette == "" {
		palette = "Navy escuro com roxo vibrante"
	}
	locale := b.Locale
	if locale == "" {
		locale = "pt-BR"
	}

	lines := []string{
		"Voce e uma IA especialista em criacao de sites para o mercado brasileiro.",
		fmt.Sprintf("Gere um JSON que siga o esquema abaixo (SiteJSON) para um site do setor: %s.", sector),
		fmt.Sprintf("Tom de voz: %s. Paleta sugerida: %s.", b.Tone, palette),
		"O site deve incluir hero, destaques, prova social, plano de precos, FAQ, CTA final e bloco de SEO (tags).",
		"Escreva copy em portugues brasileiro, clara, objetiva e adequada ao publico alvo.",
		"Cada secao deve indicar componentes, textos, CTAs, imagens sugeridas e dados estruturados.",
	}
	if b.AdditionalInstructions != "" {
		lines = append(lines, "Instrucoes extras: "+b.AdditionalInstructions)
	}
	lines = append(lines,
		"Retorne apenas JSON valido alinhado ao tipo SiteJSON (sem markdown).",
		siteSchemaDescription,
		"locale: "+locale,
	)
	return strings.Join(lines, "\n")
}

// BuildEditPrompt renders the edit prompt for one section, embedding the
// section's current structure plus the user's instruction.
func BuildEditPrompt(section *domain.SiteSection, instruction string) (string, error) {
	current, err := json.MarshalIndent(section, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode current section: %w", err)
	}

	return strings.Join([]string{
		"Voce e um assistente que atualiza secoes de sites no formato JSON.",
		"Retorne apenas o JSON da secao atualizada, mantendo estrutura e campos existentes.",
		"Secao atual:",
		string(current),
		"Instrucao do usuario:",
		instruction,
	}, "\n"), nil
}

// ParseSiteDocument strictly parses a model response as a full site content
// tree. Parse failure is a hard error, never silently recovered.
func ParseSiteDocument(content string) (*domain.SiteDocument, error) {
	var doc domain.SiteDocument
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &doc); err != nil {
		return nil, domain.Failuref(domain.FailureInvalidOutput, "provider returned invalid site JSON: %v", err)
	}
	if len(doc.Pages) == 0 {
		return nil, domain.Failuref(domain.FailureInvalidOutput, "provider returned site JSON without pages")
	}
	return &doc, nil
}

// MergeSection applies a model-proposed section over the original: every
// key present in the proposal overrides, every omitted key keeps the
// original value. Returns the merged section or an invalid-output failure.
func MergeSection(original *domain.SiteSection, proposal string) (*domain.SiteSection, error) {
	merged := *original
	if err := json.Unmarshal([]byte(stripCodeFence(proposal)), &merged); err != nil {
		return nil, domain.Failuref(domain.FailureInvalidOutput, "provider returned invalid section JSON: %v", err)
	}
	return &merged, nil
}

// stripCodeFence removes a surrounding markdown code fence, which several
// models add despite being told not to.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
