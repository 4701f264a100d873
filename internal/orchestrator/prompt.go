package orchestrator

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/corvid-labs/websearchd/internal/language"
	"github.com/corvid-labs/websearchd/internal/model"
)

// buildAnswerPrompt assembles the ANSWER-stage user message from the
// request's persona/custom/nuance fields, the resolved language entry, the
// outline sub-titles, and the crawled documents, matching the reference's
// answer_prompt.format(...) call shape (persona_prompt, custom_prompt,
// target_language, target_nuance, reference_label, today_date, sub_titles,
// prompt_web_search) but composed the way the teacher's synth package builds
// its user message: a strings.Builder walking one labeled section at a time.
func buildAnswerPrompt(req model.QueryRequest, lang language.Entry, subTitles []string, docs []model.CrawledDoc, now time.Time) string {
	var sb strings.Builder

	persona := strings.TrimSpace(req.PersonaPrompt)
	if persona == "" {
		persona = "N/A"
	}
	custom := strings.TrimSpace(req.CustomPrompt)
	if custom == "" {
		custom = "N/A"
	}
	nuance := strings.TrimSpace(req.TargetNuance)
	if nuance == "" {
		nuance = "Natural"
	}

	sb.WriteString("Persona: ")
	sb.WriteString(persona)
	sb.WriteString("\nAdditional instructions: ")
	sb.WriteString(custom)
	sb.WriteString("\nWrite the answer in: ")
	sb.WriteString(lang.Name)
	sb.WriteString("\nTone/nuance: ")
	sb.WriteString(nuance)
	sb.WriteString("\nToday's date: ")
	sb.WriteString(now.Format("2006-01-02"))

	if len(subTitles) > 0 {
		sb.WriteString("\nSuggested section headings:")
		for _, h := range subTitles {
			sb.WriteString("\n  - ")
			sb.WriteString(h)
		}
	}

	sb.WriteString("\n\nCite sources inline using the label \"")
	sb.WriteString(lang.SourceTag)
	sb.WriteString("\" followed by the source URL.")

	sb.WriteString("\n\nWeb search results (JSON):\n")
	if raw, err := json.Marshal(docs); err == nil {
		sb.Write(raw)
	} else {
		sb.WriteString("[]")
	}

	return sb.String()
}
