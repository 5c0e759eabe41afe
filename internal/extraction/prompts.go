package extraction

import (
	"fmt"
	"strings"

	"medthread/internal/models"
	"medthread/internal/util"
)

const PromptVersion = "v3"

const SystemPrompt = `You analyze Reddit posts and comments about GLP-1 weight loss medications (Ozempic, Wegovy, Mounjaro, Zepbound, semaglutide, tirzepatide, liraglutide and similar).

Write a short first-person summary of the author's experience and extract structured data about their treatment.

Rules:
- Extract only what is explicitly stated. Use null for anything missing. Never guess.
- Author flair often carries structured stats such as "SW:220 CW:180 GW:150 - 7.5mg" or "34F". Prefer flair over body text for weights, age and sex.
- The conversation may include earlier comments for context. Extract data only about the TARGET item's author.
- Weights are objects {"value": number, "unit": "lbs"|"kg", "confidence": "high"|"medium"|"low"}.
- duration_weeks is an integer number of weeks (3 months = 12).
- Scores (drug_sentiments values, sentiment_pre, sentiment_post, recommendation_score, side_effect_resolution, confidence_score) are numbers in [0,1].
- sentiment_pre describes life before the drug and sentiment_post life on it. Do not confuse pre-drug misery with negativity about the drug.
- side_effects are new symptoms caused by the drug; comorbidities are conditions that existed before it.
- Every list field must be present. Use [] when nothing applies.

Return exactly one JSON object with these keys:
{
  "summary": "string, first person, at least 10 characters",
  "beginning_weight": {"value": 0, "unit": "lbs", "confidence": "high"} or null,
  "end_weight": {"value": 0, "unit": "lbs", "confidence": "high"} or null,
  "duration_weeks": integer or null,
  "cost_per_month": number or null,
  "currency": "USD"|"CAD"|"GBP"|"EUR"|"AUD" or null,
  "drugs_mentioned": ["string"],
  "primary_drug": "string" or null,
  "drug_sentiments": {"DrugName": 0.0},
  "sentiment_pre": number or null,
  "sentiment_post": number or null,
  "recommendation_score": number or null,
  "has_insurance": boolean or null,
  "insurance_provider": "string" or null,
  "side_effects": [{"name": "nausea", "severity": "mild"|"moderate"|"severe", "confidence": "high"|"medium"|"low"}],
  "comorbidities": ["string"],
  "location": "string" or null,
  "dosage_progression": "string" or null,
  "exercise_frequency": "string" or null,
  "dietary_changes": "string" or null,
  "previous_weight_loss_attempts": ["string"],
  "drug_source": "brand"|"compounded"|"other" or null,
  "switching_drugs": "string" or null,
  "side_effect_timing": "string" or null,
  "side_effect_resolution": number or null,
  "food_intolerances": ["string"],
  "plateau_mentioned": boolean or null,
  "rebound_weight_gain": boolean or null,
  "labs_improvement": ["string"],
  "medication_reduction": ["string"],
  "nsv_mentioned": ["string"],
  "support_system": "string" or null,
  "pharmacy_access_issues": boolean or null,
  "mental_health_impact": "string" or null,
  "age": integer or null,
  "sex": "male"|"female"|"ftm"|"mtf"|"other" or null,
  "state": "string" or null,
  "country": "string" or null,
  "confidence_score": number
}
Output only the JSON object.`

// PromptHash identifies the instructions a result was produced with.
func PromptHash() string {
	return "annotate_" + PromptVersion + "_" + util.ShortHash(SystemPrompt, 12)
}

// BuildUserContent renders the assembled context as the user message.
func BuildUserContent(actx models.AnnotationContext) string {
	var b strings.Builder
	item := actx.Item
	if item.Kind == models.KindPost {
		fmt.Fprintf(&b, "POST in r/%s\n", item.Community)
		writeItem(&b, item)
		if len(actx.TopReplies) > 0 {
			b.WriteString("\nTOP REPLIES (context only):\n")
			for _, r := range actx.TopReplies {
				fmt.Fprintf(&b, "- [score %d] %s\n", r.Score, oneLine(r.Body))
			}
		}
		return b.String()
	}

	if actx.Post != nil {
		fmt.Fprintf(&b, "ORIGINAL POST in r/%s (context only):\n", actx.Post.Community)
		writeItem(&b, *actx.Post)
		if actx.PostTruncated {
			b.WriteString("[post truncated]\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("CONVERSATION:\n")
	if actx.DroppedAncestors > 0 {
		fmt.Fprintf(&b, "[%d earlier comments omitted]\n", actx.DroppedAncestors)
	}
	for _, a := range actx.Ancestors {
		indent := strings.Repeat("  ", max(a.Depth-1, 0))
		fmt.Fprintf(&b, "%s[depth %d]%s %s\n", indent, a.Depth, flair(a), oneLine(a.Body))
	}
	indent := strings.Repeat("  ", max(item.Depth-1, 0))
	fmt.Fprintf(&b, "%s>>> TARGET COMMENT [depth %d]%s %s\n", indent, item.Depth, flair(item), oneLine(item.Body))
	return b.String()
}

func writeItem(b *strings.Builder, it models.SourceItem) {
	if it.Title != "" {
		fmt.Fprintf(b, "Title: %s\n", it.Title)
	}
	if it.AuthorTag != "" {
		fmt.Fprintf(b, "Author flair: %s\n", it.AuthorTag)
	}
	if it.Body != "" {
		fmt.Fprintf(b, "Body:\n%s\n", it.Body)
	}
}

func flair(it models.SourceItem) string {
	if it.AuthorTag == "" {
		return ""
	}
	return " (flair: " + it.AuthorTag + ")"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
