package extraction

import (
	"encoding/json"
	"strings"
	"testing"

	"medthread/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObjectVariants(t *testing.T) {
	cases := map[string]string{
		"bare":          `{"a":1}`,
		"fenced":        "```json\n{\"a\":1}\n```",
		"fenced no tag": "```\n{\"a\":1}\n```",
		"prose":         `Sure! Here is the data: {"a":1} Let me know if you need more.`,
		"braces in str": `note {not json} then {"a":"}{"}`,
	}
	for name, in := range cases {
		got, err := ExtractJSONObject(in)
		require.NoError(t, err, name)
		require.True(t, json.Valid([]byte(got)), name)
		require.True(t, strings.HasPrefix(got, "{"), name)
	}

	_, err := ExtractJSONObject("I could not find any medication data.")
	require.ErrorIs(t, err, ErrNoJSONObject)
	_, err = ExtractJSONObject("")
	require.ErrorIs(t, err, ErrNoJSONObject)
}

func TestParseEmptyDrugsStaysEmptyArray(t *testing.T) {
	f, issues, err := Parse(`{"drugs_mentioned": []}`)
	require.NoError(t, err)
	require.Empty(t, issues)
	require.NotNil(t, f.DrugsMentioned)
	require.Empty(t, f.DrugsMentioned)

	b, err := json.Marshal(f)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.JSONEq(t, `[]`, string(raw["drugs_mentioned"]))
	assert.JSONEq(t, `[]`, string(raw["side_effects"]))
}

func TestParseCoercesFieldsAndNullsBadOnes(t *testing.T) {
	raw := "```json\n" + `{
  "summary": "I started Ozempic in March and lost weight.",
  "beginning_weight": {"value": 220, "unit": "LBS", "confidence": "High"},
  "end_weight": {"value": 5000, "unit": "lbs", "confidence": "high"},
  "duration_weeks": "12",
  "cost_per_month": "$1,200",
  "currency": "usd",
  "drugs_mentioned": ["ozempic", "Ozempic", "trt"],
  "primary_drug": "compounded semaglutide",
  "drug_sentiments": {"ozempic": 0.8, "metformin": 1.7},
  "sentiment_pre": 1.5,
  "has_insurance": "yes",
  "side_effects": [{"name": "Nausea", "severity": "Moderate", "confidence": "high"}, {"name": "fatigue", "severity": "awful"}],
  "comorbidities": "PCOS",
  "age": 9,
  "sex": "F",
  "plateau_mentioned": {"nested": true},
  "confidence_score": 0.9,
  "unknown_key": 1
}` + "\n```"
	f, issues, err := Parse(raw)
	require.NoError(t, err)

	require.NotNil(t, f.BeginningWeight)
	assert.Equal(t, models.UnitLbs, f.BeginningWeight.Unit)
	assert.Equal(t, models.ConfidenceHigh, f.BeginningWeight.Confidence)
	assert.Nil(t, f.EndWeight)

	require.NotNil(t, f.DurationWeeks)
	assert.Equal(t, 12, *f.DurationWeeks)
	require.NotNil(t, f.CostPerMonth)
	assert.InDelta(t, 1200.0, *f.CostPerMonth, 1e-9)
	require.NotNil(t, f.Currency)
	assert.Equal(t, "USD", *f.Currency)

	assert.Equal(t, []string{"Ozempic", "Testosterone", "Compounded Semaglutide"}, f.DrugsMentioned)
	assert.Equal(t, map[string]float64{"Ozempic": 0.8}, f.DrugSentiments)
	assert.Nil(t, f.SentimentPre)
	require.NotNil(t, f.HasInsurance)
	assert.True(t, *f.HasInsurance)

	require.Len(t, f.SideEffects, 1)
	assert.Equal(t, "nausea", f.SideEffects[0].Name)
	assert.Equal(t, []string{"pcos"}, f.Comorbidities)

	assert.Nil(t, f.Age)
	require.NotNil(t, f.Sex)
	assert.Equal(t, "female", *f.Sex)
	assert.Nil(t, f.PlateauMentioned)

	fields := make([]string, 0, len(issues))
	for _, is := range issues {
		fields = append(fields, is.Field)
	}
	assert.Contains(t, fields, "plateau_mentioned")
	assert.Contains(t, fields, "age")
	assert.Contains(t, fields, "sentiment_pre")
	assert.Contains(t, fields, "end_weight.value")
	assert.Contains(t, fields, "side_effects[1].severity")
	assert.Contains(t, fields, "drug_sentiments[Metformin]")
}

func TestParseDropsOutOfRangeSentimentWithDottedKey(t *testing.T) {
	f, issues, err := Parse(`{"drug_sentiments": {"ozempic 0.5mg": 7.5, "wegovy": 0.9, "zepbound [2.5mg]": 3}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Wegovy": 0.9}, f.DrugSentiments)

	var sentimentIssues int
	for _, is := range issues {
		if strings.HasPrefix(is.Field, "drug_sentiments[") {
			sentimentIssues++
		}
	}
	assert.Equal(t, 2, sentimentIssues)
}

func TestTopLevel(t *testing.T) {
	cases := map[string][2]string{
		"Features.age":                             {"age", ""},
		"Features.end_weight.value":                {"end_weight", ""},
		"Features.side_effects[2].severity":        {"side_effects", "2"},
		"Features.drug_sentiments[Ozempic 0.5mg]":  {"drug_sentiments", "Ozempic 0.5mg"},
		"Features.drug_sentiments[Zepbound [2.5]]": {"drug_sentiments", "Zepbound [2.5]"},
	}
	for ns, want := range cases {
		field, sel := topLevel(ns)
		assert.Equal(t, want[0], field, ns)
		assert.Equal(t, want[1], sel, ns)
	}
}

func TestParseTopLevelFailure(t *testing.T) {
	_, _, err := Parse(`["not", "an", "object"]`)
	require.Error(t, err)
	_, _, err = Parse(`The post does not discuss medication.`)
	require.Error(t, err)
}

func TestStandardizeDrugName(t *testing.T) {
	cases := map[string]string{
		"ozempic":                "Ozempic",
		"  TRT ":                 "Testosterone",
		"compounded semaglutide": "Compounded Semaglutide",
		"glp1":                   "GLP-1",
		"berberine":              "Berberine",
		"bupropion naltrexone":   "Bupropion Naltrexone",
		"SSRI":                   "SSRI",
		"":                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, StandardizeDrugName(in), in)
	}
	assert.True(t, IsGLP1Drug("mounjaro"))
	assert.False(t, IsGLP1Drug("metformin"))
}

func TestShouldAnnotate(t *testing.T) {
	assert.True(t, ShouldAnnotate("anything at all", "Ozempic"))
	assert.True(t, ShouldAnnotate("Down 20 lbs since starting tirzepatide", "loseit"))
	assert.True(t, ShouldAnnotate("my doctor upped the dose", "CICO"))
	assert.False(t, ShouldAnnotate("Counting calories and walking daily", "loseit"))
	assert.False(t, ShouldAnnotate("the pendulum swings", "PCOS"))
}

func TestBuildUserContentMarksTargetAndIndentsChain(t *testing.T) {
	post := models.SourceItem{ID: "p", Kind: models.KindPost, Title: "Month 3 update", Body: "Down 30 lbs", Community: "Mounjaro"}
	a := models.SourceItem{ID: "a", Kind: models.KindComment, Depth: 1, Body: "Congrats! What dose?"}
	b := models.SourceItem{ID: "b", Kind: models.KindComment, Depth: 2, Body: "7.5mg now", AuthorTag: "SW:250 CW:220"}
	out := BuildUserContent(models.AnnotationContext{Item: b, Post: &post, Ancestors: []models.SourceItem{a}, DroppedAncestors: 2})

	assert.Contains(t, out, "ORIGINAL POST in r/Mounjaro")
	assert.Contains(t, out, "Title: Month 3 update")
	assert.Contains(t, out, "[2 earlier comments omitted]")
	assert.Contains(t, out, "[depth 1] Congrats! What dose?")
	assert.Contains(t, out, "  >>> TARGET COMMENT [depth 2] (flair: SW:250 CW:220) 7.5mg now")

	postOut := BuildUserContent(models.AnnotationContext{Item: post, TopReplies: []models.SourceItem{{Body: "nice", Score: 4}}})
	assert.Contains(t, postOut, "POST in r/Mounjaro")
	assert.Contains(t, postOut, "- [score 4] nice")
}

func TestPromptHashIsStable(t *testing.T) {
	require.Equal(t, PromptHash(), PromptHash())
	require.True(t, strings.HasPrefix(PromptHash(), "annotate_"+PromptVersion+"_"))
}
