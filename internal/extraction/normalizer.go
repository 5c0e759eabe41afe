package extraction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"medthread/internal/models"
)

var ws = regexp.MustCompile(`\s+`)

// drugAliases maps a lowercased variant to its canonical display name.
var drugAliases = map[string]string{
	"ozempic": "Ozempic", "wegovy": "Wegovy", "rybelsus": "Rybelsus",
	"mounjaro": "Mounjaro", "zepbound": "Zepbound",
	"saxenda": "Saxenda", "victoza": "Victoza", "trulicity": "Trulicity",
	"semaglutide": "Semaglutide", "sema": "Semaglutide",
	"tirzepatide": "Tirzepatide", "tirz": "Tirzepatide",
	"liraglutide": "Liraglutide", "dulaglutide": "Dulaglutide", "retatrutide": "Retatrutide",
	"compounded semaglutide": "Compounded Semaglutide", "compound semaglutide": "Compounded Semaglutide",
	"compounded tirzepatide": "Compounded Tirzepatide", "compound tirzepatide": "Compounded Tirzepatide",
	"compounded glp-1": "Compounded GLP-1", "compounded glp1": "Compounded GLP-1",
	"glp-1": "GLP-1", "glp1": "GLP-1", "glp 1": "GLP-1",
	"metformin": "Metformin",
	"testosterone": "Testosterone", "trt": "Testosterone", "testosterone replacement therapy": "Testosterone",
	"tren": "Trenbolone", "trenbolone": "Trenbolone",
	"inositol": "Inositol", "spironolactone": "Spironolactone", "mirtazapine": "Mirtazapine",
	"levothyroxine": "Levothyroxine", "phentermine": "Phentermine",
	"galvusmet": "Galvusmet", "clomid": "Clomid",
	"hrt": "HRT", "dexcom": "Dexcom",
}

var glp1Drugs = map[string]struct{}{
	"Ozempic": {}, "Wegovy": {}, "Rybelsus": {}, "Mounjaro": {}, "Zepbound": {},
	"Saxenda": {}, "Victoza": {}, "Trulicity": {}, "Semaglutide": {}, "Tirzepatide": {},
	"Liraglutide": {}, "Dulaglutide": {}, "Retatrutide": {}, "Compounded Semaglutide": {},
	"Compounded Tirzepatide": {}, "Compounded GLP-1": {}, "GLP-1": {},
}

// StandardizeDrugName maps known variants to one display name and title-cases
// anything unknown.
func StandardizeDrugName(name string) string {
	name = ws.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" {
		return ""
	}
	if canon, ok := drugAliases[strings.ToLower(name)]; ok {
		return canon
	}
	if strings.ToUpper(name) == name && len(name) <= 4 {
		return name
	}
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func IsGLP1Drug(name string) bool {
	_, ok := glp1Drugs[StandardizeDrugName(name)]
	return ok
}

var sexAliases = map[string]string{
	"m": "male", "man": "male", "male": "male",
	"f": "female", "woman": "female", "female": "female",
	"ftm": "ftm", "trans man": "ftm", "mtf": "mtf", "trans woman": "mtf",
	"non-binary": "other", "nonbinary": "other", "nb": "other", "other": "other",
}

// Normalize canonicalises casing and enums before validation: drug names are
// standardized and deduplicated, other list values lowercased, empty strings
// become null.
func Normalize(f *models.Features) {
	if f == nil {
		return
	}
	f.EnsureLists()

	f.DrugsMentioned = dedupe(mapStrings(f.DrugsMentioned, StandardizeDrugName))
	if f.PrimaryDrug != nil {
		p := StandardizeDrugName(*f.PrimaryDrug)
		f.PrimaryDrug = &p
	}
	if len(f.DrugSentiments) > 0 {
		out := make(map[string]float64, len(f.DrugSentiments))
		for k, v := range f.DrugSentiments {
			if k = StandardizeDrugName(k); k != "" {
				out[k] = v
			}
		}
		f.DrugSentiments = out
	}
	if f.PrimaryDrug != nil && *f.PrimaryDrug != "" && !contains(f.DrugsMentioned, *f.PrimaryDrug) {
		f.DrugsMentioned = append(f.DrugsMentioned, *f.PrimaryDrug)
	}

	f.Comorbidities = dedupe(mapStrings(f.Comorbidities, lowerTrim))
	f.PreviousWeightLossAttempts = dedupe(mapStrings(f.PreviousWeightLossAttempts, lowerTrim))
	f.FoodIntolerances = dedupe(mapStrings(f.FoodIntolerances, lowerTrim))
	f.LabsImprovement = dedupe(mapStrings(f.LabsImprovement, lowerTrim))
	f.MedicationReduction = dedupe(mapStrings(f.MedicationReduction, lowerTrim))
	f.NSVMentioned = dedupe(mapStrings(f.NSVMentioned, lowerTrim))

	effects := f.SideEffects[:0]
	for _, se := range f.SideEffects {
		se.Name = lowerTrim(se.Name)
		if se.Name == "" {
			continue
		}
		if se.Severity != nil {
			s := models.Severity(lowerTrim(string(*se.Severity)))
			se.Severity = &s
			if s == "" {
				se.Severity = nil
			}
		}
		se.Confidence = models.Confidence(lowerTrim(string(se.Confidence)))
		effects = append(effects, se)
	}
	f.SideEffects = effects

	for _, w := range []*models.Weight{f.BeginningWeight, f.EndWeight} {
		if w == nil {
			continue
		}
		w.Unit = models.WeightUnit(lowerTrim(string(w.Unit)))
		switch w.Unit {
		case "lb", "pounds", "pound":
			w.Unit = models.UnitLbs
		case "kgs", "kilograms", "kilogram":
			w.Unit = models.UnitKg
		}
		w.Confidence = models.Confidence(lowerTrim(string(w.Confidence)))
	}

	f.Currency = normalizeString(f.Currency, strings.ToUpper)
	f.DrugSource = normalizeString(f.DrugSource, strings.ToLower)
	f.Sex = normalizeString(f.Sex, func(s string) string {
		s = strings.ToLower(s)
		if canon, ok := sexAliases[s]; ok {
			return canon
		}
		return s
	})
	for _, p := range []**string{
		&f.Summary, &f.InsuranceProvider, &f.Location, &f.DosageProgression, &f.ExerciseFrequency,
		&f.DietaryChanges, &f.SwitchingDrugs, &f.SideEffectTiming, &f.SupportSystem,
		&f.MentalHealthImpact, &f.State, &f.Country, &f.PrimaryDrug,
	} {
		*p = normalizeString(*p, func(s string) string { return s })
	}
}

func normalizeString(p *string, fn func(string) string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	s = fn(s)
	return &s
}

func lowerTrim(s string) string {
	return ws.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func mapStrings(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := fn(s); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
