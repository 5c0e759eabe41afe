package extraction

import (
	"regexp"
	"sort"
	"strings"
)

var drugKeywords = []string{
	"ozempic", "wegovy", "rybelsus", "mounjaro", "zepbound", "victoza", "saxenda",
	"trulicity", "byetta", "bydureon", "adlyxin",
	"semaglutide", "tirzepatide", "liraglutide", "dulaglutide", "exenatide", "lixisenatide",
	"sema", "tirz", "lira", "glp-1", "glp1", "glp 1",
	"compound", "compounded", "compounding", "peptide", "peptides",
	"drug", "drugs", "medication", "medications", "meds", "medicine", "medicines",
	"weight loss drug", "weight-loss drug", "weight loss medication", "weight loss injection",
	"appetite suppressant", "appetite suppressants",
	"injection", "injections", "injectable", "pen", "pens",
	"dose", "doses", "dosage", "mg",
	"prescription", "prescribed", "prescribe", "doctor", "endocrinologist",
	"diabetes", "diabetic", "t2d", "type 2", "a1c", "hba1c", "blood sugar", "glucose",
	"nausea", "vomiting", "constipation", "diarrhea", "sulfur burp", "sulfur burps",
	"gastroparesis", "thyroid", "pancreatitis", "food noise",
}

// nonDrugCommunities hold general weight-loss discussion; only content that
// mentions medication is worth annotating there.
var nonDrugCommunities = map[string]struct{}{
	"loseit": {}, "progresspics": {}, "intermittentfasting": {}, "1200isplenty": {},
	"1500isplenty": {}, "fasting": {}, "cico": {}, "pcos": {}, "brogress": {},
	"diabetes": {}, "diabetes_t2": {}, "obesity": {}, "supermorbidlyobese": {},
}

var keywordPattern = compileKeywords(drugKeywords)

func compileKeywords(words []string) *regexp.Regexp {
	sorted := append([]string{}, words...)
	// longest first so multi-word phrases win over their prefixes
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// ShouldAnnotate reports whether content from community is worth an annotation
// call. Medication-specific communities always pass.
func ShouldAnnotate(content, community string) bool {
	if !IsNonDrugCommunity(community) {
		return true
	}
	return keywordPattern.MatchString(content)
}

func IsNonDrugCommunity(community string) bool {
	_, ok := nonDrugCommunities[strings.ToLower(strings.TrimSpace(community))]
	return ok
}
