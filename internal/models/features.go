package models

type WeightUnit string

const (
	UnitLbs WeightUnit = "lbs"
	UnitKg  WeightUnit = "kg"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

type Weight struct {
	Value      float64    `json:"value" validate:"gt=0,lte=1000"`
	Unit       WeightUnit `json:"unit" validate:"oneof=lbs kg"`
	Confidence Confidence `json:"confidence" validate:"oneof=high medium low"`
}

type SideEffect struct {
	Name       string     `json:"name" validate:"required"`
	Severity   *Severity  `json:"severity" validate:"omitempty,oneof=mild moderate severe"`
	Confidence Confidence `json:"confidence" validate:"omitempty,oneof=high medium low"`
}

// Features is the typed extraction schema. Scalars are nullable; every list and
// map is non-nil after EnsureLists so it serializes as [] or {}.
type Features struct {
	Summary         *string  `json:"summary" validate:"omitempty,min=10"`
	BeginningWeight *Weight  `json:"beginning_weight" validate:"omitempty"`
	EndWeight       *Weight  `json:"end_weight" validate:"omitempty"`
	DurationWeeks   *int     `json:"duration_weeks" validate:"omitempty,gte=0,lte=520"`
	CostPerMonth    *float64 `json:"cost_per_month" validate:"omitempty,gte=0,lte=10000"`
	Currency        *string  `json:"currency" validate:"omitempty,oneof=USD CAD GBP EUR AUD"`

	DrugsMentioned      []string           `json:"drugs_mentioned"`
	PrimaryDrug         *string            `json:"primary_drug"`
	DrugSentiments      map[string]float64 `json:"drug_sentiments" validate:"dive,gte=0,lte=1"`
	SentimentPre        *float64           `json:"sentiment_pre" validate:"omitempty,gte=0,lte=1"`
	SentimentPost       *float64           `json:"sentiment_post" validate:"omitempty,gte=0,lte=1"`
	RecommendationScore *float64           `json:"recommendation_score" validate:"omitempty,gte=0,lte=1"`

	HasInsurance      *bool   `json:"has_insurance"`
	InsuranceProvider *string `json:"insurance_provider"`

	SideEffects                []SideEffect `json:"side_effects" validate:"dive"`
	Comorbidities              []string     `json:"comorbidities"`
	Location                   *string      `json:"location"`
	DosageProgression          *string      `json:"dosage_progression"`
	ExerciseFrequency          *string      `json:"exercise_frequency"`
	DietaryChanges             *string      `json:"dietary_changes"`
	PreviousWeightLossAttempts []string     `json:"previous_weight_loss_attempts"`

	DrugSource           *string  `json:"drug_source" validate:"omitempty,oneof=brand compounded other"`
	SwitchingDrugs       *string  `json:"switching_drugs"`
	SideEffectTiming     *string  `json:"side_effect_timing"`
	SideEffectResolution *float64 `json:"side_effect_resolution" validate:"omitempty,gte=0,lte=1"`
	FoodIntolerances     []string `json:"food_intolerances"`

	PlateauMentioned  *bool `json:"plateau_mentioned"`
	ReboundWeightGain *bool `json:"rebound_weight_gain"`

	LabsImprovement      []string `json:"labs_improvement"`
	MedicationReduction  []string `json:"medication_reduction"`
	NSVMentioned         []string `json:"nsv_mentioned"`
	SupportSystem        *string  `json:"support_system"`
	PharmacyAccessIssues *bool    `json:"pharmacy_access_issues"`
	MentalHealthImpact   *string  `json:"mental_health_impact"`

	Age     *int    `json:"age" validate:"omitempty,gte=13,lte=120"`
	Sex     *string `json:"sex" validate:"omitempty,oneof=male female ftm mtf other"`
	State   *string `json:"state"`
	Country *string `json:"country"`

	ConfidenceScore *float64 `json:"confidence_score" validate:"omitempty,gte=0,lte=1"`
}

// EnsureLists replaces nil collections with empty ones.
func (f *Features) EnsureLists() {
	if f == nil {
		return
	}
	f.DrugsMentioned = nonNil(f.DrugsMentioned)
	f.Comorbidities = nonNil(f.Comorbidities)
	f.PreviousWeightLossAttempts = nonNil(f.PreviousWeightLossAttempts)
	f.FoodIntolerances = nonNil(f.FoodIntolerances)
	f.LabsImprovement = nonNil(f.LabsImprovement)
	f.MedicationReduction = nonNil(f.MedicationReduction)
	f.NSVMentioned = nonNil(f.NSVMentioned)
	if f.SideEffects == nil {
		f.SideEffects = []SideEffect{}
	}
	if f.DrugSentiments == nil {
		f.DrugSentiments = map[string]float64{}
	}
}

// NewFeatures returns an empty record with every collection initialised.
func NewFeatures() *Features {
	f := &Features{}
	f.EnsureLists()
	return f
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
