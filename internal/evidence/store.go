package evidence

import (
	"fmt"
	"strings"

	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
)

// Document is one curated clinical reference record. Kept schemaless so the
// corpus mirrors the source documents; deterministic consumers read known
// string fields through Str.
type Document map[string]any

// Str returns a string field or "" when absent or differently typed.
func (d Document) Str(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Retrieval is the result of one lookup against a collection. Side-effect
// free; an empty result set is a normal outcome.
type Retrieval struct {
	Query            string
	Collection       config.KnowledgeSource
	Results          []Document
	NumResults       int
	ConfidenceScores []float64
}

// Store is the in-process curated evidence corpus.
type Store struct {
	docs map[config.KnowledgeSource][]Document
}

func NewStore() *Store {
	return &Store{docs: map[config.KnowledgeSource][]Document{
		config.SourceESIHandbook:           esiHandbook(),
		config.SourceACSProtocols:          acsProtocols(),
		config.SourceSepsisCriteria:        sepsisCriteria(),
		config.SourceVitalRanges:           vitalRanges(),
		config.SourceLabIndications:        labIndications(),
		config.SourceDifferentialDiagnosis: differentials(),
	}}
}

func retrieval(src config.KnowledgeSource, query string, results []Document, total int, score float64) Retrieval {
	scores := make([]float64, len(results))
	for i := range scores {
		scores[i] = score
	}
	return Retrieval{
		Query:            query,
		Collection:       src,
		Results:          results,
		NumResults:       total,
		ConfidenceScores: scores,
	}
}

func capDocs(docs []Document, max int) []Document {
	if max > 0 && len(docs) > max {
		return docs[:max]
	}
	return docs
}

// ESICriteria returns handbook entries for an acuity level, optionally
// narrowed by a condition keyword.
func (s *Store) ESICriteria(level int, condition string, max int) Retrieval {
	query := fmt.Sprintf("ESI-%d criteria", level)
	if condition != "" {
		query += " for " + condition
	}

	var results []Document
	for _, doc := range s.docs[config.SourceESIHandbook] {
		if lvl, ok := doc["level"].(int); ok && lvl == level {
			results = append(results, doc)
			continue
		}
		if condition != "" && strings.Contains(strings.ToLower(fmt.Sprint(doc)), strings.ToLower(condition)) {
			results = append(results, doc)
		}
	}
	return retrieval(config.SourceESIHandbook, query, capDocs(results, max), len(results), 0.95)
}

// VitalNorms returns the age-banded normal ranges for an age.
func (s *Store) VitalNorms(age int, max int) Retrieval {
	band := AgeGroup(age)
	var results []Document
	for _, doc := range s.docs[config.SourceVitalRanges] {
		if strings.Contains(strings.ToLower(doc.Str("age_group")), strings.ToLower(band)) {
			results = append(results, doc)
		}
	}
	return retrieval(config.SourceVitalRanges, "Normal vital signs for "+band, capDocs(results, max), len(results), 0.98)
}

// LabIndications returns indication/interpretation entries for a lab test.
func (s *Store) LabIndications(test string, max int) Retrieval {
	var results []Document
	for _, doc := range s.docs[config.SourceLabIndications] {
		if strings.Contains(strings.ToLower(doc.Str("test")), strings.ToLower(test)) {
			results = append(results, doc)
		}
	}
	return retrieval(config.SourceLabIndications,
		"Indications and interpretation for "+test, capDocs(results, max), len(results), 0.92)
}

// Differentials returns the differential-diagnosis list for a chief complaint.
func (s *Store) Differentials(chiefComplaint string, max int) Retrieval {
	var results []Document
	for _, doc := range s.docs[config.SourceDifferentialDiagnosis] {
		if strings.Contains(strings.ToLower(doc.Str("chief_complaint")), strings.ToLower(chiefComplaint)) {
			results = append(results, doc)
		}
	}
	return retrieval(config.SourceDifferentialDiagnosis,
		"Differential diagnosis for "+chiefComplaint, capDocs(results, max), len(results), 0.88)
}

// ACSProtocols returns the acute coronary syndrome workup protocols.
func (s *Store) ACSProtocols(max int) Retrieval {
	docs := s.docs[config.SourceACSProtocols]
	return retrieval(config.SourceACSProtocols, "ACS protocols", capDocs(docs, max), len(docs), 0.9)
}

// SepsisCriteria returns sepsis recognition criteria and workup guidelines.
func (s *Store) SepsisCriteria(max int) Retrieval {
	docs := s.docs[config.SourceSepsisCriteria]
	return retrieval(config.SourceSepsisCriteria, "Sepsis criteria", capDocs(docs, max), len(docs), 0.9)
}

// AgeGroup maps an age in whole years to the corpus age band.
func AgeGroup(age int) string {
	switch {
	case age < 1:
		return "Infant 0-3 months"
	case age < 3:
		return "Toddler 1-2 years"
	case age < 7:
		return "Child 3-6 years"
	case age < 12:
		return "Child 7-11 years"
	case age < 18:
		return "Adolescent 12+ years"
	case age < 65:
		return "Adult 18-65 years"
	default:
		return "Geriatric 65+ years"
	}
}

func esiHandbook() []Document {
	return []Document{
		{
			"id":         "esi_1_definition",
			"level":      1,
			"name":       "Resuscitation",
			"definition": "Patient requires immediate life-saving intervention (intubation, defibrillation, emergency medications)",
			"examples":   []string{"Unresponsive", "Severe respiratory distress", "Shock", "Severe trauma"},
		},
		{
			"id":         "esi_2_definition",
			"level":      2,
			"name":       "Emergency",
			"definition": "High-risk situations requiring immediate physician evaluation and room assignment",
			"red_flags": []string{
				"Severe pain",
				"Altered mental status",
				"Hemodynamic instability",
				"Severe respiratory distress",
				"Acute vision loss",
				"Chest or abdominal pain in high-risk patient",
				"Acute hemorrhage",
			},
		},
		{
			"id":             "esi_2_chest_pain",
			"level":          2,
			"condition":      "Chest Pain",
			"criteria":       "Any patient with chest pain and high-risk features (age >40, known CAD, SOB, diaphoresis, risk factors)",
			"required_tests": []string{"ECG", "Troponin", "CXR"},
			"source":         "ESI Handbook + ACC/AHA ACS Guidelines",
		},
		{
			"id":         "esi_3_definition",
			"level":      3,
			"name":       "Urgent",
			"definition": "Patient with multiple resources needed or semicritical condition",
			"criteria":   "Requires 2+ resources; hemodynamically stable; non-severe presentations",
		},
		{
			"id":         "esi_4_definition",
			"level":      4,
			"name":       "Less Urgent",
			"definition": "Patient who may require 1 resource",
			"examples":   []string{"Single lab test", "Single imaging study", "Wound care"},
		},
		{
			"id":         "esi_5_definition",
			"level":      5,
			"name":       "Minimal",
			"definition": "Patient with no resources needed",
			"criteria":   "No workup, observation, or interventions required",
		},
		{
			"id":      "esi_resource_discrimination",
			"title":   "ESI Resource Discrimination Rules",
			"content": "0 resources -> ESI-5, 1 resource -> ESI-4, 2+ resources -> ESI-3 (unless ESI-2 by other criteria)",
		},
	}
}

func acsProtocols() []Document {
	return []Document{
		{
			"id":   "timi_score",
			"name": "TIMI Risk Score for UA/NSTEMI",
			"components": []string{
				"Age >=65 years (1)",
				">=3 CAD risk factors (1)",
				"Known CAD (1)",
				"ASA use in past 7 days (1)",
				"Severe angina, >=2 episodes in 24h (1)",
				"ST changes (1)",
				"Elevated cardiac biomarkers (1)",
			},
			"risk_stratification": map[string]any{
				"0-1": "5% risk at 14 days (consider discharge)",
				"2-4": "Intermediate risk (admission likely)",
				">=5": "High risk (admission + aggressive management)",
			},
		},
		{
			"id":   "heart_score",
			"name": "HEART Score for Major Cardiac Events",
			"components": []string{
				"History, typical chest pain (0-2)",
				"EKG changes (0-2)",
				"Age (0-2)",
				"Risk factors: smoking, HTN, HC, DM, family Hx (0-2)",
				"Troponin elevation (0-3)",
			},
			"risk_categories": map[string]any{
				"0-3": "0.9-1.7% MACE (discharge candidate)",
				"4-6": "12-16.6% MACE (admission advised)",
				">=7": "50-65% MACE (early invasive measures)",
			},
		},
		{
			"id":               "acs_workup",
			"title":            "ACS Workup Protocol",
			"stat_tests":       []string{"12-lead ECG (within 10 min)", "Troponin (STAT)"},
			"concurrent_tests": []string{"CBC", "CMP", "Coagulation studies"},
			"imaging":          []string{"CXR (rule out other causes)"},
			"monitoring":       "Continuous cardiac monitoring for ischemic changes",
		},
	}
}

func sepsisCriteria() []Document {
	return []Document{
		{
			"id":         "sepsis_3_definition",
			"title":      "Sepsis-3 Definition (JAMA 2016)",
			"definition": "Life-threatening organ dysfunction due to dysregulated host response to infection",
			"key_change": "Moved away from SIRS criteria to organ dysfunction focus",
		},
		{
			"id":   "qsofa_score",
			"name": "Quick Sequential Organ Failure Assessment (qSOFA)",
			"components": []string{
				"Altered mentation (1)",
				"Systolic BP <=100 mmHg (1)",
				"Respiratory rate >=22 (1)",
			},
			"interpretation": map[string]any{
				">=2":  "Higher mortality risk in ED setting",
				"note": "Low qSOFA does NOT exclude sepsis (poor sensitivity)",
			},
		},
		{
			"id":       "phoenix_criteria_pediatric",
			"title":    "Phoenix Sepsis Criteria for Children (2024 Update)",
			"replaces": "2005 SIRS criteria",
			"components": []string{
				"Temperature", "Respiratory rate", "Oxygen requirement",
				"Systolic BP", "Lactate", "Behavior",
			},
			"interpretation": "Phoenix score >=2 = sepsis, with shock if cardiovascular dysfunction present",
		},
		{
			"id":    "sepsis_workup",
			"title": "Sepsis Workup Protocol",
			"stat_actions": []string{
				"Blood cultures (before antibiotics)",
				"Lactate level",
				"CBC, CMP, coagulation",
				"Source imaging (CXR, imaging of suspected source)",
				"Early broad-spectrum antibiotics",
			},
			"goal": "Lactate clearance <10% or normalization within 6 hours",
		},
	}
}

func vitalRanges() []Document {
	return []Document{
		{
			"age_group":   "Infant 0-3 months",
			"hr_normal":   "100-160 bpm",
			"sbp_normal":  "50-70 mmHg",
			"rr_normal":   "30-40",
			"temp_normal": "97-99F",
		},
		{
			"age_group":   "Infant 3-6 months",
			"hr_normal":   "100-160 bpm",
			"sbp_normal":  "60-80 mmHg",
			"rr_normal":   "25-40",
			"temp_normal": "97-99F",
		},
		{
			"age_group":   "Infant 6-12 months",
			"hr_normal":   "80-120 bpm",
			"sbp_normal":  "70-100 mmHg",
			"rr_normal":   "25-35",
			"temp_normal": "98-99F",
		},
		{
			"age_group":   "Toddler 1-2 years",
			"hr_normal":   "80-130 bpm",
			"sbp_normal":  "80-110 mmHg",
			"rr_normal":   "20-30",
			"temp_normal": "98-99F",
		},
		{
			"age_group":   "Child 3-6 years",
			"hr_normal":   "70-110 bpm",
			"sbp_normal":  "80-110 mmHg",
			"rr_normal":   "20-25",
			"temp_normal": "98-99F",
		},
		{
			"age_group":   "Child 7-11 years",
			"hr_normal":   "70-110 bpm",
			"sbp_normal":  "90-130 mmHg",
			"rr_normal":   "18-22",
			"temp_normal": "98.6F",
		},
		{
			"age_group":   "Adolescent 12+ years",
			"hr_normal":   "60-100 bpm",
			"sbp_normal":  "110-140 mmHg",
			"rr_normal":   "12-20",
			"temp_normal": "98.6F",
		},
		{
			"age_group":   "Adult 18-65 years",
			"hr_normal":   "60-100 bpm",
			"sbp_normal":  "<120 mmHg",
			"rr_normal":   "12-20",
			"temp_normal": "98.6F",
			"note":        "SBP 120-140 considered elevated; 140+ is hypertension Stage 1",
		},
		{
			"age_group":   "Geriatric 65+ years",
			"hr_normal":   "60-100 bpm (may be blunted)",
			"sbp_normal":  "Up to 150/90 mmHg often acceptable",
			"rr_normal":   "12-20",
			"temp_normal": "97-98F (lower baseline common)",
			"note":        "Assess for ACUTE change from baseline, not absolute values",
		},
	}
}

func labIndications() []Document {
	return []Document{
		{
			"test":           "Troponin (high-sensitivity)",
			"indications":    []string{"Chest pain", "Dyspnea", "Syncope", "Hemodynamic instability"},
			"interpretation": ">99th percentile = concerning for MI",
			"esi_relevance":  "Normal troponin helps rule out ACS; ESI-3 if negative in low-risk",
		},
		{
			"test":          "CBC",
			"indications":   []string{"Infection suspected", "Anemia", "Bleeding", "Shock"},
			"red_flags":     []string{"WBC >11K or <4K", "Hemoglobin <10", "Platelets <100K"},
			"esi_relevance": "Abnormalities often require admission (ESI-3)",
		},
		{
			"test":           "Lactate",
			"indications":    []string{"Sepsis", "Shock", "Multi-trauma", "Altered mental status"},
			"interpretation": ">2 mmol/L abnormal; >4 mmol/L severe",
			"esi_relevance":  "Elevated lactate = potential ESI-2 (shock concern)",
		},
		{
			"test":          "D-dimer",
			"indications":   []string{"PE/DVT rule-out", "Wells score <2"},
			"caveat":        "Highly sensitive but low specificity; don't order for low-risk presentations",
			"esi_relevance": "Normal D-dimer may allow lower ESI if PE risk low",
		},
		{
			"test":           "Procalcitonin",
			"indications":    []string{"Sepsis risk stratification", "Bacterial infection suspected"},
			"interpretation": "Emerging marker; >0.5 ng/mL suggests bacterial infection",
			"esi_relevance":  "May help stratify sepsis risk (ESI-2 vs ESI-3)",
		},
	}
}

func differentials() []Document {
	diff := func(dx string, p float64, sev string) Document {
		return Document{"diagnosis": dx, "probability": p, "severity": sev}
	}
	return []Document{
		{
			"chief_complaint": "Chest Pain",
			"differentials": []Document{
				diff("Acute Coronary Syndrome", 0.35, "HIGH"),
				diff("Pulmonary Embolism", 0.15, "HIGH"),
				diff("Aortic Dissection", 0.05, "HIGH"),
				diff("Pneumothorax", 0.10, "MODERATE"),
				diff("Pneumonia", 0.15, "MODERATE"),
				diff("Musculoskeletal", 0.15, "LOW"),
				diff("GERD/Reflux", 0.05, "LOW"),
			},
		},
		{
			"chief_complaint": "Dyspnea",
			"differentials": []Document{
				diff("CHF exacerbation", 0.25, "HIGH"),
				diff("COPD exacerbation", 0.20, "HIGH"),
				diff("Pneumonia", 0.20, "MODERATE"),
				diff("Pulmonary Embolism", 0.15, "HIGH"),
				diff("Asthma exacerbation", 0.10, "MODERATE"),
				diff("Anaphylaxis", 0.05, "HIGH"),
				diff("Pneumothorax", 0.05, "MODERATE"),
			},
		},
		{
			"chief_complaint": "Altered Mental Status",
			"differentials": []Document{
				diff("Sepsis/Infection", 0.20, "HIGH"),
				diff("Intoxication", 0.25, "MODERATE"),
				diff("Hypoglycemia", 0.10, "HIGH"),
				diff("Stroke/CVA", 0.15, "HIGH"),
				diff("Encephalopathy", 0.15, "HIGH"),
				diff("Medication effect", 0.10, "MODERATE"),
				diff("Psychiatric", 0.05, "LOW"),
			},
		},
	}
}
