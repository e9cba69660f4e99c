package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

// KnowledgeSource names a curated document collection in the evidence store.
type KnowledgeSource string

const (
	SourceESIHandbook           KnowledgeSource = "esi_handbook"
	SourceACSProtocols          KnowledgeSource = "acs_protocols"
	SourceSepsisCriteria        KnowledgeSource = "sepsis_criteria"
	SourceVitalRanges           KnowledgeSource = "vital_ranges"
	SourceLabIndications        KnowledgeSource = "lab_indications"
	SourceDifferentialDiagnosis KnowledgeSource = "differential_diagnosis"
	SourceMedicalOntology       KnowledgeSource = "medical_ontology"
)

// LayerConfig controls evidence retrieval for a single pipeline stage.
type LayerConfig struct {
	LayerName           string            `json:"layer_name"`
	Enabled             bool              `json:"enabled"`
	KnowledgeSources    []KnowledgeSource `json:"knowledge_sources"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	MaxResults          int               `json:"max_results"`
	UseVectorBackend    bool              `json:"use_vector_db"`
	Description         string            `json:"description,omitempty"`
}

// AllowsSource reports whether the layer's whitelist contains the source.
func (l *LayerConfig) AllowsSource(src KnowledgeSource) bool {
	for _, s := range l.KnowledgeSources {
		if s == src {
			return true
		}
	}
	return false
}

// GlobalSettings holds system-wide evidence and accounting toggles.
type GlobalSettings struct {
	EnableRAGGlobally   bool `json:"enable_rag_globally"`
	LogRAGUsage         bool `json:"log_rag_usage"`
	TrackRAGAccuracy    bool `json:"track_rag_accuracy"`
	RAGTimeoutSeconds   int  `json:"rag_response_timeout_seconds"`
	VectorDBEnabled     bool `json:"vector_db_enabled"`
	CostTrackingEnabled bool `json:"cost_tracking_enabled"`
	DebugMode           bool `json:"debug_mode"`
}

// SystemConfig is the full per-stage configuration document. Stage numbers
// are fixed: 1 sanity check, 2 extraction, 3 red flag detection, 4 vital
// signal assessment, 5 resource inference, 6 handbook verification,
// 7 final decision.
type SystemConfig struct {
	SanityCheck          LayerConfig    `json:"layer_1_sanity_check"`
	Extraction           LayerConfig    `json:"layer_2_extraction"`
	RedFlagDetection     LayerConfig    `json:"layer_3_red_flag_detection"`
	VitalSignalAssess    LayerConfig    `json:"layer_4_vital_signal_assessment"`
	ResourceInference    LayerConfig    `json:"layer_5_resource_inference"`
	HandbookVerification LayerConfig    `json:"layer_6_handbook_verification"`
	FinalDecision        LayerConfig    `json:"layer_7_final_decision"`
	Global               GlobalSettings `json:"global_settings"`
}

// Layer returns the configuration for a stage number 1-7, or nil when the
// number is out of range.
func (c *SystemConfig) Layer(n int) *LayerConfig {
	switch n {
	case 1:
		return &c.SanityCheck
	case 2:
		return &c.Extraction
	case 3:
		return &c.RedFlagDetection
	case 4:
		return &c.VitalSignalAssess
	case 5:
		return &c.ResourceInference
	case 6:
		return &c.HandbookVerification
	case 7:
		return &c.FinalDecision
	default:
		return nil
	}
}

// DefaultSystemConfig returns the canonical configuration used when no
// persisted document exists.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		SanityCheck: LayerConfig{
			LayerName:           "Sanity Check",
			Enabled:             false,
			KnowledgeSources:    []KnowledgeSource{},
			ConfidenceThreshold: 0.7,
			MaxResults:          3,
			Description:         "Input validation - no RAG needed",
		},
		Extraction: LayerConfig{
			LayerName:           "Extraction",
			Enabled:             true,
			KnowledgeSources:    []KnowledgeSource{SourceMedicalOntology},
			ConfidenceThreshold: 0.8,
			MaxResults:          1,
			Description:         "Normalize medical terminology and extract structured data",
		},
		RedFlagDetection: LayerConfig{
			LayerName: "Red Flag Detection",
			Enabled:   true,
			KnowledgeSources: []KnowledgeSource{
				SourceESIHandbook, SourceACSProtocols, SourceSepsisCriteria, SourceDifferentialDiagnosis,
			},
			ConfidenceThreshold: 0.85,
			MaxResults:          5,
			Description:         "Detect ESI-2 criteria using handbook and clinical guidelines",
		},
		VitalSignalAssess: LayerConfig{
			LayerName:           "Vital Signal Assessment",
			Enabled:             true,
			KnowledgeSources:    []KnowledgeSource{SourceVitalRanges},
			ConfidenceThreshold: 0.9,
			MaxResults:          1,
			Description:         "Age-aware vital sign interpretation using clinical norms",
		},
		ResourceInference: LayerConfig{
			LayerName: "Resource Inference",
			Enabled:   true,
			KnowledgeSources: []KnowledgeSource{
				SourceESIHandbook, SourceACSProtocols, SourceLabIndications,
			},
			ConfidenceThreshold: 0.8,
			MaxResults:          10,
			Description:         "Infer required resources using clinical protocols",
		},
		HandbookVerification: LayerConfig{
			LayerName:           "Handbook Verification",
			Enabled:             true,
			KnowledgeSources:    []KnowledgeSource{SourceESIHandbook},
			ConfidenceThreshold: 0.85,
			MaxResults:          5,
			Description:         "Verify ESI decision against official handbook",
		},
		FinalDecision: LayerConfig{
			LayerName:           "Final Decision",
			Enabled:             true,
			KnowledgeSources:    []KnowledgeSource{SourceESIHandbook},
			ConfidenceThreshold: 0.75,
			MaxResults:          2,
			Description:         "Format final ESI decision with handbook reasoning",
		},
		Global: GlobalSettings{
			EnableRAGGlobally:   true,
			LogRAGUsage:         true,
			TrackRAGAccuracy:    true,
			RAGTimeoutSeconds:   5,
			VectorDBEnabled:     false,
			CostTrackingEnabled: true,
			DebugMode:           false,
		},
	}
}

// LayerManager reads and writes the layer configuration document. The
// pipeline calls Load once per request so administrative edits take effect
// without a restart.
type LayerManager struct {
	path string
}

func NewLayerManager(path string) *LayerManager {
	return &LayerManager{path: path}
}

// Load reads the configuration fresh from disk. A missing or unreadable
// document yields the defaults; the pipeline must always get a usable
// configuration.
func (m *LayerManager) Load() *SystemConfig {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logx.Warn().Err(err).Str("path", m.path).Msg("layer config unreadable, using defaults")
		}
		return DefaultSystemConfig()
	}

	cfg := DefaultSystemConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		logx.Warn().Err(err).Str("path", m.path).Msg("layer config malformed, using defaults")
		return DefaultSystemConfig()
	}
	return cfg
}

// Save persists the configuration document, creating parent directories as
// needed. Best effort file-backed persistence.
func (m *LayerManager) Save(cfg *SystemConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal layer config: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write layer config: %w", err)
	}
	return nil
}
