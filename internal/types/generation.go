package types

import (
	"time"

	"gorm.io/datatypes"
)

type GenerationStatus string

const (
	StatusInProgress GenerationStatus = "IN_PROGRESS"
	StatusReady      GenerationStatus = "READY"
	StatusFailed     GenerationStatus = "FAILED"
)

// TemplateVariables are the named fields a prompt template may reference.
// Stored as JSON alongside the generation so the task can be replayed.
type TemplateVariables struct {
	Problem           string `json:"problem,omitempty"`
	Solution          string `json:"solution,omitempty"`
	Code              string `json:"code,omitempty"`
	CompilerMessage   string `json:"compilerMessage,omitempty"`
	ContesterMessage  string `json:"contesterMessage,omitempty"`
	ProgramErrorTrace string `json:"programErrorTrace,omitempty"`
	UserMessage       string `json:"userMessage,omitempty"`
}

// Map returns the variables keyed the way templates reference them.
func (v TemplateVariables) Map() map[string]string {
	return map[string]string{
		"problem":           v.Problem,
		"solution":          v.Solution,
		"code":              v.Code,
		"compilerMessage":   v.CompilerMessage,
		"contesterMessage":  v.ContesterMessage,
		"programErrorTrace": v.ProgramErrorTrace,
		"userMessage":       v.UserMessage,
	}
}

// Generation is one AI explanation attempt. The fingerprint
// (ProblemID, GenerationLevel, SolutionID) identifies the logical request;
// PreviousGenerationID links follow-up turns into a dialog chain.
type Generation struct {
	ID                   int64 `gorm:"primaryKey"`
	ProblemID            int64 `gorm:"index:idx_generations_fingerprint"`
	SolutionID           int64 `gorm:"index:idx_generations_fingerprint"`
	GenerationLevel      int   `gorm:"index:idx_generations_fingerprint"`
	PreviousGenerationID int64
	Input                string                                `gorm:"type:text"`
	Output               string                                `gorm:"type:text"`
	TemplateName         string
	TemplateVariables    datatypes.JSONType[TemplateVariables]
	UpVotes              int
	DownVotes            int
	Status               GenerationStatus `gorm:"index;default:IN_PROGRESS"`
	CreatedAt            time.Time
}

func (Generation) TableName() string { return "generations" }

// ChatMessage is a single turn of a reconstructed dialog.
type ChatMessage struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
}
