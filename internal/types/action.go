package types

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type ActionType string

const (
	ActionAuthorization ActionType = "AUTHORIZATION"
	ActionSelectContest ActionType = "SELECT_CONTEST"
	ActionSelectProblem ActionType = "SELECT_PROBLEM"
	ActionChatWithGPT   ActionType = "CHAT_WITH_GPT"
	ActionVote          ActionType = "VOTE"
)

// Action is one audit-log entry. Details holds a type-specific payload.
type Action struct {
	ID        int64 `gorm:"primaryKey"`
	UserID    int64 `gorm:"index"`
	Type      ActionType
	Details   datatypes.JSON
	Timestamp time.Time
}

func (Action) TableName() string { return "actions" }

// DecodeDetails unmarshals the Details payload into out.
func (a *Action) DecodeDetails(out interface{}) error {
	return json.Unmarshal(a.Details, out)
}

// ChatWithGPTDetails is the Details payload for ActionChatWithGPT. The bot
// reads the last one back to continue a free-text conversation.
type ChatWithGPTDetails struct {
	ContestID       int64         `json:"contestId"`
	ProblemID       int64         `json:"problemId"`
	ProblemSlug     string        `json:"problemSlug"`
	Dialog          []ChatMessage `json:"dialog"`
	GenerationID    int64         `json:"generationId"`
	GenerationLevel int           `json:"generationLevel"`
	SolutionID      int64         `json:"solutionId"`
}

type VoteDetails struct {
	GenerationID int64 `json:"generationId"`
	IsUpVote     bool  `json:"isUpVote"`
}

type SelectContestDetails struct {
	ContestID int64 `json:"contestId"`
}

type SelectProblemDetails struct {
	ContestID   int64  `json:"contestId"`
	ProblemID   int64  `json:"problemId"`
	ProblemSlug string `json:"problemSlug"`
}

type AuthorizationDetails struct {
	UserID      int64 `json:"userId"`
	TelegramID  int64 `json:"telegramId"`
	ContesterID int64 `json:"contesterId"`
}
