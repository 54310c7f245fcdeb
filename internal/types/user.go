package types

import "time"

type Step string

const (
	StepAuthorization   Step = "AUTHORIZATION"
	StepSelectContest   Step = "SELECT_CONTEST"
	StepSelectProblem   Step = "SELECT_PROBLEM"
	StepProblemSelected Step = "PROBLEM_SELECTED"
	StepChatWithGPT     Step = "CHAT_WITH_GPT"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a bot user linked to a contest-system account. ContestID,
// ProblemID and ProblemSlug hold the current selection and are nil until
// the user picks one.
type User struct {
	ID               int64 `gorm:"primaryKey"`
	TelegramID       int64 `gorm:"uniqueIndex"`
	ContesterID      int64
	Username         string
	ContestID        *int64
	ProblemID        *int64
	ProblemSlug      *string
	LastStep         Step `gorm:"default:AUTHORIZATION"`
	Role             Role `gorm:"default:USER"`
	LastGenerationAt time.Time
	LeftGenerations  int `gorm:"default:100"`
	CreatedAt        time.Time
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Group is a group chat the bot is authorized to work in.
type Group struct {
	ID        int64 `gorm:"primaryKey"`
	ChatID    int64 `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

func (Group) TableName() string { return "groups" }
