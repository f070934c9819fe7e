package store

import "time"

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// IdleWindow is the duration after which an active conversation without
// activity is considered idle and eligible for closing.
const IdleWindow = 120 * time.Minute

type Conversation struct {
	ID           string
	Channel      string
	SenderID     string
	Project      string
	StartedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
	Status       ConversationStatus
	Summary      string
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	Timestamp      time.Time
	Metadata       string // JSON blob
}

// System fact keys: reserved, writable only by commands/markers, never by
// free-form fact extraction.
const (
	FactWelcomed           = "welcomed"
	FactPreferredLanguage  = "preferred_language"
	FactActiveProject      = "active_project"
	FactPersonality        = "personality"
	FactOnboardingStage    = "onboarding_stage"
	FactLinkCode           = "link_code"
)

func IsSystemKey(key string) bool {
	switch key {
	case FactWelcomed, FactPreferredLanguage, FactActiveProject, FactPersonality, FactOnboardingStage, FactLinkCode:
		return true
	default:
		return len(key) > len("pending_") && key[:len("pending_")] == "pending_"
	}
}

type Fact struct {
	ID              string
	SenderID        string
	Key             string
	Value           string
	SourceMessageID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskDelivered TaskStatus = "delivered"
	TaskCancelled TaskStatus = "cancelled"
)

type TaskType string

const (
	TaskReminder TaskType = "reminder"
	TaskAction   TaskType = "action"
)

type ScheduledTask struct {
	ID          string
	Channel     string
	SenderID    string
	ReplyTarget string
	Description string
	DueAt       time.Time
	Repeat      string // once|daily|weekly|monthly|weekdays|cron|""
	RepeatExpr  string // set only when Repeat == "cron"
	Status      TaskStatus
	CreatedAt   time.Time
	DeliveredAt *time.Time
	TaskType    TaskType
	RetryCount  int
	LastError   string
	Project     string
}

type Outcome struct {
	ID        string
	SenderID  string
	Domain    string
	Score     int
	Lesson    string
	Source    string
	Timestamp time.Time
	Project   string
}

type Lesson struct {
	ID          string
	SenderID    string
	Domain      string
	Rule        string
	Project     string
	Occurrences int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LessonCap is the maximum number of lessons kept per (sender, domain,
// project); the oldest by UpdatedAt is evicted past this cap.
const LessonCap = 10

type Limitation struct {
	ID           string
	Title        string
	Description  string
	ProposedPlan string
	Status       string // open|resolved
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

type Session struct {
	ID            string
	Channel       string
	SenderID      string
	Project       string
	ProviderSessionID string
	ParentProject string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AuditStatus string

const (
	AuditOK     AuditStatus = "ok"
	AuditError  AuditStatus = "error"
	AuditDenied AuditStatus = "denied"
)

type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	Channel       string
	SenderID      string
	SenderName    string
	InputText     string
	OutputText    string
	ProviderUsed  string
	Model         string
	ProcessingMs  int64
	Status        AuditStatus
	DenialReason  string
}
