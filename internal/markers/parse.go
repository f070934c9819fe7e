package markers

import (
	"fmt"
	"strconv"
	"strings"
)

// ScheduleDecode is the parsed payload of a SCHEDULE:/SCHEDULE_ACTION:
// marker: `desc | ISO8601 | once|daily|weekly|monthly|weekdays` with an
// optional fourth field of the form `cron:<five-field-expression>`.
type ScheduleDecode struct {
	Description string
	DueAt       string
	Repeat      string // one of once|daily|weekly|monthly|weekdays|cron
	CronExpr    string // only set when Repeat == "cron"
}

func DecodeSchedule(m Marker) (ScheduleDecode, error) {
	if len(m.Fields) < 3 {
		return ScheduleDecode{}, fmt.Errorf("SCHEDULE marker expects desc|due_at|repeat, got %d fields", len(m.Fields))
	}
	d := ScheduleDecode{
		Description: m.Fields[0],
		DueAt:       m.Fields[1],
		Repeat:      m.Fields[2],
	}
	if len(m.Fields) >= 4 && strings.HasPrefix(m.Fields[3], "cron:") {
		d.CronExpr = strings.TrimPrefix(m.Fields[3], "cron:")
		d.Repeat = "cron"
	}
	return d, nil
}

// UpdateTaskDecode is the parsed payload of UPDATE_TASK:. Empty fields
// mean "keep existing value."
type UpdateTaskDecode struct {
	IDPrefix string
	Desc     string
	DueAt    string
	Repeat   string
}

func DecodeUpdateTask(m Marker) (UpdateTaskDecode, error) {
	if len(m.Fields) < 1 || m.Fields[0] == "" {
		return UpdateTaskDecode{}, fmt.Errorf("UPDATE_TASK marker requires an id_prefix")
	}
	d := UpdateTaskDecode{IDPrefix: m.Fields[0]}
	if len(m.Fields) > 1 {
		d.Desc = m.Fields[1]
	}
	if len(m.Fields) > 2 {
		d.DueAt = m.Fields[2]
	}
	if len(m.Fields) > 3 {
		d.Repeat = m.Fields[3]
	}
	return d, nil
}

// RewardDecode is the parsed payload of REWARD:.
type RewardDecode struct {
	Score  int
	Domain string
	Lesson string
}

func DecodeReward(m Marker) (RewardDecode, error) {
	if len(m.Fields) < 3 {
		return RewardDecode{}, fmt.Errorf("REWARD marker expects score|domain|lesson, got %d fields", len(m.Fields))
	}
	score, err := strconv.Atoi(m.Fields[0])
	if err != nil || (score != -1 && score != 0 && score != 1) {
		return RewardDecode{}, fmt.Errorf("REWARD score must be -1, 0, or 1, got %q", m.Fields[0])
	}
	if m.Fields[1] == "" || m.Fields[2] == "" {
		return RewardDecode{}, fmt.Errorf("REWARD domain and lesson must be non-empty")
	}
	return RewardDecode{Score: score, Domain: m.Fields[1], Lesson: m.Fields[2]}, nil
}

// LessonDecode is the parsed payload of LESSON:.
type LessonDecode struct {
	Domain string
	Rule   string
}

func DecodeLesson(m Marker) (LessonDecode, error) {
	if len(m.Fields) < 2 {
		return LessonDecode{}, fmt.Errorf("LESSON marker expects domain|rule, got %d fields", len(m.Fields))
	}
	return LessonDecode{Domain: m.Fields[0], Rule: m.Fields[1]}, nil
}

// SkillImproveDecode is the parsed payload of SKILL_IMPROVE:.
type SkillImproveDecode struct {
	Skill       string
	Description string
}

func DecodeSkillImprove(m Marker) (SkillImproveDecode, error) {
	if len(m.Fields) < 2 {
		return SkillImproveDecode{}, fmt.Errorf("SKILL_IMPROVE marker expects skill|description, got %d fields", len(m.Fields))
	}
	return SkillImproveDecode{Skill: m.Fields[0], Description: m.Fields[1]}, nil
}

// ActionOutcomeDecode is the parsed payload of ACTION_OUTCOME:.
type ActionOutcomeDecode struct {
	Success bool
	Reason  string
}

func DecodeActionOutcome(m Marker) (ActionOutcomeDecode, error) {
	payload := strings.TrimSpace(m.Payload)
	if payload == "Success" || strings.HasPrefix(payload, "Success") {
		return ActionOutcomeDecode{Success: true}, nil
	}
	if strings.HasPrefix(payload, "Failed(") && strings.HasSuffix(payload, ")") {
		reason := payload[len("Failed(") : len(payload)-1]
		return ActionOutcomeDecode{Success: false, Reason: reason}, nil
	}
	return ActionOutcomeDecode{}, fmt.Errorf("ACTION_OUTCOME payload %q is neither Success nor Failed(reason)", payload)
}

// DecodeHeartbeatInterval validates the HEARTBEAT_INTERVAL: payload is an
// integer minute count in [1, 1440].
func DecodeHeartbeatInterval(m Marker) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(m.Payload))
	if err != nil {
		return 0, fmt.Errorf("HEARTBEAT_INTERVAL payload %q is not an integer", m.Payload)
	}
	if n < 1 || n > 1440 {
		return 0, fmt.Errorf("HEARTBEAT_INTERVAL minutes must be in [1,1440], got %d", n)
	}
	return n, nil
}
