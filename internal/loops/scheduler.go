package loops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/markerfx"
	"github.com/omegacorp/omega/internal/markers"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/store"
)

const (
	defaultPollInterval = 60 * time.Second
	maxActionRetries    = 3
	actionRetryBackoff  = 2 * time.Minute
)

// Scheduler delivers due reminders and executes due actions each tick.
type Scheduler struct {
	deps Deps
}

func NewScheduler(deps Deps) *Scheduler {
	return &Scheduler{deps: deps}
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := defaultPollInterval
	if s.deps.Config != nil && s.deps.Config.Scheduler.PollIntervalSecs > 0 {
		interval = time.Duration(s.deps.Config.Scheduler.PollIntervalSecs) * time.Second
	}
	runTicker(ctx, interval, "scheduler", s.tick)
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.deps.Store.GetDueTasks()
	if err != nil {
		logging.WarnCF("scheduler", "failed to list due tasks", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, t := range due {
		if t.TaskType == store.TaskAction {
			s.runAction(ctx, t)
		} else {
			s.runReminder(ctx, t)
		}
	}
}

func (s *Scheduler) runReminder(ctx context.Context, t store.ScheduledTask) {
	text := "Reminder: " + t.Description
	s.deps.deliver(ctx, t.Channel, t.ReplyTarget, text)
	if err := s.deps.Store.CompleteTask(t.ID); err != nil {
		logging.WarnCF("scheduler", "failed to complete reminder task", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
	}
}

func (s *Scheduler) runAction(ctx context.Context, t store.ScheduledTask) {
	start := time.Now()

	facts, _ := s.deps.Store.AllFacts(t.SenderID)
	lang := "en"
	for _, f := range facts {
		if f.Key == store.FactPreferredLanguage {
			lang = f.Value
		}
	}

	var sb strings.Builder
	sb.WriteString("You are executing a scheduled action on the user's behalf, with no user present to answer follow-up questions.\n")
	sb.WriteString("Action: " + t.Description + "\n")
	sb.WriteString("Preferred language: " + lang + "\n")
	sb.WriteString("Deliver your result to the user's " + t.Channel + " channel once you finish.\n")
	sb.WriteString("End your reply with exactly one line: `ACTION_OUTCOME: Success` or `ACTION_OUTCOME: Failed(<reason>)`.\n")
	if len(facts) > 0 {
		sb.WriteString("\nKnown facts:\n")
		for _, f := range facts {
			if !store.IsSystemKey(f.Key) {
				sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Key, f.Value))
			}
		}
	}

	resp, err := s.deps.Provider.Complete(ctx, providers.CompletionRequest{
		Messages: []providers.Message{{Role: "system", Content: sb.String()}, {Role: "user", Content: t.Description}},
		Model:    s.deps.Provider.ComplexModel(),
	})

	elapsed := time.Since(start)
	if err != nil {
		s.failAction(t, err.Error(), elapsed)
		return
	}

	marks := markers.ExtractAll(resp.Content)
	mctx := markerfx.Context{Store: s.deps.Store, Workspace: s.workspace(), SenderID: t.SenderID, Channel: t.Channel, Project: t.Project}
	outcome := markerfx.Apply(mctx, marks)

	reply := markers.StripAllRemaining(markers.Strip(resp.Content))
	if reply != "" {
		s.deps.deliver(context.Background(), t.Channel, t.ReplyTarget, reply)
	}

	success := outcome.ActionOutcome == nil || outcome.ActionOutcome.Success
	reason := ""
	if outcome.ActionOutcome != nil {
		reason = outcome.ActionOutcome.Reason
	}

	s.audit(t, resp, elapsed, success, reason)

	if success {
		if err := s.deps.Store.CompleteTask(t.ID); err != nil {
			logging.WarnCF("scheduler", "failed to complete action task", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
		}
		return
	}
	s.failAction(t, reason, elapsed)
}

func (s *Scheduler) failAction(t store.ScheduledTask, reason string, elapsed time.Duration) {
	if err := s.deps.Store.FailTask(t.ID, reason, maxActionRetries, actionRetryBackoff); err != nil {
		logging.WarnCF("scheduler", "failed to record action failure", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
	}
	if t.RetryCount+1 >= maxActionRetries {
		s.deps.deliver(context.Background(), t.Channel, t.ReplyTarget, "I tried to complete a scheduled action but it didn't work out: "+reason)
	}
}

func (s *Scheduler) audit(t store.ScheduledTask, resp *providers.LLMResponse, elapsed time.Duration, success bool, reason string) {
	status := store.AuditOK
	if !success {
		status = store.AuditError
	}
	if err := s.deps.Store.AppendAudit(store.AuditEntry{
		Channel: t.Channel, SenderID: t.SenderID, InputText: "[ACTION] " + t.Description,
		OutputText: resp.Content, ProviderUsed: s.deps.Provider.Name(), Model: s.deps.Provider.ComplexModel(),
		ProcessingMs: elapsed.Milliseconds(), Status: status, DenialReason: reason,
	}); err != nil {
		logging.WarnCF("scheduler", "failed to write action audit entry", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Scheduler) workspace() string {
	if s.deps.Config == nil {
		return ""
	}
	return s.deps.Config.Omega.DataDir
}
