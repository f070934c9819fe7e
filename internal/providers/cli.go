package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/mcp"
)

// CLIProvider is the central provider implementation: a subprocess wrapper
// around the `claude` CLI, one-shot per turn (`-p ... --output-format
// json`), with auto-resume on exhausted-turns and best-effort MCP settings
// lifecycle around calls that carry MCP servers.
type CLIProvider struct {
	binary            string
	workingDir        string
	maxTurns          int
	allowedTools      []string
	timeout           time.Duration
	maxResumeAttempts int
	fastModel         string
	complexModel      string
	settings          *mcp.SettingsGuard
}

var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func NewCLIProvider(workingDir, fastModel, complexModel string, settings *mcp.SettingsGuard) *CLIProvider {
	if workingDir == "" {
		home, _ := os.UserHomeDir()
		workingDir = filepath.Join(home, ".omega", "workspace")
	}
	return &CLIProvider{
		binary:            "claude",
		workingDir:        workingDir,
		maxTurns:          25,
		allowedTools:      nil,
		timeout:           60 * time.Minute,
		maxResumeAttempts: 5,
		fastModel:         fastModel,
		complexModel:      complexModel,
		settings:          settings,
	}
}

func (p *CLIProvider) Name() string        { return "claude-code" }
func (p *CLIProvider) RequiresAPIKey() bool { return false }
func (p *CLIProvider) FastModel() string    { return p.fastModel }
func (p *CLIProvider) ComplexModel() string { return p.complexModel }

func (p *CLIProvider) IsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, p.binary, "--version")
	return cmd.Run() == nil
}

// cliResult is the JSON envelope the CLI emits with --output-format json.
type cliResult struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	NumTurns  int    `json:"num_turns"`
}

// agentName and mcpServers are read from CompletionRequest.Options — they
// are CLI-provider-specific extensions to the otherwise generic request.
func optString(opts map[string]interface{}, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

func optStringSlice(opts map[string]interface{}, key string) []string {
	if opts == nil {
		return nil
	}
	switch v := opts[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (p *CLIProvider) Complete(ctx context.Context, req CompletionRequest) (*LLMResponse, error) {
	start := time.Now()

	prompt := flattenPrompt(req.Messages)

	maxTurns := p.maxTurns
	if req.MaxTurns > 0 {
		maxTurns = req.MaxTurns
	}

	allowedTools := p.allowedTools
	if tools := optStringSlice(req.Options, "allowed_tools"); tools != nil {
		allowedTools = tools
	}

	model := req.Model

	mcpServers := optStringSlice(req.Options, "mcp_servers")
	var settingsToken mcp.Token
	if len(mcpServers) > 0 && p.settings != nil {
		tok, err := p.settings.Acquire(p.workingDir, mcpServers)
		if err != nil {
			logging.WarnCF("provider.cli", "failed to write MCP settings, continuing without", map[string]interface{}{"error": err.Error()})
		} else {
			settingsToken = tok
			defer p.settings.Release(settingsToken)
		}
	}

	agentName := optString(req.Options, "agent_name")
	if agentName != "" && !agentNamePattern.MatchString(agentName) {
		return nil, fmt.Errorf("invalid agent name %q", agentName)
	}

	text, sid, respModel, err := p.runOnce(ctx, prompt, model, maxTurns, allowedTools, agentName, req.SessionID, mcpServers)
	if err != nil {
		return nil, err
	}

	return &LLMResponse{
		Content:      text,
		FinishReason: "stop",
		SessionID:    sid,
		Usage:        nil,
		Options: map[string]interface{}{
			"processing_ms": time.Since(start).Milliseconds(),
			"model":         respModel,
		},
	}, nil
}

// runOnce spawns one subprocess turn and, on error_max_turns with an
// unpinned caller, auto-resumes with exponential backoff.
func (p *CLIProvider) runOnce(ctx context.Context, prompt, model string, maxTurns int, allowedTools []string, agentName, sessionID string, mcpServers []string) (text, sid, respModel string, err error) {
	callerPinnedTurns := maxTurns != p.maxTurns

	args := buildCLIArgs(prompt, model, maxTurns, allowedTools, agentName, sessionID, mcpServers)

	raw, runErr := p.spawn(ctx, args)
	if runErr != nil {
		return "", "", "", runErr
	}

	result, parsed := parseCLIResult(raw)
	if !parsed {
		logging.WarnCF("provider.cli", "failed to parse CLI JSON result, falling back to raw stdout", nil)
		return strings.TrimSpace(string(raw)), sessionID, model, nil
	}

	accumulated := result.Result
	currentSession := result.SessionID
	if currentSession == "" {
		currentSession = sessionID
	}

	if result.Subtype == "error_max_turns" && currentSession != "" && !callerPinnedTurns {
		backoff := 2 * time.Second
		for attempt := 0; attempt < p.maxResumeAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return accumulated, currentSession, result.Model, ctx.Err()
			case <-time.After(backoff):
			}
			resumeArgs := buildCLIArgs(prompt, model, maxTurns, allowedTools, "", currentSession, mcpServers)
			raw, runErr = p.spawn(ctx, resumeArgs)
			if runErr != nil {
				return accumulated, currentSession, result.Model, runErr
			}
			result, parsed = parseCLIResult(raw)
			if !parsed {
				accumulated += strings.TrimSpace(string(raw))
				break
			}
			accumulated += result.Result
			if result.SessionID != "" {
				currentSession = result.SessionID
			}
			if result.Subtype != "error_max_turns" {
				break
			}
			backoff *= 2
		}
	}

	return accumulated, currentSession, result.Model, nil
}

func buildCLIArgs(prompt, model string, maxTurns int, allowedTools []string, agentName, sessionID string, mcpServers []string) []string {
	args := []string{"-p", prompt, "--output-format", "json", "--max-turns", fmt.Sprintf("%d", maxTurns)}
	if model != "" {
		args = append(args, "--model", model)
	}

	if agentName != "" {
		args = append(args, "--agent", agentName)
	} else if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}

	switch {
	case agentName != "" || len(allowedTools) == 0:
		args = append(args, "--dangerously-skip-permissions")
	default:
		for _, t := range allowedTools {
			args = append(args, "--allowedTools", t)
		}
		for _, srv := range mcpServers {
			args = append(args, "--allowedTools", fmt.Sprintf("mcp__%s__*", srv))
		}
	}

	return args
}

func (p *CLIProvider) spawn(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Dir = p.workingDir
	cmd.Env = stripClaudeCodeEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("claude CLI timed out after %s", p.timeout)
		}
		return nil, fmt.Errorf("claude CLI exited with error: %w: %s", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

func stripClaudeCodeEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "CLAUDECODE=") {
			continue
		}
		out = append(out, e)
	}
	return out
}

func parseCLIResult(raw []byte) (cliResult, bool) {
	var result cliResult
	if err := json.Unmarshal(bytes.TrimSpace(raw), &result); err != nil {
		return cliResult{}, false
	}
	return result, true
}

func flattenPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case "user":
			b.WriteString(m.Content)
			b.WriteString("\n")
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		case "tool":
			b.WriteString("Tool result: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
