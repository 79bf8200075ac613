package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Tanzania-AI-Community/twiga/pkg/bus"
	"github.com/Tanzania-AI-Community/twiga/pkg/config"
	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
	"github.com/Tanzania-AI-Community/twiga/pkg/store"
	"github.com/Tanzania-AI-Community/twiga/pkg/tools"
	"github.com/Tanzania-AI-Community/twiga/pkg/utils"
)

const messageTooLongReply = "Your message is too long for me to process. Please send a shorter message."

// UserStore is the persistence surface the engine depends on.
// *store.Store satisfies it; tests substitute fakes.
type UserStore interface {
	GetOrCreateUser(ctx context.Context, waID, name string) (*store.User, error)
	GetHistory(ctx context.Context, userID int64, limit int) ([]providers.Message, error)
	SaveMessages(ctx context.Context, userID int64, messages []providers.Message) error
	IncrementDailyCount(ctx context.Context, userID int64) (int, error)
}

// Engine drives agent turns: it serializes processing per conversation
// through the buffer registry, iterates think/act rounds against the
// model, and hands each completed turn back for persistence and
// delivery.
type Engine struct {
	bus      *bus.MessageBus
	provider providers.LLMProvider
	storage  UserStore
	tools    *tools.ToolRegistry
	buffers  *Buffers

	model           string
	maxTokens       int
	temperature     float64
	maxIterations   int
	maxMessageChars int
	historyLimit    int

	rateLimitEnabled bool
	dailyLimit       int

	running bool
}

func NewEngine(cfg *config.Config, msgBus *bus.MessageBus, provider providers.LLMProvider, storage UserStore, registry *tools.ToolRegistry) *Engine {
	return &Engine{
		bus:              msgBus,
		provider:         provider,
		storage:          storage,
		tools:            registry,
		buffers:          NewBuffers(),
		model:            cfg.Agent.Model,
		maxTokens:        cfg.Agent.MaxTokens,
		temperature:      cfg.Agent.Temperature,
		maxIterations:    cfg.Agent.MaxAgentIterations,
		maxMessageChars:  cfg.Agent.MaxMessageChars,
		historyLimit:     cfg.Agent.HistoryLimit,
		rateLimitEnabled: cfg.RateLimit.Enabled,
		dailyLimit:       cfg.RateLimit.DailyMessageLimit,
	}
}

// Run consumes the inbound bus until ctx is cancelled. Each message is
// handled on its own goroutine so conversations proceed in parallel;
// within one conversation the buffer's turn lock serializes work.
func (e *Engine) Run(ctx context.Context) error {
	e.running = true

	for e.running {
		msg, ok := e.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		go e.handleInbound(ctx, msg)
	}
	return nil
}

func (e *Engine) Stop() {
	e.running = false
}

// ProcessDirect runs one message through the engine synchronously and
// returns the final reply. Used by the interactive CLI.
func (e *Engine) ProcessDirect(ctx context.Context, content string) (string, error) {
	return e.handleInbound(ctx, bus.InboundMessage{
		Channel:    "cli",
		SenderID:   "cli:default",
		ChatID:     "direct",
		SenderName: "Teacher",
		Content:    content,
	})
}

// handleInbound persists the inbound message, runs the agent turn, and
// delivers the resulting assistant replies. Returns the final reply
// text ("" when the message was only buffered).
func (e *Engine) handleInbound(ctx context.Context, msg bus.InboundMessage) (string, error) {
	preview := utils.Truncate(msg.Content, 80)
	logger.InfoCF("agent", fmt.Sprintf("Processing message from %s:%s: %s", msg.Channel, msg.SenderID, preview),
		map[string]interface{}{
			"channel": msg.Channel,
			"chat_id": msg.ChatID,
		})

	user, err := e.storage.GetOrCreateUser(ctx, msg.SenderID, msg.SenderName)
	if err != nil {
		logger.ErrorCF("agent", "User lookup failed", map[string]interface{}{
			"sender": msg.SenderID,
			"error":  err.Error(),
		})
		return "", err
	}

	if e.rateLimitEnabled {
		count, err := e.storage.IncrementDailyCount(ctx, user.ID)
		if err != nil {
			logger.WarnCF("agent", "Rate counter unavailable, allowing message", map[string]interface{}{
				"error": err.Error(),
			})
		} else if count > e.dailyLimit {
			reply := "You have reached today's message limit. Please try again tomorrow."
			e.bus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: reply})
			return reply, nil
		}
	}

	userMsg := providers.Message{Role: providers.RoleUser, Content: msg.Content}
	buf := e.buffers.Get(user.WaID)

	// Persist and enqueue under the intake lock so a turn already
	// reading history never sees a stored message that is absent from
	// pending.
	buf.intake.Lock()
	saveErr := e.storage.SaveMessages(ctx, user.ID, []providers.Message{userMsg})
	if saveErr == nil {
		buf.Add(userMsg)
	}
	buf.intake.Unlock()
	if saveErr != nil {
		logger.ErrorCF("agent", "Failed to persist inbound message", map[string]interface{}{
			"user":  user.ID,
			"error": saveErr.Error(),
		})
		return "", saveErr
	}

	result, err := e.ProcessTurn(ctx, user, msg, buf)
	if err != nil {
		logger.ErrorCF("agent", "Turn failed", map[string]interface{}{
			"user":  user.ID,
			"error": err.Error(),
		})
		reply := "Sorry, something went wrong on my side. Please try again."
		e.bus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: reply})
		return "", err
	}
	if len(result) == 0 {
		// Buffered into an in-flight turn; that turn will answer.
		return "", nil
	}

	if err := e.storage.SaveMessages(ctx, user.ID, result); err != nil {
		logger.ErrorCF("agent", "Failed to persist turn result", map[string]interface{}{
			"user":  user.ID,
			"error": err.Error(),
		})
	}

	final := finalReply(result)
	if final != "" {
		e.bus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: final})
	}
	return final, nil
}

// ProcessTurn drives a turn over the buffer's pending messages unless
// one is already in flight for the conversation, in which case the
// enqueued message is left for that turn and nil is returned. The
// buffer is always cleared and the turn lock always released, whatever
// path the turn takes.
func (e *Engine) ProcessTurn(ctx context.Context, user *store.User, origin bus.InboundMessage, buf *Buffer) (result []providers.Message, err error) {
	if !buf.TryAcquireTurn() {
		logger.DebugCF("agent", "Turn in flight, message buffered", map[string]interface{}{
			"conversation": user.WaID,
		})
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Turn panicked", map[string]interface{}{
				"conversation": user.WaID,
				"panic":        fmt.Sprint(r),
			})
			result = nil
			err = fmt.Errorf("turn panicked: %v", r)
		}
		buf.Clear()
		buf.ReleaseTurn()
		e.buffers.Evict(user.WaID)
	}()

	caller := callerFor(user)
	systemPrompt := BuildSystemPrompt(user.Name, user.ClassInfo)

	for {
		// The intake lock covers the snapshot and the history read as a
		// unit; an inbound persist+Add cannot land between them, so the
		// loaded history always contains every pending message.
		buf.intake.Lock()
		pending := buf.Snapshot()
		if len(pending) == 0 {
			buf.intake.Unlock()
			return nil, nil
		}

		newest := pending[len(pending)-1]
		if e.maxMessageChars > 0 && len([]rune(newest.Content)) > e.maxMessageChars {
			buf.intake.Unlock()
			logger.WarnCF("agent", "Message exceeds size limit", map[string]interface{}{
				"conversation": user.WaID,
				"chars":        len([]rune(newest.Content)),
				"limit":        e.maxMessageChars,
			})
			return []providers.Message{{Role: providers.RoleSystem, Content: messageTooLongReply}}, nil
		}

		historyLimit := e.historyLimit
		if historyLimit > 0 && historyLimit < len(pending) {
			historyLimit = len(pending)
		}
		prior, err := e.storage.GetHistory(ctx, user.ID, historyLimit)
		buf.intake.Unlock()
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}

		messages, err := AssembleHistory(systemPrompt, prior, pending)
		if err != nil {
			return nil, err
		}

		turn, err := e.runIterations(ctx, messages, caller, origin)
		if err != nil {
			return nil, err
		}

		// Messages that arrived mid-turn are absorbed by restarting
		// with the grown snapshot; nothing computed so far has been
		// persisted yet.
		if buf.Len() > len(pending) {
			logger.InfoCF("agent", "Buffer grew mid-turn, restarting", map[string]interface{}{
				"conversation": user.WaID,
				"was":          len(pending),
				"now":          buf.Len(),
			})
			continue
		}
		return turn, nil
	}
}

// runIterations drives up to maxIterations think/act rounds, then one
// forced tool-free completion if the budget runs out. Worst case is
// maxIterations+1 model calls.
func (e *Engine) runIterations(ctx context.Context, messages []providers.Message, caller tools.Caller, origin bus.InboundMessage) ([]providers.Message, error) {
	var result []providers.Message
	opts := providers.ChatOptions{MaxTokens: e.maxTokens, Temperature: e.temperature}
	toolDefs := e.tools.Metadata(caller)

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		logger.DebugCF("agent", "LLM iteration", map[string]interface{}{
			"iteration": iteration,
			"max":       e.maxIterations,
		})

		response, err := e.provider.Chat(ctx, messages, toolDefs, e.model, opts)
		if err != nil {
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}

		calls := ExtractToolCalls(response)
		if len(calls) == 0 {
			final := providers.Message{Role: providers.RoleAssistant, Content: response.Content}
			result = append(result, final)
			logger.InfoCF("agent", "Final answer", map[string]interface{}{
				"iteration":     iteration,
				"content_chars": len(final.Content),
			})
			return result, nil
		}

		// Content and tool calls are mutually exclusive on assistant
		// messages; any text alongside calls is dropped.
		assistantMsg := providers.Message{Role: providers.RoleAssistant, ToolCalls: calls}
		result = append(result, assistantMsg)
		messages = append(messages, assistantMsg)

		e.notifyToolUse(origin, calls)

		for _, call := range calls {
			logger.InfoCF("agent", fmt.Sprintf("Tool call: %s(%s)", call.Name, utils.Truncate(call.Arguments, 200)),
				map[string]interface{}{
					"tool":      call.Name,
					"iteration": iteration,
				})

			observation := e.tools.Execute(ctx, call.Name, call.Arguments, caller)
			toolMsg := providers.Message{
				Role:       providers.RoleTool,
				Content:    observation,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			}
			result = append(result, toolMsg)
			messages = append(messages, toolMsg)
		}
	}

	// Budget exhausted: force a plain-text answer by withholding the
	// tool definitions.
	logger.WarnCF("agent", "Iteration budget exhausted, forcing final answer", map[string]interface{}{
		"max": e.maxIterations,
	})
	response, err := e.provider.Chat(ctx, messages, nil, e.model, opts)
	if err != nil {
		return nil, fmt.Errorf("forced final LLM call failed: %w", err)
	}
	result = append(result, providers.Message{Role: providers.RoleAssistant, Content: response.Content})
	return result, nil
}

// notifyToolUse sends one progress ping per distinct tool name before
// the round's tools execute.
func (e *Engine) notifyToolUse(origin bus.InboundMessage, calls []providers.ToolCall) {
	if origin.Channel == "" || origin.ChatID == "" {
		return
	}
	seen := make(map[string]bool, len(calls))
	for _, call := range calls {
		if seen[call.Name] {
			continue
		}
		seen[call.Name] = true
		e.bus.PublishOutbound(bus.OutboundMessage{
			Channel: origin.Channel,
			ChatID:  origin.ChatID,
			Content: fmt.Sprintf("One moment, I'm using %s...", strings.ReplaceAll(call.Name, "_", " ")),
		})
	}
}

// finalReply returns the content of the last assistant or system
// message in a turn result.
func finalReply(result []providers.Message) string {
	for i := len(result) - 1; i >= 0; i-- {
		switch result[i].Role {
		case providers.RoleAssistant, providers.RoleSystem:
			if result[i].Content != "" {
				return result[i].Content
			}
		}
	}
	return ""
}

func callerFor(user *store.User) tools.Caller {
	classes := make([]string, 0, len(user.ClassInfo))
	for name := range user.ClassInfo {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	return tools.Caller{UserID: user.ID, UserName: user.Name, ClassNames: classes}
}
