package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/rustyeddy/arena/fault"
)

// ChatModel is the slice of an eino chat model the LLM decider uses.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type LLMConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	APIKey    string `yaml:"-" json:"-"`
	Model     string `yaml:"model" json:"model"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
}

// NewChatModel builds an OpenAI-compatible eino chat model.
func NewChatModel(ctx context.Context, cfg LLMConfig) (*openai.ChatModel, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
	})
}

const systemPrompt = `You are a trading agent in a risk-governed arena.
Every order you propose is checked by a risk manager that enforces your leverage,
position size and drawdown limits, so propose what you believe is best.
Reply with a single JSON object and nothing else:
{"action":"buy|sell|hold","symbol":"<symbol>","size":<units, 0 to let risk size it>,"rationale":"<one sentence>"}`

// LLM asks a chat model for each decision.
type LLM struct {
	model ChatModel
}

func NewLLM(m ChatModel) *LLM {
	return &LLM{model: m}
}

func (l *LLM) Decide(ctx context.Context, dc Context) (Action, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(renderContext(dc)),
	}
	out, err := l.model.Generate(ctx, msgs)
	if err != nil {
		return Action{}, fault.Transient(fmt.Errorf("llm generate: %w", err))
	}
	// Malformed replies are rejected and fed back, never retried.
	act, err := parseAction(out.Content)
	if err != nil {
		return Action{}, err
	}
	if act.Kind != Hold {
		if _, ok := dc.Quotes[act.Symbol]; !ok {
			return Action{}, fault.Validation("llm proposed unknown symbol %q", act.Symbol)
		}
	}
	return act, nil
}

func renderContext(dc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent %s at %s\n", dc.AgentID, dc.Time.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Capital: %.2f\nRisk profile: %s\n", dc.Capital, dc.Profile)
	b.WriteString("Quotes:\n")
	for _, s := range dc.Symbols() {
		q := dc.Quotes[s]
		fmt.Fprintf(&b, "- %s mark=%.6g vol=%.4f\n", s, q.MarkPrice, q.Volatility)
	}
	if len(dc.Positions) == 0 {
		b.WriteString("Positions: none\n")
	} else {
		b.WriteString("Positions:\n")
		for _, p := range dc.Positions {
			fmt.Fprintf(&b, "- %s %s size=%.6g entry=%.6g upnl=%.2f\n", p.Symbol, p.Side, p.Size, p.EntryPrice, p.UnrealizedPnL())
		}
	}
	if dc.LastRejection != "" {
		fmt.Fprintf(&b, "Your previous order was rejected: %s\n", dc.LastRejection)
	}
	return b.String()
}

func parseAction(content string) (Action, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}

	var act Action
	if err := json.Unmarshal([]byte(s), &act); err != nil {
		return Action{}, fault.Validation("parse llm reply: %v", err)
	}
	act.Kind = Kind(strings.ToLower(string(act.Kind)))
	switch act.Kind {
	case Buy, Sell, Hold:
	default:
		return Action{}, fault.Validation("parse llm reply: unknown action %q", act.Kind)
	}
	if act.Size < 0 {
		return Action{}, fault.Validation("parse llm reply: negative size %v", act.Size)
	}
	return act, nil
}
