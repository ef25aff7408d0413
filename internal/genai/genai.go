// Package genai provides AI-composed replies and classification using
// the OpenAI API.
//
// Every operation degrades gracefully: callers treat an error as "use
// the scripted fallback", so a model outage slows nothing down and
// never blocks the conversational path.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/recruitflow/recruitflow/internal/models"
)

// DefaultTimeout bounds every model call.
const DefaultTimeout = 30 * time.Second

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChat adapts the OpenAI SDK to chatService.
type openaiChat struct {
	cli openai.Client
}

func (c openaiChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the genai client.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option configures the genai client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat    chatService
	model   string
	timeout time.Duration
}

// NewClient initializes a genai client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: openai.ChatModelGPT4oMini, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model, "timeout", cfg.Timeout)
	return &Client{chat: openaiChat{cli: cli}, model: cfg.Model, timeout: cfg.Timeout}, nil
}

const suggestSystemPrompt = "Ти — рекрутер Володимир, ведеш листування з кандидатами українською мовою. " +
	"Перефразуй чернетку повідомлення природно і коротко, зберігаючи зміст і всі факти. " +
	"Не додавай нових обіцянок чи умов. Відповідай лише текстом повідомлення."

const noQuestionsRule = " Не став кандидату жодних питань."

// Suggest asks the model to compose a reply from the draft, with the
// recent conversation as context. Returns the raw model text; the
// caller decides whether to keep the draft on failure.
func (c *Client) Suggest(ctx context.Context, history []models.HistoryTurn, draft string, noQuestions bool) (string, error) {
	system := suggestSystemPrompt
	if noQuestions {
		system += noQuestionsRule
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, openai.UserMessage("Чернетка повідомлення:\n"+draft))

	out, err := c.complete(ctx, messages)
	if err != nil {
		slog.Debug("GenAI Suggest failed", "error", err)
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ClassifyIntent resolves a fuzzy reply to one coarse intent.
func (c *Client) ClassifyIntent(ctx context.Context, history []models.HistoryTurn, text string) (models.Intent, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Класифікуй останню відповідь кандидата в листуванні про вакансію. " +
			"Відповідай одним словом: stop — кандидат відмовляється і просить не писати; " +
			"continue — кандидат погоджується або готовий продовжити; " +
			"question — кандидат щось питає; " +
			"other — нічого з переліченого."),
	}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, openai.UserMessage(text))

	out, err := c.complete(ctx, messages)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "stop":
		return models.IntentStop, nil
	case "continue":
		return models.IntentAckContinue, nil
	case "question":
		return models.IntentQuestion, nil
	default:
		return models.IntentOther, nil
	}
}

// ClassifyFormatChoice resolves an ambiguous reply to a content format:
// "video", "mini_course", "both" or "unknown".
func (c *Client) ClassifyFormatChoice(ctx context.Context, history []models.HistoryTurn, text string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Кандидату запропонували два формати знайомства з роботою: відео або міні-курс. " +
			"Визнач з відповіді, що обрав кандидат. Відповідай одним словом: video, mini_course, both або unknown."),
	}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, openai.UserMessage(text))

	out, err := c.complete(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(out)), nil
}

// faqCorpusLimit caps how much corpus text goes into one prompt.
const faqCorpusLimit = 12000

// AnswerFAQ composes an answer to a candidate question bounded by the
// FAQ corpus. Detailed mode allows a longer answer; otherwise the model
// is held to three short sentences.
func (c *Client) AnswerFAQ(ctx context.Context, history []models.HistoryTurn, question, step, corpus string, detailed bool) (string, error) {
	lengthRule := "до 3 коротких речень"
	if detailed {
		lengthRule = "до 6-8 коротких речень"
	}
	corpusRunes := []rune(corpus)
	if len(corpusRunes) > faqCorpusLimit {
		corpus = string(corpusRunes[:faqCorpusLimit])
	}
	draft := "Відповідай лише українською. " +
		"Відповідай тільки в межах фактів з контексту FAQ нижче. " +
		"Формат відповіді: " + lengthRule + ". " +
		"Якщо питання поза FAQ, чесно скажи що уточниш деталі.\n\n" +
		"Поточний крок сценарію: " + step + "\n" +
		"Питання кандидата: " + question + "\n\n" +
		"FAQ контекст:\n" + corpus

	return c.Suggest(ctx, history, draft, true)
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// historyMessages maps recent turns to chat messages. Bot turns become
// assistant messages, lead turns user messages.
func historyMessages(history []models.HistoryTurn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, turn := range history {
		if turn.Text == "" {
			continue
		}
		if turn.Role == models.ActorBot {
			out = append(out, openai.AssistantMessage(turn.Text))
		} else {
			out = append(out, openai.UserMessage(turn.Text))
		}
	}
	return out
}
