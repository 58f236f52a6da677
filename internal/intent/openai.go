package intent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/noamsh/donna/internal/ratelimit"
)

const routerSystemPrompt = "You are an intent router for a personal assistant that handles calendar events, tasks, and general questions. " +
	"Return ONLY strict JSON. The intents are: " +
	"EVENT_TASK (create event), EVENT_UPDATE (modify existing event), TASK_OP (tasks), " +
	"EVENT_LIST (list events, free slots, summaries), GENERAL_QA (general question), CHITCHAT (greeting/small talk).\n" +
	"When EVENT_TASK, fill 'event'. When EVENT_UPDATE, fill 'update' with 'criteria' and 'changes'. " +
	"When TASK_OP, fill 'task_op' and 'task'. When EVENT_LIST, fill 'list_query' with scope (day/week) and date_hint if specific.\n" +
	"For tasks: support 'create', 'list', 'update', 'complete', 'delete' operations.\n" +
	"Always include 'answer' field with helpful response text."

const busyReply = "I'm processing too many requests right now. Please try again in a moment."

// ClassifierConfig carries the knobs for the OpenAI-backed classifier.
type ClassifierConfig struct {
	APIKey       string
	Model        string
	RateLimitRPM int
	Timezone     *time.Location
}

// Classifier parses free text into intent envelopes and generates free-text
// answers via the OpenAI chat completions API.
type Classifier struct {
	client  openai.Client
	model   string
	rpm     int
	limiter *ratelimit.Limiter
	tz      *time.Location
	now     func() time.Time
}

func NewClassifier(cfg ClassifierConfig, limiter *ratelimit.Limiter) *Classifier {
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter()
	}
	return &Classifier{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		rpm:     cfg.RateLimitRPM,
		limiter: limiter,
		tz:      tz,
		now:     time.Now,
	}
}

// Parse classifies user text. It never returns an error: upstream failures,
// rate limiting, and malformed model output all degrade to a GeneralQA
// envelope carrying an apologetic answer.
func (c *Classifier) Parse(ctx context.Context, userText string) Envelope {
	if !c.limiter.Allow("openai_intent", c.rpm, time.Minute) {
		wait := c.limiter.WaitTime("openai_intent", c.rpm, time.Minute)
		log.Printf("intent: rate limit exceeded, next slot in %.1fs", wait.Seconds())
		return Envelope{Intent: GeneralQA, Answer: busyReply}
	}

	system := routerSystemPrompt +
		fmt.Sprintf("\nCurrent local datetime: %s", c.now().In(c.tz).Format(time.RFC3339)) +
		"\nRules: Prefer future dates; if ambiguous ask for clarification in 'answer' but still set intent."

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(userText),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		log.Printf("intent: classifier call failed: %v", err)
		return Envelope{
			Intent: GeneralQA,
			Answer: "I'm having trouble processing your request right now. Please try again in a moment.",
		}
	}
	if len(completion.Choices) == 0 {
		return Envelope{Intent: GeneralQA, Answer: "I had trouble understanding that. Could you rephrase?"}
	}

	env := Decode(completion.Choices[0].Message.Content)
	if env.Intent == Unrecognized && env.Answer == "" {
		env.Answer = "I had trouble understanding that. Could you rephrase?"
	}
	return env
}

// GenerateAnswer produces a short free-text reply for general questions and
// chitchat.
func (c *Classifier) GenerateAnswer(ctx context.Context, userText, domain string, recencyRequired bool) (string, error) {
	if !c.limiter.Allow("openai_generate", c.rpm, time.Minute) {
		return busyReply, nil
	}

	system := "You are a helpful personal assistant. Provide concise, friendly responses. " +
		"Keep responses under 300 characters when possible. " +
		"If you don't know something, say so honestly."
	if domain != "" {
		system += fmt.Sprintf(" Focus on %s topics.", domain)
	}
	if recencyRequired {
		system += " Prioritize recent/current information."
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Temperature: openai.Float(0.7),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(userText),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("generate answer: empty completion")
	}
	return completion.Choices[0].Message.Content, nil
}
