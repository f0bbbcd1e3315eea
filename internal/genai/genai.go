// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It wraps chat completions for answer generation and intent
// classification, and audio speech synthesis for voice replies.
package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Error variables for better error handling and testability
var (
	ErrAPIKeyNotSet      = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// speechService defines the minimal interface for speech synthesis.
type speechService interface {
	Create(ctx context.Context, params openai.AudioSpeechNewParams) ([]byte, error)
}

// openaiChatService adapts the OpenAI SDK to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// openaiSpeechService adapts the OpenAI SDK to speechService.
type openaiSpeechService struct {
	client openai.Client
}

func (s openaiSpeechService) Create(ctx context.Context, params openai.AudioSpeechNewParams) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey    string
	ChatModel openai.ChatModel
	TTSModel  openai.SpeechModel
	TTSVoice  openai.AudioSpeechNewParamsVoice
}

// Option defines a functional option for GenAI client configuration.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key (overrides $OPENAI_API_KEY).
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithChatModel sets the chat completion model.
func WithChatModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.ChatModel = model }
}

// WithTTSVoice sets the speech synthesis voice.
func WithTTSVoice(voice openai.AudioSpeechNewParamsVoice) Option {
	return func(o *Opts) { o.TTSVoice = voice }
}

// Client wraps the OpenAI chat completion and speech services.
type Client struct {
	chat      chatService
	speech    speechService
	chatModel openai.ChatModel
	ttsModel  openai.SpeechModel
	ttsVoice  openai.AudioSpeechNewParamsVoice
}

// ClientInterface defines the GenAI operations consumed by the bot.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NewClient initializes a new GenAI client. The API key comes from the
// options or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		ChatModel: openai.ChatModelGPT4o,
		TTSModel:  openai.SpeechModelTTS1,
		TTSVoice:  openai.AudioSpeechNewParamsVoice("onyx"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client created", "chatModel", cfg.ChatModel, "ttsVoice", cfg.TTSVoice)
	return &Client{
		chat:      openaiChatService{client: cli},
		speech:    openaiSpeechService{client: cli},
		chatModel: cfg.ChatModel,
		ttsModel:  cfg.TTSModel,
		ttsVoice:  cfg.TTSVoice,
	}, nil
}

// GenerateWithMessages generates a completion for a full message sequence.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai.GenerateWithMessages: completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithMessages: no choices returned")
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// Synthesize converts text to MP3 audio bytes using the configured voice.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := c.speech.Create(ctx, openai.AudioSpeechNewParams{
		Model: c.ttsModel,
		Voice: c.ttsVoice,
		Input: text,
	})
	if err != nil {
		slog.Error("genai.Synthesize: speech synthesis failed", "error", err)
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	slog.Debug("genai.Synthesize: speech synthesized", "bytes", len(audio))
	return audio, nil
}
