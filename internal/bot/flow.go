// Package bot implements the per-user conversation session state machine
// and the answer pipeline for the travel itinerary assistant.
//
// Each inbound message is routed to one of three modes: plan selection
// (short-circuit confirmation), the "choose a plan first" prompt, or
// document-grounded Q&A. A Q&A turn runs classify intent → conditional
// web search → load grounding document → history-aware generation →
// structured parse → speech synthesis.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/tripnavi/tripnavi/internal/docs"
	"github.com/tripnavi/tripnavi/internal/genai"
	"github.com/tripnavi/tripnavi/internal/models"
	"github.com/tripnavi/tripnavi/internal/search"
	"github.com/tripnavi/tripnavi/internal/store"
)

// DefaultTurnTimeout bounds one full turn including all external calls.
const DefaultTurnTimeout = 60 * time.Second

// Synthesizer converts reply text to a stored audio file with duration.
type Synthesizer interface {
	Synthesize(ctx context.Context, userID, text string) (fileName string, durationMillis int64, err error)
}

// Opts holds configuration options for the travel flow.
type Opts struct {
	Search           search.Searcher
	Synthesizer      Synthesizer
	SystemPromptFile string
	TurnTimeout      time.Duration
}

// Option defines a functional option for flow configuration.
type Option func(*Opts)

// WithSearch enables live web search for nearby queries.
func WithSearch(s search.Searcher) Option {
	return func(o *Opts) { o.Search = s }
}

// WithSynthesizer enables voice replies.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Opts) { o.Synthesizer = s }
}

// WithSystemPromptFile overrides the built-in answer system prompt.
func WithSystemPromptFile(path string) Option {
	return func(o *Opts) { o.SystemPromptFile = path }
}

// WithTurnTimeout bounds one turn's external calls.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TurnTimeout = d }
}

// TravelFlow orchestrates one conversation turn per inbound message.
type TravelFlow struct {
	store        store.Store
	genaiClient  genai.ClientInterface
	docs         docs.Loader
	search       search.Searcher
	synthesizer  Synthesizer
	systemPrompt string
	turnTimeout  time.Duration
}

// NewTravelFlow creates a flow with its required collaborators. Search
// and speech are optional; without them turns degrade to ungrounded-by-
// search, text-only replies.
func NewTravelFlow(st store.Store, genaiClient genai.ClientInterface, docStore docs.Loader, opts ...Option) *TravelFlow {
	cfg := Opts{TurnTimeout: DefaultTurnTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	systemPrompt := defaultSystemPrompt
	if cfg.SystemPromptFile != "" {
		content, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			slog.Warn("TravelFlow.NewTravelFlow: using default system prompt, file not readable", "file", cfg.SystemPromptFile, "error", err)
		} else {
			systemPrompt = strings.TrimSpace(string(content))
			slog.Info("TravelFlow.NewTravelFlow: system prompt loaded", "file", cfg.SystemPromptFile, "length", len(systemPrompt))
		}
	}

	return &TravelFlow{
		store:        st,
		genaiClient:  genaiClient,
		docs:         docStore,
		search:       cfg.Search,
		synthesizer:  cfg.Synthesizer,
		systemPrompt: systemPrompt,
		turnTimeout:  cfg.TurnTimeout,
	}
}

// HandleMessage processes one inbound user message and returns the reply
// to send. Internal failures never escape as errors for the whole turn:
// auxiliary failures degrade the reply and generation failures produce
// the fallback text, so the user always gets a response.
func (f *TravelFlow) HandleMessage(ctx context.Context, userID, text string) (models.Reply, error) {
	if userID == "" {
		return models.Reply{}, models.ErrEmptyUserID
	}

	// Plan selection short-circuits the pipeline.
	if plan, ok := models.ParsePlan(text); ok {
		if err := f.store.SetPlan(userID, plan); err != nil {
			slog.Error("TravelFlow.HandleMessage: failed to save plan selection", "error", err, "userID", userID, "plan", plan)
			return models.Reply{}, fmt.Errorf("failed to save plan selection: %w", err)
		}
		slog.Info("TravelFlow.HandleMessage: plan selected", "userID", userID, "plan", plan)
		return models.Reply{Text: PlanConfirmedReply(string(plan))}, nil
	}

	plan, ok, err := f.store.GetPlan(userID)
	if err != nil {
		slog.Error("TravelFlow.HandleMessage: failed to look up plan", "error", err, "userID", userID)
		return models.Reply{}, fmt.Errorf("failed to look up plan: %w", err)
	}
	if !ok {
		slog.Debug("TravelFlow.HandleMessage: no plan selected yet", "userID", userID)
		return models.Reply{Text: ChoosePlanReply}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.turnTimeout)
	defer cancel()
	return f.processQuestion(ctx, userID, plan, text), nil
}

// processQuestion runs the Q&A pipeline for a user with a selected plan.
func (f *TravelFlow) processQuestion(ctx context.Context, userID string, plan models.Plan, query string) models.Reply {
	document, err := f.docs.Load(plan)
	if err != nil {
		slog.Error("TravelFlow.processQuestion: failed to load grounding document", "error", err, "userID", userID, "plan", plan)
		return models.Reply{Text: FallbackReply}
	}

	searchText := ""
	if f.search != nil && f.isNearbyQuery(ctx, query) {
		searchText, err = f.search.Search(ctx, query)
		if err != nil {
			// Search is best-effort augmentation; proceed without it.
			slog.Warn("TravelFlow.processQuestion: search failed, continuing without results", "error", err, "userID", userID)
			searchText = ""
		}
	}

	history, err := f.store.GetTurns(userID, plan)
	if err != nil {
		slog.Warn("TravelFlow.processQuestion: failed to load history, continuing without it", "error", err, "userID", userID, "plan", plan)
		history = nil
	}

	answer, err := f.generateAnswer(ctx, document, searchText, history, query)
	if err != nil {
		slog.Error("TravelFlow.processQuestion: generation failed", "error", err, "userID", userID, "plan", plan)
		return models.Reply{Text: FallbackReply}
	}

	// History grows only on successful generation.
	now := time.Now()
	err = f.store.AppendTurns(userID, plan,
		models.Turn{Role: models.RoleUser, Content: query, Timestamp: now},
		models.Turn{Role: models.RoleAssistant, Content: answer.Detailed, Timestamp: now},
	)
	if err != nil {
		slog.Error("TravelFlow.processQuestion: failed to append history", "error", err, "userID", userID, "plan", plan)
	}

	reply := models.Reply{Text: answer.Detailed}
	if f.synthesizer != nil {
		name, millis, err := f.synthesizer.Synthesize(ctx, userID, answer.Short)
		if err != nil {
			// Voice is optional; deliver the text part regardless.
			slog.Warn("TravelFlow.processQuestion: speech synthesis failed, sending text only", "error", err, "userID", userID)
		} else {
			reply.AudioName = name
			reply.AudioDuration = millis
		}
	}

	slog.Info("TravelFlow.processQuestion: turn completed", "userID", userID, "plan", plan, "hasAudio", reply.HasAudio(), "searched", searchText != "")
	return reply
}

// isNearbyQuery asks the model whether the message needs live local
// search. Classification failures count as "no": a lost augmentation,
// not a lost turn.
func (f *TravelFlow) isNearbyQuery(ctx context.Context, query string) bool {
	out, err := f.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(classifierSystemPrompt),
		openai.UserMessage(query),
	})
	if err != nil {
		slog.Warn("TravelFlow.isNearbyQuery: classification failed, assuming no search needed", "error", err)
		return false
	}
	return strings.TrimSpace(out) == "Y"
}

// generateAnswer invokes the completion model with the grounding document,
// optional search results, and full prior history, and parses the strict
// two-field reply. An unparseable response gets one corrective retry.
func (f *TravelFlow) generateAnswer(ctx context.Context, document, searchText string, history []models.Turn, query string) (models.TravelReply, error) {
	system := f.systemPrompt + "\n\nItinerary document:\n" + document
	if searchText != "" {
		system += "\n\nLive search results:\n" + searchText
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(system))
	for _, turn := range history {
		switch turn.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(query))

	raw, err := f.genaiClient.GenerateWithMessages(ctx, messages)
	if err != nil {
		return models.TravelReply{}, fmt.Errorf("completion failed: %w", err)
	}

	reply, err := parseTravelReply(raw)
	if err == nil {
		return reply, nil
	}
	slog.Warn("TravelFlow.generateAnswer: malformed reply, retrying with corrective prompt", "error", err)

	// One bounded retry with the malformed output and a corrective prompt.
	messages = append(messages, openai.AssistantMessage(raw), openai.UserMessage(correctiveReprompt))
	raw, err = f.genaiClient.GenerateWithMessages(ctx, messages)
	if err != nil {
		return models.TravelReply{}, fmt.Errorf("corrective completion failed: %w", err)
	}
	reply, err = parseTravelReply(raw)
	if err != nil {
		return models.TravelReply{}, fmt.Errorf("reply still malformed after retry: %w", err)
	}
	return reply, nil
}

// parseTravelReply parses model output strictly into the two-field reply
// shape, tolerating surrounding code fences.
func parseTravelReply(raw string) (models.TravelReply, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var reply models.TravelReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return models.TravelReply{}, fmt.Errorf("%w: %v", models.ErrMalformedReply, err)
	}
	if err := reply.Validate(); err != nil {
		return models.TravelReply{}, err
	}
	return reply, nil
}
