// Package pipeline turns a ready buffer into exactly one reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/lead-pipeline/internal/buffer"
	"github.com/wolfman30/lead-pipeline/internal/classifier"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/dispatch"
	"github.com/wolfman30/lead-pipeline/internal/extraction"
	"github.com/wolfman30/lead-pipeline/internal/knowledge"
	"github.com/wolfman30/lead-pipeline/internal/templates"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const transcriptLimit = 20

// Conversations is the conversation read model the processor needs.
type Conversations interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Decision, error)
}

type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) (extraction.Result, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, conversationID, text, category string) []knowledge.Chunk
}

type Composer interface {
	Compose(ctx context.Context, category string, vars map[string]string) templates.Reply
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// Deps groups the processor collaborators.
type Deps struct {
	Buffers       buffer.Store
	Conversations Conversations
	Classifier    Classifier
	Extractor     Extractor
	Retriever     Retriever
	Composer      Composer
	Dispatcher    Dispatcher
	// Listener is told about the conversation after every processed buffer.
	Listener conversation.ChangeListener
}

// Processor implements buffer.Processor.
type Processor struct {
	deps   Deps
	logger *logging.Logger
	now    func() time.Time
}

var _ buffer.Processor = (*Processor)(nil)

func NewProcessor(deps Deps, logger *logging.Logger) *Processor {
	if deps.Buffers == nil || deps.Conversations == nil || deps.Classifier == nil ||
		deps.Composer == nil || deps.Dispatcher == nil {
		panic("pipeline: buffers, conversations, classifier, composer and dispatcher are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{deps: deps, logger: logger, now: time.Now}
}

// Process claims the ready buffer of a conversation and produces its reply. Races and
// early invocations are reported as outcomes, not errors.
func (p *Processor) Process(ctx context.Context, conversationID string) (result buffer.Result, err error) {
	logger := p.logger.ForConversation(conversationID)
	now := p.now().UTC()

	open, err := p.deps.Buffers.FindOpen(ctx, conversationID)
	if errors.Is(err, buffer.ErrBufferNotFound) {
		return buffer.Result{Outcome: buffer.OutcomeNothingToDo}, nil
	}
	if err != nil {
		return buffer.Result{}, fmt.Errorf("pipeline: find buffer: %w", err)
	}
	if now.Before(open.ShouldProcessAt) {
		return buffer.Result{
			Outcome:   buffer.OutcomeStillWaiting,
			BufferID:  open.ID,
			Remaining: open.ShouldProcessAt.Sub(now),
		}, nil
	}

	claimed, err := p.deps.Buffers.Claim(ctx, open.ID, now)
	if err != nil {
		return buffer.Result{}, fmt.Errorf("pipeline: claim buffer: %w", err)
	}
	if !claimed {
		return buffer.Result{Outcome: buffer.OutcomeLockNotAcquired, BufferID: open.ID}, nil
	}

	b, err := p.deps.Buffers.Get(ctx, open.ID)
	if err != nil {
		return buffer.Result{}, fmt.Errorf("pipeline: reload buffer: %w", err)
	}
	if b.Processed {
		return buffer.Result{Outcome: buffer.OutcomeAlreadyProcessed, BufferID: b.ID}, nil
	}
	logger = logger.With("buffer_id", b.ID)

	// From here on the buffer is ours and must end processed with some reply.
	var conv *conversation.Conversation
	finished := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: panic processing buffer: %v", r)
		}
		if !finished {
			result, err = p.fail(ctx, logger, conv, b.ID, err)
		}
	}()

	conv, err = p.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return buffer.Result{}, fmt.Errorf("pipeline: load conversation: %w", err)
	}

	text := b.Combined()
	transcript, err := p.deps.Conversations.RecentMessages(ctx, conversationID, transcriptLimit)
	if err != nil {
		logger.Warn("failed to load transcript", "error", err)
	}

	decision, project := p.understand(ctx, logger, conv, b.ID, text, transcript)
	conv.Category = decision.Category

	if humanOwned(conv.Status) {
		finished = true
		if err := p.deps.Buffers.MarkProcessed(ctx, b.ID, p.now().UTC()); err != nil {
			return buffer.Result{}, fmt.Errorf("pipeline: mark processed: %w", err)
		}
		logger.Info("human agent owns conversation, reply suppressed", "status", conv.Status)
		p.notify(ctx, conversationID)
		return buffer.Result{
			Outcome:    buffer.OutcomeAgentActive,
			BufferID:   b.ID,
			Category:   decision.Category,
			Confidence: decision.Confidence,
		}, nil
	}

	var chunks []knowledge.Chunk
	if p.deps.Retriever != nil {
		chunks = p.deps.Retriever.Retrieve(ctx, conversationID, text, decision.Category)
	}
	vars := templates.BuildVariables(templates.VariableInput{
		Conversation: *conv,
		Context:      project,
		Category:     decision.Category,
		Knowledge:    knowledge.FormatBlock(chunks),
		Now:          p.now(),
	})
	reply := p.deps.Composer.Compose(ctx, decision.Category, vars)

	sent, err := p.deps.Dispatcher.Dispatch(ctx, dispatch.Request{Conversation: *conv, BufferID: b.ID, Reply: reply})
	finished = true
	if err != nil {
		return buffer.Result{}, fmt.Errorf("pipeline: dispatch: %w", err)
	}

	p.notify(ctx, conversationID)
	logger.Info("buffer processed",
		"fragments", len(b.Messages),
		"category", decision.Category,
		"dispatch_status", sent.Status,
		"transfer", reply.Transfer,
	)
	return buffer.Result{
		Outcome:        buffer.OutcomeProcessed,
		BufferID:       b.ID,
		Category:       decision.Category,
		Confidence:     decision.Confidence,
		DispatchStatus: string(sent.Status),
	}, nil
}

// understand runs classification and extraction concurrently. Both degrade on failure.
func (p *Processor) understand(ctx context.Context, logger *logging.Logger, conv *conversation.Conversation, bufferID, text string, transcript []conversation.Message) (classifier.Decision, map[string]any) {
	var (
		decision classifier.Decision
		project  map[string]any
		g        errgroup.Group
	)
	g.Go(func() error {
		d, err := p.deps.Classifier.Classify(ctx, classifier.Input{
			ConversationID:  conv.ID,
			BufferID:        bufferID,
			Text:            text,
			CurrentCategory: conv.Category,
		})
		if err != nil {
			logger.Warn("classification failed", "error", err)
		}
		decision = d
		return nil
	})
	g.Go(func() error {
		if p.deps.Extractor == nil {
			return nil
		}
		res, err := p.deps.Extractor.Extract(ctx, extraction.Input{
			ConversationID: conv.ID,
			Text:           text,
			Transcript:     transcript,
		})
		if err != nil {
			logger.Warn("context extraction failed", "error", err)
		}
		project = res.Context
		return nil
	})
	_ = g.Wait()

	if decision.Category == "" {
		decision.Category = conv.Category
		if decision.Category == "" {
			decision.Category = conversation.CategoryUndefined
		}
	}
	if project == nil {
		project = map[string]any{}
	}
	return decision, project
}

// fail sends the handoff reply (which marks the buffer processed) or, when the conversation
// could not be loaded, marks the buffer processed directly.
func (p *Processor) fail(ctx context.Context, logger *logging.Logger, conv *conversation.Conversation, bufferID string, cause error) (buffer.Result, error) {
	logger.Error("buffer processing failed, sending handoff reply", "error", cause)
	result := buffer.Result{Outcome: buffer.OutcomeHandedOff, BufferID: bufferID}
	if cause != nil {
		result.Failure = cause.Error()
	}
	if conv != nil {
		sent, err := p.deps.Dispatcher.Dispatch(ctx, dispatch.Request{
			Conversation: *conv,
			BufferID:     bufferID,
			Reply:        templates.HandoffReply(conv.Category),
		})
		if err == nil {
			result.DispatchStatus = string(sent.Status)
			return result, nil
		}
		logger.Error("handoff reply failed", "error", err)
	}
	if err := p.deps.Buffers.MarkProcessed(ctx, bufferID, p.now().UTC()); err != nil {
		return result, fmt.Errorf("pipeline: mark processed after failure: %w", err)
	}
	return result, nil
}

func (p *Processor) notify(ctx context.Context, conversationID string) {
	if p.deps.Listener != nil {
		p.deps.Listener.ConversationChanged(ctx, conversationID)
	}
}

func humanOwned(s conversation.Status) bool {
	return s == conversation.StatusWithAgent || s == conversation.StatusTransferred
}
