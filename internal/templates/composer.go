package templates

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// HandoffMessage is sent when no template can produce a reply.
const HandoffMessage = "Obrigado pela mensagem! Vou transferir você para um de nossos especialistas, que continuará o atendimento em instantes."

// Reply is the rendered outbound message.
type Reply struct {
	Text         string
	QuickReplies []string
	Transfer     bool
	TemplateID   string
	Category     string
}

// Composer picks the category template and renders it.
type Composer struct {
	source Source
	logger *logging.Logger
}

func NewComposer(source Source, logger *logging.Logger) *Composer {
	if source == nil {
		panic("templates: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Composer{source: source, logger: logger}
}

// Compose renders the template for category, falling back to the undefined-category template.
// When neither exists or the result is blank it returns the handoff message with Transfer set.
func (c *Composer) Compose(ctx context.Context, category string, vars map[string]string) Reply {
	tpl, err := c.lookup(ctx, category)
	if err != nil {
		if !errors.Is(err, ErrNoTemplate) {
			c.logger.Warn("template lookup failed", "category", category, "error", err)
		} else {
			c.logger.Info("no template configured, handing off", "category", category)
		}
		return HandoffReply(category)
	}

	text := strings.TrimSpace(Render(tpl.Body, vars))
	if text == "" {
		c.logger.Warn("template rendered empty reply, handing off", "category", category, "template_id", tpl.ID)
		return HandoffReply(category)
	}

	quick := tpl.QuickReplies
	if len(quick) > MaxQuickReplies {
		quick = quick[:MaxQuickReplies]
	}
	rendered := make([]string, 0, len(quick))
	for _, q := range quick {
		if q = strings.TrimSpace(Render(q, vars)); q != "" {
			rendered = append(rendered, q)
		}
	}
	return Reply{
		Text:         text,
		QuickReplies: rendered,
		Transfer:     tpl.Handoff,
		TemplateID:   tpl.ID,
		Category:     tpl.Category,
	}
}

func (c *Composer) lookup(ctx context.Context, category string) (*Template, error) {
	if category == "" {
		category = conversation.CategoryUndefined
	}
	tpl, err := c.source.Active(ctx, category)
	if errors.Is(err, ErrNoTemplate) && category != conversation.CategoryUndefined {
		return c.source.Active(ctx, conversation.CategoryUndefined)
	}
	return tpl, err
}

// HandoffReply is the fixed transfer-to-human reply.
func HandoffReply(category string) Reply {
	return Reply{Text: HandoffMessage, Transfer: true, Category: category}
}
