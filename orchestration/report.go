package orchestration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/counsel/internal/structured"
	"github.com/richinex/counsel/llm"
	"github.com/richinex/counsel/logging"
	"github.com/richinex/counsel/model"
)

// Placeholder values used when a reply cannot be decoded.
const (
	ParseFailedTitle = "parse failed"
	RawReplyPrefix   = "raw reply: "
)

// Report is the structured advice produced by a report turn.
type Report struct {
	Title       string   `json:"title"`
	Suggestions []string `json:"suggestions"`
}

// Report runs one turn that asks the model for a JSON report.
//
// A reply that does not decode produces a placeholder carrying the raw
// text. A failed model call produces a report titled FallbackText. Like
// Chat, a successful call stores the user text and the raw reply.
func (o *Orchestrator) Report(ctx context.Context, id model.ConversationID, userText string, opts ...TurnOption) Report {
	start := time.Now()
	req := o.request(ctx, id, userText, o.config(opts))
	req.SystemText = withInstructions(req.SystemText, structured.Instructions[Report]())
	req = req.WithParam(llm.ParamResponseFormat, "json")

	resp, err := o.chain.Call(ctx, req, o.invoker)
	if err != nil {
		o.logger.Warn("report turn failed", zap.String("conversation", string(id)), logging.Elapsed(start), zap.Error(err))
		return Report{Title: FallbackText, Suggestions: []string{}}
	}
	o.commit(ctx, id, userText, resp)

	raw := resp.Text()
	report, err := structured.Decode[Report](raw)
	if err != nil {
		o.logger.Warn("report not decodable", zap.String("conversation", string(id)), zap.String("raw", raw), zap.Error(err))
		return Report{Title: ParseFailedTitle, Suggestions: []string{RawReplyPrefix + raw}}
	}
	if report.Suggestions == nil {
		report.Suggestions = []string{}
	}
	o.logger.Info("report completed",
		zap.String("conversation", string(id)),
		zap.String("title", report.Title),
		zap.Int("suggestions", len(report.Suggestions)),
		logging.Elapsed(start))
	return report
}

func withInstructions(system, instructions string) string {
	if system == "" {
		return instructions
	}
	return system + "\n\n" + instructions
}
