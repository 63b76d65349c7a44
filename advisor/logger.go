package advisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/richinex/counsel/model"
	"github.com/richinex/counsel/stream"
)

// LoggerOrder runs the logger after request rewrites so it records the
// text actually sent downstream.
const LoggerOrder = 0

// Logger logs the outgoing user text and the final response text.
// On the streaming path the response is logged once, after the stream
// has been fully aggregated.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a logging advisor. A nil logger discards output.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("advisor")}
}

// Name returns the advisor name.
func (l *Logger) Name() string { return "Logger" }

// Order returns LoggerOrder.
func (l *Logger) Order() int { return LoggerOrder }

// AroundCall logs the request, delegates, then logs the response.
func (l *Logger) AroundCall(ctx context.Context, req model.AdvisedRequest, next CallNext) (model.AdvisedResponse, error) {
	l.before(req)
	resp, err := next(ctx, req)
	if err != nil {
		l.logger.Warn("<<< AI Error", conversationField(req), zap.Error(err))
		return resp, err
	}
	l.after(req, resp)
	return resp, nil
}

// AroundStream logs the request and logs the aggregated response when the
// stream completes.
func (l *Logger) AroundStream(ctx context.Context, req model.AdvisedRequest, next StreamNext) model.Stream {
	l.before(req)
	return stream.Aggregate(next(ctx, req), func(resp model.AdvisedResponse) {
		l.after(req, resp)
	})
}

func (l *Logger) before(req model.AdvisedRequest) {
	l.logger.Info(">>> User Request", conversationField(req), zap.String("text", req.UserText))
}

func (l *Logger) after(req model.AdvisedRequest, resp model.AdvisedResponse) {
	l.logger.Info("<<< AI Response", conversationField(req), zap.String("text", resp.Text()))
}

func conversationField(req model.AdvisedRequest) zap.Field {
	return zap.String("conversation", string(req.ConversationID()))
}
