package model

import (
	"iter"
	"maps"
)

// Parameter keys carried in AdvisedRequest.Params.
const (
	ParamConversationID = "conversation_id"
	ParamRetrieveSize   = "retrieve_size"
)

// AdvisedRequest is the mutable request threaded through the advisor chain.
type AdvisedRequest struct {
	UserText   string
	SystemText string
	Params     map[string]any

	// History holds prior turns injected as context.
	History History
	// Documents holds retrieved snippets merged into the outgoing prompt.
	Documents []string
}

// Param returns the named parameter, or nil.
func (r AdvisedRequest) Param(key string) any {
	if r.Params == nil {
		return nil
	}
	return r.Params[key]
}

// WithParam returns a copy of r with key set. The receiver's map is not touched.
func (r AdvisedRequest) WithParam(key string, value any) AdvisedRequest {
	params := maps.Clone(r.Params)
	if params == nil {
		params = make(map[string]any, 1)
	}
	params[key] = value
	r.Params = params
	return r
}

// ConversationID returns the conversation id parameter, if set.
func (r AdvisedRequest) ConversationID() ConversationID {
	switch v := r.Param(ParamConversationID).(type) {
	case ConversationID:
		return v
	case string:
		return ConversationID(v)
	}
	return ""
}

// AdvisedResponse is the result of one model call, or one fragment of a stream.
type AdvisedResponse struct {
	Message  Message
	Metadata map[string]any
}

// Text returns the response message text.
func (r AdvisedResponse) Text() string {
	return r.Message.Text
}

// NewResponse creates an assistant response holding text.
func NewResponse(text string) AdvisedResponse {
	return AdvisedResponse{Message: AssistantMessage(text, nil)}
}

// Stream is a lazy, finite, single-use sequence of response fragments.
// A non-nil error is the final element. A consumer that stops ranging
// cancels the stream.
type Stream = iter.Seq2[AdvisedResponse, error]

// ErrorStream returns a stream that yields only err.
func ErrorStream(err error) Stream {
	return func(yield func(AdvisedResponse, error) bool) {
		yield(AdvisedResponse{}, err)
	}
}

// StreamOf returns a stream yielding the given fragments in order.
func StreamOf(fragments ...AdvisedResponse) Stream {
	return func(yield func(AdvisedResponse, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}
