// Package stream reduces streamed model responses to one logical response.
//
// Information Hiding:
// - Fragment accumulation and metadata merge hidden
// - Completion detection (normal end vs. early stop vs. error) hidden
package stream

import (
	"maps"
	"strings"

	"github.com/richinex/counsel/model"
)

// Aggregate wraps src so that every fragment reaches the consumer unmodified
// and in order. When src ends normally, onComplete is called exactly once
// with a response whose text is the concatenation of all fragment texts and
// whose metadata is the merge of all fragment metadata (later keys win).
//
// onComplete is not called when the consumer stops early or src yields an
// error: a partial response is never reported as finished. An empty stream
// that ends normally reports an empty assistant response.
func Aggregate(src model.Stream, onComplete func(model.AdvisedResponse)) model.Stream {
	return func(yield func(model.AdvisedResponse, error) bool) {
		var acc accumulator
		for fragment, err := range src {
			if err != nil {
				yield(fragment, err)
				return
			}
			acc.add(fragment)
			if !yield(fragment, nil) {
				return
			}
		}
		if onComplete != nil {
			onComplete(acc.response())
		}
	}
}

// Collect drains src and returns the aggregated response, or the first error.
func Collect(src model.Stream) (model.AdvisedResponse, error) {
	var acc accumulator
	for fragment, err := range src {
		if err != nil {
			return model.AdvisedResponse{}, err
		}
		acc.add(fragment)
	}
	return acc.response(), nil
}

type accumulator struct {
	text        strings.Builder
	messageMeta map[string]string
	meta        map[string]any
}

func (a *accumulator) add(f model.AdvisedResponse) {
	a.text.WriteString(f.Message.Text)
	if len(f.Message.Metadata) > 0 {
		if a.messageMeta == nil {
			a.messageMeta = make(map[string]string, len(f.Message.Metadata))
		}
		maps.Copy(a.messageMeta, f.Message.Metadata)
	}
	if len(f.Metadata) > 0 {
		if a.meta == nil {
			a.meta = make(map[string]any, len(f.Metadata))
		}
		maps.Copy(a.meta, f.Metadata)
	}
}

func (a *accumulator) response() model.AdvisedResponse {
	return model.AdvisedResponse{
		Message:  model.AssistantMessage(a.text.String(), a.messageMeta),
		Metadata: a.meta,
	}
}
