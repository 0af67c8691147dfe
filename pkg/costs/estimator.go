package costs

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// Estimator gives pre-flight token estimates for request sizing. Backends
// report authoritative usage after the fact; the estimator only informs
// logging and context-overflow warnings before a request goes out.
type Estimator struct {
	codec tokenizer.Codec
}

// NewEstimator builds an estimator for the given model, falling back to the
// cl100k_base encoding when the model is unknown to the tokenizer tables.
func NewEstimator(model string) (*Estimator, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		log.Debug().Str("model", model).Err(err).
			Msg("estimator: unknown model, falling back to cl100k_base")
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, err
		}
	}
	return &Estimator{codec: codec}, nil
}

// EstimateText returns the token count for a piece of text. On encoding
// failure it falls back to a bytes/4 heuristic so callers always get a
// usable number.
func (e *Estimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := e.codec.Encode(text)
	if err != nil {
		log.Warn().Err(err).Msg("estimator: encode failed, using byte heuristic")
		return len(text) / 4
	}
	return len(ids)
}
