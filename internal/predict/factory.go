package predict

import (
	"strings"

	"github.com/rs/zerolog"
)

const (
	ModeLocal  = "local"
	ModeGemini = "gemini"

	offlinePrefix = "[OFFLINE MODE] "
)

// Params expresses tunable knobs required by predictor constructors.
type Params struct {
	Thresholds    Thresholds
	GeminiBaseURL string
	GeminiModel   string
	GeminiAPIKey  string
}

// Build returns a predictor matching the configured mode. A remote mode with no
// credential degrades to the local rules, marked offline.
func Build(mode string, params Params, log zerolog.Logger) Predictor {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeGemini, "ai", "remote":
		if strings.TrimSpace(params.GeminiAPIKey) == "" {
			log.Warn().Msg("gemini mode without api key, using local rules")
			return NewRules(params.Thresholds, offlinePrefix)
		}
		return NewGemini(params.GeminiBaseURL, params.GeminiModel, params.GeminiAPIKey, log)
	default:
		return NewRules(params.Thresholds, "")
	}
}
