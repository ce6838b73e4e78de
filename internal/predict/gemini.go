package predict

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-1.5-flash"
	resultMarker         = "JSON_RESULT"
	analysisMarker       = "ANALYSIS:"
)

// Gemini asks a remote model for a prediction over the REST streaming API.
type Gemini struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

func NewGemini(baseURL, model, apiKey string, log zerolog.Logger) *Gemini {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{},
		log:     log.With().Str("component", "gemini").Logger(),
		now:     time.Now,
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiChunk struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type geminiResult struct {
	Probability float64 `json:"probability"`
	Signal      string  `json:"signal"`
	Rationale   string  `json:"rationale"`
}

func (g *Gemini) Predict(ctx context.Context, req Request, stream StreamFunc) (signal.Prediction, error) {
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: buildPrompt(req)}}}}})
	if err != nil {
		return signal.Prediction{}, &Error{Kind: KindGeneric, Err: err}
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return signal.Prediction{}, &Error{Kind: KindGeneric, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return signal.Prediction{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return signal.Prediction{}, classifyStatus(resp)
	}

	var full strings.Builder
	var streamed string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &chunk); err != nil {
			g.log.Debug().Err(err).Msg("skipping undecodable stream chunk")
			continue
		}
		full.WriteString(chunk.text())
		if cleaned := cleanRationale(full.String()); cleaned != streamed {
			streamed = cleaned
			stream.send(cleaned)
		}
	}
	if err := sc.Err(); err != nil {
		return signal.Prediction{}, classifyTransport(ctx, err)
	}
	return g.parseResult(full.String())
}

func (c geminiChunk) text() string {
	var b strings.Builder
	for _, cand := range c.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// cleanRationale drops the trailing JSON block and the ANALYSIS label.
func cleanRationale(s string) string {
	if i := strings.Index(s, resultMarker); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Replace(s, analysisMarker, "", 1))
}

func (g *Gemini) parseResult(full string) (signal.Prediction, error) {
	tail := full
	if i := strings.Index(full, resultMarker); i >= 0 {
		tail = full[i:]
	}
	start, end := strings.Index(tail, "{"), strings.LastIndex(tail, "}")
	if start < 0 || end <= start {
		return signal.Prediction{}, &Error{Kind: KindGeneric, Err: errors.New("no JSON result in model response")}
	}
	var res geminiResult
	if err := json.Unmarshal([]byte(tail[start:end+1]), &res); err != nil {
		return signal.Prediction{}, &Error{Kind: KindGeneric, Err: fmt.Errorf("decode model result: %w", err)}
	}
	p := signal.Prediction{
		Probability: int(math.Max(0, math.Min(100, math.Floor(res.Probability)))),
		Signal:      signal.Type(strings.ToUpper(strings.TrimSpace(res.Signal))),
		Rationale:   res.Rationale,
		Timestamp:   g.now(),
	}
	switch p.Signal {
	case signal.Buy, signal.Sell, signal.Wait, signal.Neutral:
	default:
		p.Signal = signal.Wait
	}
	if p.Rationale == "" {
		p.Rationale = cleanRationale(full)
	}
	return p, nil
}

func classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body geminiErrorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	err := fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &Error{Kind: KindQuota, Err: err}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindInvalidCredential, Err: err}
	}
	// The API reports some failures only in free text.
	switch {
	case body.Error.Status == "RESOURCE_EXHAUSTED", strings.Contains(strings.ToLower(msg), "quota"):
		return &Error{Kind: KindQuota, Err: err}
	case strings.Contains(msg, "API key not valid"), strings.Contains(strings.ToLower(msg), "api key"):
		return &Error{Kind: KindInvalidCredential, Err: err}
	}
	return &Error{Kind: KindGeneric, Err: err}
}

func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Err: err}
		}
		return &Error{Kind: KindOffline, Err: err}
	}
	return &Error{Kind: KindGeneric, Err: err}
}

func buildPrompt(req Request) string {
	name := req.Name
	if name == "" {
		name = req.Symbol
	}
	return fmt.Sprintf(`ACT AS: Senior quantitative developer and algorithmic trader.
CONTEXT: You are the decision engine of a short-horizon signal bot.

INPUT TELEMETRY (JSON):
{
  "asset": %q,
  "current_price": %g,
  "rsi_14": %.4f,
  "macd_line": %.8f,
  "macd_signal": %.8f,
  "macd_histogram": %.8f,
  "sma_20": %g
}

RULES:
  rsi < 15 and macd_hist > 0 -> BUY 96
  rsi > 85 and macd_hist < 0 -> SELL 96
  55 < rsi < 75 and macd_hist > 0 -> BUY 82
  25 < rsi < 45 and macd_hist < 0 -> SELL 82
  otherwise -> WAIT 0

OUTPUT FORMAT:
ANALYSIS: <one or two sentences explaining the call>
JSON_RESULT: { "probability": number, "signal": "BUY"|"SELL"|"WAIT", "rationale": "copy of the analysis" }
`, name, req.Price, req.Indicators.RSI, req.Indicators.MACD.Line, req.Indicators.MACD.Signal, req.Indicators.MACD.Histogram, req.Indicators.SMA)
}
