// Package annotate calls the annotation service for one assembled context at a
// time: tier selection, shared rate limiting, bounded retries and cost metering.
package annotate

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"medthread/internal/extraction"
	"medthread/internal/logger"
	"medthread/internal/metrics"
	"medthread/internal/models"
	"medthread/internal/providers"
	"medthread/internal/util"
)

type Options struct {
	Tiers       TierSelector
	Limiter     *Limiter
	Retry       RetryConfig
	MaxTokens   int
	Temperature float64
	// Timeout bounds a single request; zero leaves it to the caller's ctx.
	Timeout time.Duration
	Metrics *metrics.Recorder
	Logger  *logger.Logger
	// Fallbacks are tried in order once the primary provider gives up on an
	// item with a transient or permanent API error.
	Fallbacks []Fallback
}

// Fallback is a secondary provider. An empty Model reuses the tier's model;
// spend is still metered at the tier's prices.
type Fallback struct {
	Name     string
	Provider providers.LLMProvider
	Model    string
}

type Client struct {
	provider providers.LLMProvider
	opts     Options
	log      logger.Logger

	sleep func(context.Context, time.Duration) error
	rnd   func() float64
	now   func() time.Time
}

func NewClient(p providers.LLMProvider, opts Options) *Client {
	opts.Retry = opts.Retry.normalized()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	log := logger.Named("annotate")
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "annotate").Logger()
	}
	return &Client{
		provider: p,
		opts:     opts,
		log:      log,
		sleep:    sleepCtx,
		rnd:      rand.Float64,
		now:      time.Now,
	}
}

// Annotate sends one item and returns its result. The result is always
// populated with identity, tier and any spend incurred, even when err is set:
// the caller keeps it for the backup. Status is processed on success, skipped
// on a ValidationError and failed on API errors.
func (c *Client) Annotate(ctx context.Context, actx models.AnnotationContext) (models.ExtractionResult, error) {
	item := actx.Item
	content := extraction.BuildUserContent(actx)
	tier := c.opts.Tiers.Select(content)
	log := logger.C(ctx, c.log).With().Str("item_id", item.ID).Str("tier", tier.Name).Logger()

	res := models.ExtractionResult{
		SourceItemID: item.ID,
		SourceKind:   item.Kind,
		ThreadID:     item.ThreadID,
		Community:    item.Community,
		ModelUsed:    tier.Model,
		Tier:         tier.Name,
		PromptHash:   extraction.PromptHash(),
		FieldIssues:  []string{},
	}
	start := c.now()
	finish := func(status models.Status, err error) (models.ExtractionResult, error) {
		res.Status = status
		res.ProcessingMS = c.now().Sub(start).Milliseconds()
		res.ProcessedAt = c.now().UTC()
		if err != nil {
			res.Error = err.Error()
			res.ErrorKind = ErrorKind(err)
		}
		return res, err
	}

	resp, info, err := c.route(ctx, log, tier, providers.GenerateRequest{
		Operation:   "annotate",
		Model:       tier.Model,
		System:      extraction.SystemPrompt,
		Prompt:      content,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		log.Warn().Err(err).Str("kind", ErrorKind(err)).Msg("annotation call failed")
		return finish(models.StatusFailed, err)
	}
	if info.Model != "" {
		res.ModelUsed = info.Model
	}
	res.TokensIn = resp.Usage.InputTokens
	res.TokensOut = resp.Usage.OutputTokens
	res.CostUSD = tier.Cost(res.TokensIn, res.TokensOut)
	res.RawResponse = resp.Text
	c.opts.Metrics.Usage(tier.Name, res.TokensIn, res.TokensOut, res.CostUSD)

	features, issues, err := extraction.Parse(resp.Text)
	if err != nil {
		verr := &ValidationError{Err: err}
		log.Warn().Err(err).Str("response", util.Preview(resp.Text, 200)).Msg("response has no usable object")
		return finish(models.StatusSkipped, verr)
	}
	res.Features = features
	res.FieldIssues = extraction.IssueStrings(issues)
	for _, is := range issues {
		c.opts.Metrics.FieldIssue(issueLabel(is.Field))
	}
	for _, d := range features.DrugsMentioned {
		class := "other"
		if extraction.IsGLP1Drug(d) {
			class = "glp1"
		}
		c.opts.Metrics.DrugMention(class)
	}
	if len(issues) > 0 {
		log.Debug().Int("issues", len(issues)).Msg("fields nulled during validation")
	}
	return finish(models.StatusProcessed, nil)
}

// route tries the primary provider, then each fallback while the previous one
// ended in an API error. Configuration errors and cancellation stop the chain.
func (c *Client) route(ctx context.Context, log logger.Logger, tier Tier, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	resp, info, err := c.generate(ctx, log, tier, c.provider, req)
	for _, fb := range c.opts.Fallbacks {
		if err == nil || !fallsThrough(err) || ctx.Err() != nil {
			break
		}
		next := req
		if fb.Model != "" {
			next.Model = fb.Model
		}
		log.Warn().Err(err).Str("fallback", fb.Name).Msg("provider gave up, trying next")
		c.opts.Metrics.Retry("fallback")
		resp, info, err = c.generate(ctx, log, tier, fb.Provider, next)
	}
	return resp, info, err
}

func fallsThrough(err error) bool {
	var perm *PermanentAPIError
	var tr *TransientAPIError
	return errors.As(err, &perm) || errors.As(err, &tr)
}

// generate runs the request through the limiter with bounded retries on rate
// limits and transient failures.
func (c *Client) generate(ctx context.Context, log logger.Logger, tier Tier, p providers.LLMProvider, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	var prev time.Duration
	for attempt := 0; ; attempt++ {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return providers.GenerateResponse{}, providers.ProviderInfo{}, &TransientAPIError{Attempts: attempt, Err: err}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		}
		t0 := c.now()
		resp, info, err := p.Generate(callCtx, req)
		cancel()
		elapsed := c.now().Sub(t0).Seconds()

		if err == nil {
			c.opts.Metrics.Call(tier.Name, "ok", elapsed)
			if attempt > 0 {
				log.Info().Int("attempt", attempt+1).Msg("annotation call succeeded after retry")
			}
			return resp, info, nil
		}

		class := providers.ClassifyError(err)
		c.opts.Metrics.Call(tier.Name, string(class), elapsed)
		switch class {
		case providers.ErrorAuth:
			return resp, info, &ConfigurationError{Err: err}
		case providers.ErrorRate, providers.ErrorTransient:
		default:
			return resp, info, &PermanentAPIError{StatusCode: providers.StatusCode(err), Err: err}
		}

		if attempt >= c.opts.Retry.MaxRetries {
			return resp, info, &TransientAPIError{Attempts: attempt + 1, StatusCode: providers.StatusCode(err), Err: err}
		}
		wait := c.opts.Retry.delay(attempt, prev, providers.RetryAfter(err), c.rnd())
		prev = wait
		c.opts.Metrics.Retry(string(class))
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", wait).Msg("retrying annotation call")
		if serr := c.sleep(ctx, wait); serr != nil {
			return resp, info, &TransientAPIError{Attempts: attempt + 1, StatusCode: providers.StatusCode(err), Err: errors.Join(err, serr)}
		}
	}
}

func issueLabel(field string) string {
	if i := strings.IndexAny(field, ".["); i >= 0 {
		return field[:i]
	}
	return field
}
