package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"
	"github.com/nomadictuba2005/claude-code-api/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service orchestrates the chat completion use case
type Service struct {
	provider   chat.ProviderPort
	normalizer chat.OutputNormalizer
	catalog    *chat.Catalog
	translator *Translator
	tracker    persistence.RequestTracker
	now        func() time.Time
}

// NewService creates a service that records every request through tracker
func NewService(provider chat.ProviderPort, normalizer chat.OutputNormalizer, catalog *chat.Catalog, tracker persistence.RequestTracker) *Service {
	return &Service{
		provider:   provider,
		normalizer: normalizer,
		catalog:    catalog,
		translator: NewTranslator(catalog),
		tracker:    tracker,
		now:        time.Now,
	}
}

// NewServiceWithoutTracking creates a service without request tracking
func NewServiceWithoutTracking(provider chat.ProviderPort, normalizer chat.OutputNormalizer, catalog *chat.Catalog) *Service {
	return NewService(provider, normalizer, catalog, nil)
}

// Models returns the advertised model aliases
func (s *Service) Models() []chat.Model {
	return s.catalog.Models()
}

// Chat runs one completion: translate, invoke the CLI, normalize, assemble
func (s *Service) Chat(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	ids, ok := RequestIDsFromContext(ctx)
	if !ok {
		ids = RequestIDs{ID: uuid.New()}
	}
	startTime := s.now()

	inv, err := s.translator.Translate(req)
	if err != nil {
		s.trackRejection(ctx, ids, req, err)
		return nil, err
	}

	result, err := s.provider.Run(ctx, inv)
	latency := time.Since(startTime)

	if err != nil {
		s.trackFailure(ctx, ids, inv, req, err, latency)
		return nil, err
	}

	content := s.normalizer.Normalize(result.Stdout)
	resp := s.assemble(inv, content)

	logrus.WithFields(logrus.Fields{
		"request_id":       ids.ID.String(),
		"model":            inv.Alias,
		"usage_total":      resp.Usage.TotalTokens,
		"usage_prompt":     resp.Usage.PromptTokens,
		"usage_completion": resp.Usage.CompletionTokens,
		"latency_ms":       latency.Milliseconds(),
	}).Info("Chat usage")

	s.trackSuccess(ctx, ids, inv, req, resp, result.ExitCode, latency)
	return resp, nil
}

// assemble builds the single-choice response envelope
func (s *Service) assemble(inv *chat.Invocation, content string) *chat.Response {
	return &chat.Response{
		ID:      "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Object:  chat.ObjectChatCompletion,
		Created: s.now().Unix(),
		Model:   inv.Alias,
		Choices: []chat.Choice{{
			Index: 0,
			Message: chat.Message{
				Role:    chat.RoleAssistant,
				Content: content,
			},
			FinishReason: chat.FinishReasonStop,
		}},
		Usage: EstimateUsage(inv.Prompt, content),
	}
}

func (s *Service) trackSuccess(ctx context.Context, ids RequestIDs, inv *chat.Invocation, req *chat.Request, resp *chat.Response, exitCode int, latency time.Duration) {
	if s.tracker == nil {
		return
	}

	responseData, err := json.Marshal(resp)
	if err != nil {
		logrus.WithError(err).WithField("request_id", ids.ID.String()).Warn("Failed to serialize response for tracking")
		return
	}

	metrics := persistence.RequestMetrics{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		LatencyMs:        latency.Milliseconds(),
		ExitCode:         exitCode,
	}

	opCtx := context.WithoutCancel(ctx)
	if err := s.tracker.CompleteTracking(opCtx, ids.ID, s.trackingInfo(ids, inv.Alias, inv.CLIModel, req), responseData, metrics); err != nil {
		logrus.WithError(err).WithField("request_id", ids.ID.String()).Warn("Failed to track request")
	}
}

func (s *Service) trackFailure(ctx context.Context, ids RequestIDs, inv *chat.Invocation, req *chat.Request, runErr error, latency time.Duration) {
	if s.tracker == nil {
		return
	}

	exitCode := -1
	var exitErr *chat.ExitError
	if errors.As(runErr, &exitErr) {
		exitCode = exitErr.Code
	}

	prompt := EstimateTokens(inv.Prompt)
	metrics := persistence.RequestMetrics{
		PromptTokens: prompt,
		TotalTokens:  prompt,
		LatencyMs:    latency.Milliseconds(),
		ExitCode:     exitCode,
	}

	s.fail(ctx, ids, s.trackingInfo(ids, inv.Alias, inv.CLIModel, req), runErr, metrics)
}

// trackRejection records a request refused before the CLI was started
func (s *Service) trackRejection(ctx context.Context, ids RequestIDs, req *chat.Request, reason error) {
	if s.tracker == nil || req == nil {
		return
	}

	alias := req.Model
	if alias == "" {
		alias = s.catalog.DefaultAlias()
	}
	s.fail(ctx, ids, s.trackingInfo(ids, alias, "", req), reason, persistence.RequestMetrics{ExitCode: -1})
}

func (s *Service) fail(ctx context.Context, ids RequestIDs, info persistence.TrackingInfo, reason error, metrics persistence.RequestMetrics) {
	opCtx := context.WithoutCancel(ctx)
	kind := string(chat.KindOf(reason))
	if err := s.tracker.FailTracking(opCtx, ids.ID, info, kind, reason.Error(), metrics); err != nil {
		logrus.WithError(err).WithField("request_id", ids.ID.String()).Warn("Failed to track request failure")
	}
}

func (s *Service) trackingInfo(ids RequestIDs, alias, cliModel string, req *chat.Request) persistence.TrackingInfo {
	requestData, err := json.Marshal(req)
	if err != nil {
		requestData = []byte("{}")
	}
	return persistence.TrackingInfo{
		ClientRequestID: ids.ClientID,
		Model:           alias,
		CLIModel:        cliModel,
		RequestData:     requestData,
	}
}
