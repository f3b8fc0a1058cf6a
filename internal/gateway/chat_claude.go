package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/antigravity-gateway/gateway/internal/credential"
	"github.com/antigravity-gateway/gateway/internal/resilience"
	"github.com/antigravity-gateway/gateway/internal/translator/response"
	"github.com/antigravity-gateway/gateway/internal/upstream"
)

func (s *Server) handleClaudeMessages(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, surfaceClaude, "could not read request body")
		return
	}
	body := gjson.ParseBytes(raw)
	if !body.Get("model").Exists() {
		badRequest(c, surfaceClaude, "model is required")
		return
	}
	if !body.Get("messages").IsArray() {
		badRequest(c, surfaceClaude, "messages is required")
		return
	}

	pc := parseClaudeChat(body)

	cred, err := s.obtainCredential(c.Request.Context())
	if err != nil {
		surfaceClaude.respondError(c, err)
		return
	}

	payload, err := s.buildEnvelope(pc, cred)
	if err != nil {
		surfaceClaude.respondError(c, err)
		return
	}

	id := "msg_" + uuid.NewString()

	if pc.Stream {
		s.streamClaude(c, id, pc, cred, payload, s.deps.Breakers.ForStreaming(cred.RefreshToken))
		return
	}
	s.unaryClaude(c, id, pc, cred, payload, s.deps.Breakers.For(cred.RefreshToken))
}

func (s *Server) unaryClaude(c *gin.Context, id string, pc parsedChat, cred *credential.Credential, payload []byte, breaker *resilience.CircuitBreaker) {
	ctx := c.Request.Context()
	var result *upstream.UnaryResult
	err := s.deps.Retrier.Do(ctx, func() error {
		_, bErr := breaker.Execute(func() (any, error) {
			r, uErr := s.deps.Upstream.Unary(ctx, cred.AccessToken, payload)
			result = r
			return nil, uErr
		})
		return bErr
	})
	if err != nil {
		s.maybeMarkQuota(err, cred)
		surfaceClaude.respondError(c, err)
		return
	}

	if result.ReasoningSignature != "" {
		s.deps.Signatures.SetReasoning(pc.Model, result.ReasoningSignature)
	}
	c.JSON(http.StatusOK, response.ClaudeUnary(id, pc.Model, result, s.deps.Config.PassSignatureToClient))
}

func (s *Server) streamClaude(c *gin.Context, id string, pc parsedChat, cred *credential.Credential, payload []byte, breaker *resilience.StreamingCircuitBreaker) {
	w, flusher := prepareSSE(c)
	defer s.registerHeartbeat(w, flusher)()

	projector := response.NewClaudeStream(s.deps.Config.PassSignatureToClient)
	ctx := c.Request.Context()
	var wroteAny bool
	var midErr error

	err := s.deps.Retrier.Do(ctx, func() error {
		done, allowErr := breaker.Allow()
		if allowErr != nil {
			return allowErr
		}
		sErr := s.deps.Upstream.Stream(ctx, cred.AccessToken, payload, func(d upstream.Delta) {
			if d.Kind == upstream.DeltaReasoning && d.ThoughtSignature != "" {
				s.deps.Signatures.SetReasoning(pc.Model, d.ThoughtSignature)
			}
			for _, ev := range projector.Events(d) {
				wroteAny = true
				writeSSEEvent(w, flusher, ev.Name, ev.Data)
			}
		})
		done(resilience.DefaultIsSuccessful(sErr))
		if sErr != nil && wroteAny {
			midErr = sErr
			return errors.New("stream aborted after first byte")
		}
		return sErr
	})

	switch {
	case err != nil && !wroteAny:
		s.maybeMarkQuota(err, cred)
		surfaceClaude.respondError(c, err)
		return
	case midErr != nil:
		writeSSEEvent(w, flusher, "error", gin.H{
			"type": "error",
			"error": gin.H{
				"type":    "api_error",
				"message": midErr.Error(),
			},
		})
	}
}
