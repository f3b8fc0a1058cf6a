package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/antigravity-gateway/gateway/internal/credential"
	"github.com/antigravity-gateway/gateway/internal/resilience"
	"github.com/antigravity-gateway/gateway/internal/translator/response"
	"github.com/antigravity-gateway/gateway/internal/upstream"
)

// dispatchGeminiAction is mounted on /v1beta/models/:model/*action: gin
// cannot express a literal colon mixed with a path parameter inside one
// URL segment, so the action verb arrives as a wildcard tail and is
// switched on here instead of being its own route.
func (s *Server) dispatchGeminiAction(c *gin.Context) {
	model := c.Param("model")
	switch c.Param("action") {
	case ":generateContent":
		s.handleGeminiGenerate(c, model)
	case ":streamGenerateContent":
		s.handleGeminiStreamGenerate(c, model)
	case ":countTokens":
		c.JSON(http.StatusOK, gin.H{"totalTokens": 0})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": 404, "message": "unknown action"}})
	}
}

func (s *Server) handleGeminiGenerate(c *gin.Context, model string) {
	s.runGemini(c, model, c.Query("alt"), false)
}

func (s *Server) handleGeminiStreamGenerate(c *gin.Context, model string) {
	s.runGemini(c, model, "sse", true)
}

func (s *Server) runGemini(c *gin.Context, model, alt string, forceStream bool) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, surfaceGemini, "could not read request body")
		return
	}
	body := gjson.ParseBytes(raw)
	if !body.Get("contents").IsArray() {
		badRequest(c, surfaceGemini, "contents is required")
		return
	}

	pc := parseGeminiChat(model, alt, body)
	if forceStream {
		pc.Stream = true
	}

	cred, err := s.obtainCredential(c.Request.Context())
	if err != nil {
		surfaceGemini.respondError(c, err)
		return
	}

	payload, err := s.buildEnvelope(pc, cred)
	if err != nil {
		surfaceGemini.respondError(c, err)
		return
	}

	if pc.Stream {
		s.streamGemini(c, pc, cred, payload, s.deps.Breakers.ForStreaming(cred.RefreshToken))
		return
	}
	s.unaryGemini(c, pc, cred, payload, s.deps.Breakers.For(cred.RefreshToken))
}

func (s *Server) unaryGemini(c *gin.Context, pc parsedChat, cred *credential.Credential, payload []byte, breaker *resilience.CircuitBreaker) {
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
		surfaceGemini.respondError(c, err)
		return
	}

	if result.ReasoningSignature != "" {
		s.deps.Signatures.SetReasoning(pc.Model, result.ReasoningSignature)
	}
	c.JSON(http.StatusOK, response.GeminiUnary(result, s.deps.Config.PassSignatureToClient))
}

func (s *Server) streamGemini(c *gin.Context, pc parsedChat, cred *credential.Credential, payload []byte, breaker *resilience.StreamingCircuitBreaker) {
	w, flusher := prepareSSE(c)
	defer s.registerHeartbeat(w, flusher)()

	projector := response.NewGeminiStream(s.deps.Config.PassSignatureToClient)
	ctx := c.Request.Context()
	var wroteAny bool
	var midErr error

	err := s.deps.Retrier.Do(ctx, func() error {
		done, allowErr := breaker.Allow()
		if allowErr != nil {
			return allowErr
		}
		sErr := s.deps.Upstream.Stream(ctx, cred.AccessToken, payload, func(d upstream.Delta) {
			wroteAny = true
			if d.Kind == upstream.DeltaReasoning && d.ThoughtSignature != "" {
				s.deps.Signatures.SetReasoning(pc.Model, d.ThoughtSignature)
			}
			if chunk, ok := projector.Chunk(d); ok {
				writeSSEData(w, flusher, chunk)
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
		surfaceGemini.respondError(c, err)
		return
	case midErr != nil:
		writeSSEData(w, flusher, gin.H{"error": gin.H{
			"code":    http.StatusBadGateway,
			"message": midErr.Error(),
		}})
	}
}
