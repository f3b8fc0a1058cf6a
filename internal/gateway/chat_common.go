package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/antigravity-gateway/gateway/internal/credential"
	"github.com/antigravity-gateway/gateway/internal/gwerrors"
	"github.com/antigravity-gateway/gateway/internal/objectpool"
	"github.com/antigravity-gateway/gateway/internal/translator/request"
)

// buildEnvelope runs the request translator for one parsed inbound chat,
// against the credential the rotator just handed out.
func (s *Server) buildEnvelope(pc parsedChat, cred *credential.Credential) ([]byte, error) {
	envelope := request.Build(request.BuildOptions{
		Contents:                 pc.Contents,
		Tools:                    pc.Tools,
		Model:                    pc.Model,
		ProjectID:                cred.ProjectID,
		SessionID:                cred.SessionID,
		ThinkingSupported:        request.IsThinkingSupported(pc.Model),
		Params:                   pc.Params,
		ProcessSystemInstruction: s.deps.Config.SystemInstruction,
		CallerSystemText:         pc.SystemText,
		Signatures:               s.deps.Signatures,
	})

	payload, err := json.Marshal(envelope.Request)
	if err != nil {
		return nil, gwerrors.New(0, "encode_error", err.Error())
	}

	if extra := s.deps.Config.ExtraRequestJSON; extra != "" {
		merged, mergeErr := mergeExtraFields(payload, extra)
		if mergeErr != nil {
			s.deps.Log.Warn("extra_request_json ignored", "error", mergeErr)
		} else {
			payload = merged
		}
	}

	return payload, nil
}

// mergeExtraFields patches each top-level key of extraJSON onto payload.
// sjson edits the raw bytes directly, so operator-supplied fields the
// request builder doesn't model reach the upstream without a round trip
// through an untyped map.
func mergeExtraFields(payload []byte, extraJSON string) ([]byte, error) {
	extra := gjson.ParseBytes([]byte(extraJSON))
	if !extra.IsObject() {
		return nil, fmt.Errorf("extra_request_json is not a JSON object")
	}

	out := payload
	var err error
	extra.ForEach(func(key, value gjson.Result) bool {
		out, err = sjson.SetRawBytes(out, key.String(), []byte(value.Raw))
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// obtainCredential wraps the rotator for the handlers: every chat call
// starts here, before any inbound body bytes are trusted.
func (s *Server) obtainCredential(ctx context.Context) (*credential.Credential, error) {
	return s.deps.Rotator.GetToken(ctx)
}

// prepareSSE sets the streaming headers and returns the writer/flusher
// pair every surface's stream loop writes through.
func prepareSSE(c *gin.Context) (gin.ResponseWriter, http.Flusher) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	w := c.Writer
	return w, w
}

func writeSSEData(w http.ResponseWriter, flusher http.Flusher, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}

	buf := objectpool.GetBuffer()
	defer objectpool.PutBuffer(buf)
	buf.WriteString("data: ")
	buf.Write(b)
	buf.WriteString("\n\n")

	_, _ = w.Write(buf.Bytes())
	if flusher != nil {
		flusher.Flush()
	}
}

// heartbeatInterval returns the configured cadence, defaulting to 15s.
func (s *Server) heartbeatInterval() time.Duration {
	if s.deps.Config.HeartbeatInterval > 0 {
		return s.deps.Config.HeartbeatInterval
	}
	return 15 * time.Second
}

// maybeMarkQuota opportunistically flags the credential as quota-exhausted
// when the upstream call exhausted its retries on a 429: the gateway has
// no dedicated quota-sync endpoint (none is named in the external
// interface table), so a persistently rate-limited credential is the
// signal the rotator's quota_exhausted strategy relies on.
func (s *Server) maybeMarkQuota(err error, cred *credential.Credential) {
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) && gwErr.IsRateLimited() {
		s.deps.Rotator.MarkQuotaExhausted(cred)
		if s.deps.Metrics != nil {
			s.deps.Metrics.QuotaExhaustedTotal.Inc()
		}
	}
}

// registerHeartbeat wraps Heartbeat.Register with the shared
// heartbeat-write body every streaming surface uses, counting each tick
// on the telemetry counter.
func (s *Server) registerHeartbeat(w http.ResponseWriter, flusher http.Flusher) (stop func()) {
	return s.deps.Heartbeat.Register(s.heartbeatInterval(), func() {
		_, _ = w.Write([]byte(": heartbeat\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.HeartbeatsSent.Inc()
		}
	})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}

	buf := objectpool.GetBuffer()
	defer objectpool.PutBuffer(buf)
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(b)
	buf.WriteString("\n\n")

	_, _ = w.Write(buf.Bytes())
	if flusher != nil {
		flusher.Flush()
	}
}
