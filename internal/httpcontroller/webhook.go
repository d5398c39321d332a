package httpcontroller

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/undetectableai/truthscan-twitter-bot/internal/twitter"
)

const (
	// webhookBodyLimit caps how much of an event payload is read.
	webhookBodyLimit = 1 << 20

	// webhookProcessTimeout bounds detached processing of one delivery,
	// covering oracle retries and the reply post.
	webhookProcessTimeout = 2 * time.Minute
)

// handleWebhookCRC answers the challenge-response check Twitter uses to
// verify webhook ownership. The response token is an HMAC of the challenge
// under the consumer secret.
func (s *Server) handleWebhookCRC(c echo.Context) error {
	m := s.ingestMetrics()

	token := c.QueryParam("crc_token")
	if token == "" {
		if m != nil {
			m.RecordCRCChallenge("missing_token")
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "crc_token is required"})
	}

	secret := s.Settings.Twitter.ConsumerSecret.Value()
	if secret == "" {
		if m != nil {
			m.RecordCRCChallenge("unconfigured")
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "webhook secret is not configured"})
	}

	if m != nil {
		m.RecordCRCChallenge("ok")
	}
	return c.JSON(http.StatusOK, twitter.CRCResponse{
		ResponseToken: twitter.CRCResponseToken(token, secret),
	})
}

// handleWebhookEvent accepts an event delivery. The payload signature is
// verified before anything is parsed; processing is detached so the delivery
// is acknowledged with a bare 200 regardless of the processing outcome.
func (s *Server) handleWebhookEvent(c echo.Context) error {
	m := s.ingestMetrics()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookBodyLimit))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	sig := c.Request().Header.Get(twitter.SignatureHeader)
	if err := twitter.ValidateSignature(sig, body, s.Settings.Twitter.ConsumerSecret.Value()); err != nil {
		if stderrors.Is(err, twitter.ErrBadSignature) {
			if m != nil {
				m.IncrementSignatureFailures()
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		}
		s.LogError(c, err, "webhook signature validation unavailable")
		return c.NoContent(http.StatusInternalServerError)
	}

	mentions, err := twitter.ExtractMentions(body, s.Settings.Twitter.BotHandle)
	if err != nil {
		// An authenticated but unparseable payload carries nothing to process.
		s.Debug("webhook payload carried no parseable events: %v", err)
		if m != nil {
			m.RecordWebhookEvent("other", "ignored")
		}
		return c.NoContent(http.StatusOK)
	}

	if len(mentions) == 0 {
		if m != nil {
			m.RecordWebhookEvent("other", "ignored")
		}
		return c.NoContent(http.StatusOK)
	}

	if m != nil {
		for range mentions {
			m.RecordWebhookEvent("mention", "accepted")
		}
	}

	s.dispatchMentions(c.Request().Context(), mentions)
	return c.NoContent(http.StatusOK)
}

// dispatchMentions processes mentions on a goroutine detached from the
// request so the webhook acknowledgment is not held open. The context keeps
// the request's values but not its cancelation; a deadline still bounds the
// work.
func (s *Server) dispatchMentions(reqCtx context.Context, mentions []twitter.MentionEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), webhookProcessTimeout)

	s.webhookWG.Add(1)
	go func() {
		defer s.webhookWG.Done()
		defer cancel()

		for i := range mentions {
			if ctx.Err() != nil {
				return
			}
			mention := &mentions[i]

			page, outcome, err := s.Ingest.ProcessMention(ctx, mention)
			if err != nil {
				s.logMentionFailure(mention.EventID, string(outcome), err)
				continue
			}
			pageID := ""
			if page != nil {
				pageID = page.PageID
			}
			if s.webLogger != nil {
				s.webLogger.Info("mention processed",
					"event_id", mention.EventID,
					"outcome", string(outcome),
					"page_id", pageID,
				)
			}
		}
	}()
}

// logMentionFailure records a failed mention without surfacing it to the
// webhook response, which was already acknowledged.
func (s *Server) logMentionFailure(eventID, outcome string, err error) {
	if s.webLogger != nil {
		s.webLogger.Error("mention processing failed",
			"event_id", eventID,
			"outcome", outcome,
			"error", err.Error(),
		)
	}
}
