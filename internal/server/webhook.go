package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/idsync/internal/webhook"
)

// maxWebhookBody caps webhook payload reads. Provider events are small; a
// larger body is not a legitimate delivery.
const maxWebhookBody = 1 << 20 // 1 MiB

// handleClerkWebhook receives signed provider deliveries. A non-2xx response
// tells the provider the delivery was not processed and must be retried.
func (s *Server) handleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	headers := webhook.SignatureHeaders{
		ID:        r.Header.Get("svix-id"),
		Timestamp: r.Header.Get("svix-timestamp"),
		Signature: r.Header.Get("svix-signature"),
	}

	if err := s.reconciler.Process(r.Context(), payload, headers); err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			log.Warn().Err(err).Str("delivery_id", headers.ID).Msg("Rejected webhook delivery")
			writeError(w, http.StatusBadRequest, "invalid webhook signature")
			return
		}

		// Reconciliation failed, signal the provider to redeliver
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
