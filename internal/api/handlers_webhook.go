package api

import (
	"io"
	"log"
	"net/http"
)

// HandleSESWebhook ingests one provider notification. The response is
// always 200 once the body has been read: SNS retries non-2xx responses,
// and a payload we cannot parse now will not parse on redelivery either.
func (s *Service) HandleSESWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := s.webhook.ProcessWebhook(r.Context(), body); err != nil {
		log.Printf("[API] webhook processing error: %v", err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
