package tracking

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// 1x1 transparent PNG
var pixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00,
	0x00, 0x0d, 0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f,
	0x15, 0xc4, 0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00, 0x05, 0x00,
	0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// Handler serves the public pixel and click-redirect endpoints. Both
// endpoints answer the visitor no matter what happens on the write path;
// a recipient must never see a broken image or dead link because DynamoDB
// hiccuped.
type Handler struct {
	processor *Processor
	bots      *BotFilter
}

func NewHandler(processor *Processor, bots *BotFilter) *Handler {
	return &Handler{processor: processor, bots: bots}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/campaigns/{campaignID}/tracking/open", h.HandleOpen)
	r.Get("/campaigns/{campaignID}/tracking/click", h.HandleClick)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	campaignID := fullCampaignID(chi.URLParam(r, "campaignID"))
	messageID := r.URL.Query().Get("message_id")
	recipient := r.URL.Query().Get("recipient")

	if messageID == "" || recipient == "" {
		http.Error(w, "message_id and recipient are required", http.StatusBadRequest)
		return
	}

	raw := RawEvent{
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		SourceIP:  realIP(r),
	}

	if h.bots.IsBot(raw.UserAgent, raw.SourceIP) {
		log.Printf("[Tracking] OPEN filtered as bot campaign=%s ua=%q ip=%s", campaignID, raw.UserAgent, raw.SourceIP)
		h.servePixel(w)
		return
	}

	if err := h.processor.RecordOpen(r.Context(), campaignID, messageID, recipient, raw); err != nil {
		log.Printf("[Tracking] OPEN record failed campaign=%s: %v", campaignID, err)
	} else {
		log.Printf("[Tracking] OPEN campaign=%s message=%s", campaignID, messageID)
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	campaignID := fullCampaignID(chi.URLParam(r, "campaignID"))
	messageID := r.URL.Query().Get("message_id")
	recipient := r.URL.Query().Get("recipient")
	url := r.URL.Query().Get("url")

	if messageID == "" || recipient == "" || url == "" {
		http.Error(w, "message_id, recipient and url are required", http.StatusBadRequest)
		return
	}

	raw := RawEvent{
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		SourceIP:  realIP(r),
	}

	if err := h.processor.RecordClick(r.Context(), campaignID, messageID, recipient, url, raw); err != nil {
		log.Printf("[Tracking] CLICK record failed campaign=%s: %v", campaignID, err)
	} else {
		log.Printf("[Tracking] CLICK campaign=%s message=%s url=%s", campaignID, messageID, url)
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelPNG)
}

// fullCampaignID restores the storage prefix stripped for URLs.
func fullCampaignID(short string) string {
	if strings.HasPrefix(short, "campaign#") {
		return short
	}
	return "campaign#" + short
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
