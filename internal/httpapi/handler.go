// Package httpapi implements the request handler described in spec.md
// §4.5 / §6: a single gin route that reads a downstream Messages-API
// request, orchestrates translation, the upstream call, and the
// streaming-reassemble-emit loop, and writes the resulting SSE (or
// pre-stream JSON error) response.
//
// Grounded on the teacher's internal/api/modules package for the
// gin.Engine route-registration idiom, trimmed drastically: this proxy
// has exactly one route and no pluggable module system, hot-reloadable
// auth middleware, or multi-backend dispatch, so none of that machinery
// is carried over. The streaming write loop is grounded on
// internal/api/modules/amp/response_rewriter.go's http.Flusher usage.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/tyrchen/claude-code-proxy/internal/apperr"
	"github.com/tyrchen/claude-code-proxy/internal/config"
	"github.com/tyrchen/claude-code-proxy/internal/sse"
	"github.com/tyrchen/claude-code-proxy/internal/state"
	"github.com/tyrchen/claude-code-proxy/internal/stream"
	"github.com/tyrchen/claude-code-proxy/internal/translate"
	"github.com/tyrchen/claude-code-proxy/internal/upstream"
)

// Handler wires together every collaborator the /v1/messages route needs.
// One Handler is shared by every request; it carries no per-request state
// of its own, matching spec.md's "Persisted state: None" for the process
// as a whole (the only exception, the tool-call map, lives in state.Store).
type Handler struct {
	cfg        *config.Config
	translator *translate.Translator
	upstream   *upstream.Client
	store      *state.Store
	sem        *semaphore.Weighted
}

// New builds a Handler. cfg.MaxConcurrency bounds the number of requests
// the handler serves at once, from body read through the end of the
// stream, per spec.md §5.
func New(cfg *config.Config, translator *translate.Translator, client *upstream.Client, store *state.Store) *Handler {
	return &Handler{
		cfg:        cfg,
		translator: translator,
		upstream:   client,
		store:      store,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrency),
	}
}

// Register attaches the single downstream route to engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.POST("/v1/messages", h.handleMessages)
}

func (h *Handler) handleMessages(c *gin.Context) {
	if !h.sem.TryAcquire(1) {
		writeJSONError(c, apperr.New(apperr.KindRateLimit, "too many concurrent requests"))
		return
	}
	defer h.sem.Release(1)

	cred := credentialFrom(c.Request)
	if cred.APIKey == "" {
		writeJSONError(c, apperr.New(apperr.KindAuthentication, "missing x-api-key or Authorization header"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		writeJSONError(c, apperr.New(apperr.KindInvalidRequest, "request body exceeds the configured size limit"))
		return
	}

	upstreamBody, resolvedModel, err := h.translator.Translate(body)
	if err != nil {
		writeJSONError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	upstreamStream, err := h.upstream.Stream(ctx, resolvedModel, upstreamBody, cred)
	if err != nil {
		// The upstream call failed before any bytes were sent downstream,
		// so this is still a pre-stream failure even though it originates
		// from the collaborator described in spec.md §4.4's "error path".
		writeJSONError(c, err)
		return
	}
	defer upstreamStream.Close()

	h.streamResponse(c, resolvedModel, upstreamStream)
}

func (h *Handler) streamResponse(c *gin.Context, resolvedModel string, body io.ReadCloser) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)

	parser := stream.New()
	emitter := sse.New(resolvedModel, h.store)

	written := 0
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, obj := range parser.Feed(buf[:n]) {
				for _, event := range emitter.ProcessChunk(obj) {
					written += h.writeEvent(c, event, flusher)
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	tail, finishErr := parser.Finish()
	if finishErr != nil {
		log.WithError(finishErr).Warn("httpapi: upstream stream ended with an unterminated JSON object")
	}
	for _, obj := range tail {
		for _, event := range emitter.ProcessChunk(obj) {
			written += h.writeEvent(c, event, flusher)
		}
	}

	for _, event := range emitter.Flush() {
		written += h.writeEvent(c, event, flusher)
	}

	log.WithFields(log.Fields{
		"model":         resolvedModel,
		"bytes_written": written,
		"path":          c.Request.URL.Path,
	}).Info("httpapi: request complete")
}

func (h *Handler) writeEvent(c *gin.Context, event string, flusher http.Flusher) int {
	n, err := c.Writer.Write([]byte(event))
	if err != nil {
		log.WithError(err).Warn("httpapi: downstream write failed, client likely disconnected")
		return n
	}
	if flusher != nil {
		flusher.Flush()
	}
	return n
}

func writeJSONError(c *gin.Context, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		appErr = apperr.Wrap(apperr.KindInternal, "unhandled error", err)
	}
	c.JSON(appErr.Kind.HTTPStatus(), appErr.ToPayload())
}

func credentialFrom(r *http.Request) upstream.Credential {
	if key := r.Header.Get("x-api-key"); key != "" {
		return upstream.Credential{APIKey: key}
	}
	if auth := r.Header.Get("Authorization"); len(auth) > len("Bearer ") && auth[:7] == "Bearer " {
		return upstream.Credential{APIKey: auth[7:]}
	}
	return upstream.Credential{}
}
