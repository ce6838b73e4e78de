// Package api exposes scan results and the live session over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/live"
	"github.com/paralela17-sudo/tradepulse-bot/internal/scanner"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
	analyzeTimeout      = 15 * time.Second
)

// Scans triggers batch scans. *scanner.Scheduler satisfies it.
type Scans interface {
	Trigger(ctx context.Context) (scanner.Report, bool)
	Running() bool
}

// Session is the live view of the selected instrument. *live.Session satisfies it.
type Session interface {
	Select(a asset.Asset)
	Snapshot() live.Snapshot
	Analyze(ctx context.Context) (signal.Prediction, error)
}

type Handler struct {
	ctx     context.Context
	scans   Scans
	board   *scanner.Board
	session Session
	catalog *asset.Catalog
	log     zerolog.Logger
}

// NewHandler builds the API. ctx bounds background scans started over HTTP.
func NewHandler(ctx context.Context, scans Scans, board *scanner.Board, session Session, catalog *asset.Catalog, log zerolog.Logger) *Handler {
	return &Handler{
		ctx:     ctx,
		scans:   scans,
		board:   board,
		session: session,
		catalog: catalog,
		log:     log.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Routes() *gin.Engine {
	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(h.log))
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	router.GET("/assets", h.assets)
	router.GET("/opportunities", h.opportunities)
	router.GET("/scan", h.latestScan)
	router.POST("/scan", h.triggerScan)
	router.GET("/scan/history", h.scanHistory)
	router.DELETE("/scan/history", h.clearHistory)
	router.GET("/stream", h.stream)
	router.PUT("/stream/:symbol", h.selectStream)
	router.POST("/stream/analyze", h.analyze)
	return router
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "OK",
		"scan_running":  h.scans.Running(),
		"stream_state":  h.session.Snapshot().State,
		"assets_loaded": h.catalog.Len(),
	})
}

func (h *Handler) assets(c *gin.Context) {
	list := h.catalog.All()
	if cat := c.Query("category"); cat != "" {
		filtered := list[:0]
		for _, a := range list {
			if strings.EqualFold(string(a.Category), cat) {
				filtered = append(filtered, a)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) opportunities(c *gin.Context) {
	threshold := scanner.DefaultDisplayThreshold
	if raw := c.Query("min"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			h.fail(c, http.StatusBadRequest, "min must be an integer between 1 and 100")
			return
		}
		threshold = v
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "opportunities": h.board.Opportunities(threshold)})
}

func (h *Handler) latestScan(c *gin.Context) {
	rep, ok := h.board.Latest()
	if !ok {
		h.fail(c, http.StatusNotFound, "no scan has completed yet")
		return
	}
	c.JSON(http.StatusOK, rep)
}

// scanHistory lists retained reports, oldest first.
func (h *Handler) scanHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.History())
}

func (h *Handler) clearHistory(c *gin.Context) {
	h.board.Reset()
	c.Status(http.StatusNoContent)
}

// triggerScan starts a scan in the background, or runs it inline with ?wait=true.
func (h *Handler) triggerScan(c *gin.Context) {
	if h.scans.Running() {
		h.fail(c, http.StatusConflict, "scan already in progress")
		return
	}
	if c.Query("wait") == "true" {
		rep, ran := h.scans.Trigger(c.Request.Context())
		if !ran {
			h.fail(c, http.StatusConflict, "scan already in progress")
			return
		}
		c.JSON(http.StatusOK, rep)
		return
	}
	go h.scans.Trigger(h.ctx)
	c.JSON(http.StatusAccepted, gin.H{"status": "scan started"})
}

func (h *Handler) stream(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *Handler) selectStream(c *gin.Context) {
	a, ok := h.catalog.Lookup(c.Param("symbol"))
	if !ok {
		h.fail(c, http.StatusNotFound, "unknown symbol")
		return
	}
	h.session.Select(a)
	c.JSON(http.StatusAccepted, h.session.Snapshot())
}

func (h *Handler) analyze(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), analyzeTimeout)
	defer cancel()
	p, err := h.session.Analyze(ctx)
	if errors.Is(err, live.ErrNotReady) {
		h.fail(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "analysis failed")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg, "request_id": c.GetString(RequestIDContextKey)})
}
