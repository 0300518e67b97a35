package advisor

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the retrieve/advise/cancel flow and conversation storage
// over HTTP. It is a thin shell: all behavior lives in Advisor.
type Handler struct {
	advisor  *Advisor
	sessions *Sessions
	convs    *ConversationStore
}

func NewHandler(a *Advisor, sessions *Sessions, convs *ConversationStore) *Handler {
	return &Handler{advisor: a, sessions: sessions, convs: convs}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/explorer/retrieve", h.retrieve)
	g.POST("/explorer/advise", h.advise)
	g.POST("/explorer/cancel", h.cancel)

	g.GET("/conversations", h.listConversations)
	g.POST("/conversations", h.saveConversation)
	g.GET("/conversations/:id", h.getConversation)
	g.DELETE("/conversations/:id", h.deleteConversation)
}

type retrieveRequest struct {
	Symptoms string `json:"symptoms"`
}

type retrieveResponse struct {
	ID         string   `json:"id"`
	Categories []string `json:"categories"`
	Queries    []string `json:"queries"`
	Preview    string   `json:"preview"`
}

func (h *Handler) retrieve(c echo.Context) error {
	var req retrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Symptoms == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "symptoms is required")
	}

	r, err := h.advisor.Retrieve(c.Request().Context(), req.Symptoms)
	if err != nil {
		if errors.Is(err, ErrPlanningFailed) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.sessions.Put(r)

	return c.JSON(http.StatusOK, retrieveResponse{
		ID:         r.ID,
		Categories: r.Categories,
		Queries:    r.Queries,
		Preview:    r.Display,
	})
}

type adviseRequest struct {
	ID string `json:"id"`
}

func (h *Handler) advise(c echo.Context) error {
	var req adviseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, ok := h.sessions.Get(req.ID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown retrieval id")
	}

	advice, err := h.advisor.Synthesize(c.Request().Context(), r)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	h.sessions.Delete(req.ID)

	return c.JSON(http.StatusOK, map[string]string{"advice": advice})
}

func (h *Handler) cancel(c echo.Context) error {
	var req adviseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	h.sessions.Delete(req.ID)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) listConversations(c echo.Context) error {
	convs, err := h.convs.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if convs == nil {
		convs = []Conversation{}
	}
	return c.JSON(http.StatusOK, convs)
}

func (h *Handler) saveConversation(c echo.Context) error {
	var conv Conversation
	if err := c.Bind(&conv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	saved, err := h.convs.Save(conv)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) getConversation(c echo.Context) error {
	conv, err := h.convs.Load(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) deleteConversation(c echo.Context) error {
	if err := h.convs.Delete(c.Param("id")); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
