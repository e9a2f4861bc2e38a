package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Meet1306/Whiteboard/internal/auth"
	"github.com/Meet1306/Whiteboard/internal/boards"
	"github.com/Meet1306/Whiteboard/internal/realtime"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	callerEmailContextKey = "whiteboard_caller_email"
	defaultSendBuffer     = 64
)

var (
	errMissingGateway       = errors.New("realtime gateway dependency required")
	errMissingBoardService  = errors.New("board service dependency required")
	errMissingVerifier      = errors.New("identity verifier dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// RequestVerifier authenticates REST callers.
type RequestVerifier interface {
	VerifyRequest(r *http.Request) (auth.Identity, error)
}

type Dependencies struct {
	Gateway        *realtime.Gateway
	BoardService   *boards.Service
	Verifier       RequestVerifier
	MetricsHandler http.Handler
	AllowedOrigins []string
	SendBuffer     int
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}
	if deps.BoardService == nil {
		return nil, errMissingBoardService
	}
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	sendBuffer := deps.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		gateway:      deps.Gateway,
		boardService: deps.BoardService,
		verifier:     deps.Verifier,
		sendBuffer:   sendBuffer,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	router.GET("/ws", handler.handleWebSocket)

	api := router.Group("/api/canvas")
	api.Use(handler.authorizeRequest)
	api.GET("", handler.handleListBoards)
	api.POST("", handler.handleCreateBoard)
	api.GET("/:id", handler.handleLoadBoard)
	api.DELETE("/:id", handler.handleDeleteBoard)
	api.PATCH("/:id/name", handler.handleRenameBoard)
	api.PUT("/:id/elements", handler.handleSaveElements)
	api.PUT("/:id/share", handler.handleShareBoard)
	api.PUT("/:id/unshare", handler.handleUnshareBoard)
	api.GET("/:id/comments", handler.handleListComments)

	return router, nil
}

type httpHandler struct {
	gateway      *realtime.Gateway
	boardService *boards.Service
	verifier     RequestVerifier
	sendBuffer   int
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type boardNamePayload struct {
	Name string `json:"name"`
}

type saveElementsPayload struct {
	Elements *[]boards.Element `json:"elements"`
}

type shareBoardPayload struct {
	Email string `json:"email"`
}

type boardResponsePayload struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Owner      string           `json:"owner"`
	SharedWith []string         `json:"sharedWith"`
	Elements   []boards.Element `json:"elements"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func newBoardResponse(board boards.Board, elements []boards.Element) boardResponsePayload {
	if elements == nil {
		elements = []boards.Element{}
	}
	sharedWith := board.SharedWith
	if sharedWith == nil {
		sharedWith = []string{}
	}
	return boardResponsePayload{
		ID:         board.ID,
		Name:       board.Name,
		Owner:      board.OwnerEmail,
		SharedWith: sharedWith,
		Elements:   elements,
		CreatedAt:  board.CreatedAt,
		UpdatedAt:  board.UpdatedAt,
	}
}

func (h *httpHandler) handleCreateBoard(c *gin.Context) {
	var request boardNamePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	board, err := h.boardService.CreateBoard(c.Request.Context(), c.GetString(callerEmailContextKey), request.Name)
	if err != nil {
		h.respondError(c, "create board", err)
		return
	}
	c.JSON(http.StatusCreated, newBoardResponse(board, nil))
}

func (h *httpHandler) handleLoadBoard(c *gin.Context) {
	board, elements, err := h.boardService.LoadBoard(c.Request.Context(), c.GetString(callerEmailContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, "load board", err)
		return
	}
	c.JSON(http.StatusOK, newBoardResponse(board, elements))
}

func (h *httpHandler) handleSaveElements(c *gin.Context) {
	var request saveElementsPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Elements == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	boardID := c.Param("id")
	if err := h.boardService.SaveElements(c.Request.Context(), c.GetString(callerEmailContextKey), boardID, *request.Elements); err != nil {
		h.respondError(c, "save elements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": boardID, "elementCount": len(*request.Elements)})
}

func (h *httpHandler) handleShareBoard(c *gin.Context) {
	h.handleShareChange(c, "share board", h.boardService.ShareBoard)
}

func (h *httpHandler) handleUnshareBoard(c *gin.Context) {
	h.handleShareChange(c, "unshare board", h.boardService.UnshareBoard)
}

type shareChange func(ctx context.Context, callerEmail string, boardID string, email string) (boards.Board, error)

func (h *httpHandler) handleShareChange(c *gin.Context, action string, change shareChange) {
	var request shareBoardPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	board, err := change(c.Request.Context(), c.GetString(callerEmailContextKey), c.Param("id"), request.Email)
	if err != nil {
		h.respondError(c, action, err)
		return
	}
	h.respondBoard(c, action, board)
}

func (h *httpHandler) handleRenameBoard(c *gin.Context) {
	var request boardNamePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	board, err := h.boardService.RenameBoard(c.Request.Context(), c.GetString(callerEmailContextKey), c.Param("id"), request.Name)
	if err != nil {
		h.respondError(c, "rename board", err)
		return
	}
	h.respondBoard(c, "rename board", board)
}

func (h *httpHandler) handleDeleteBoard(c *gin.Context) {
	boardID := c.Param("id")
	if err := h.boardService.DeleteBoard(c.Request.Context(), c.GetString(callerEmailContextKey), boardID); err != nil {
		h.respondError(c, "delete board", err)
		return
	}
	h.gateway.ForgetBoard(boardID)
	c.JSON(http.StatusOK, gin.H{"id": boardID, "deleted": true})
}

func (h *httpHandler) handleListBoards(c *gin.Context) {
	found, err := h.boardService.ListBoards(c.Request.Context(), c.GetString(callerEmailContextKey))
	if err != nil {
		h.respondError(c, "list boards", err)
		return
	}
	payloads := make([]boardResponsePayload, 0, len(found))
	for _, board := range found {
		elements, err := boards.DecodeElements(board.ElementsJSON)
		if err != nil {
			h.respondError(c, "list boards", err)
			return
		}
		payloads = append(payloads, newBoardResponse(board, elements))
	}
	c.JSON(http.StatusOK, gin.H{"boards": payloads})
}

func (h *httpHandler) respondBoard(c *gin.Context, action string, board boards.Board) {
	elements, err := boards.DecodeElements(board.ElementsJSON)
	if err != nil {
		h.respondError(c, action, err)
		return
	}
	c.JSON(http.StatusOK, newBoardResponse(board, elements))
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	comments, err := h.boardService.ListComments(c.Request.Context(), c.GetString(callerEmailContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, "list comments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if auth.TokenFromRequest(c.Request) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.verifier.VerifyRequest(c.Request)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(callerEmailContextKey, identity.Email)
	c.Next()
}

func (h *httpHandler) respondError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, boards.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, boards.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, boards.ErrInvalidBoardID),
		errors.Is(err, boards.ErrInvalidEmail),
		errors.Is(err, boards.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("board request failed", zap.String("operation", action), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
