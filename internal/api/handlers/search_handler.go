package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/services"
	"github.com/yoockh/vibematch/internal/utils"
)

const (
	defaultRagTopK   = 5
	defaultMatchTopK = 3
)

type SearchHandler struct {
	search services.SearchService
	match  services.MatchService
}

func NewSearchHandler(search services.SearchService, match services.MatchService) *SearchHandler {
	return &SearchHandler{search: search, match: match}
}

// RagSearchBody mirrors models.RagSearchRequest with optional fields so that
// absent values take their defaults and explicit ones are validated as given.
type RagSearchBody struct {
	Query            string `json:"query"`
	TopK             *int   `json:"top_k"`
	Country          string `json:"country"`
	HasStartup       *bool  `json:"has_startup"`
	GenerateResponse *bool  `json:"generate_response"`
}

func (b RagSearchBody) request() models.RagSearchRequest {
	req := models.RagSearchRequest{
		Query:            b.Query,
		TopK:             defaultRagTopK,
		Country:          b.Country,
		HasStartup:       b.HasStartup,
		GenerateResponse: true,
	}
	if b.TopK != nil {
		req.TopK = *b.TopK
	}
	if b.GenerateResponse != nil {
		req.GenerateResponse = *b.GenerateResponse
	}
	return req
}

func (h *SearchHandler) Search(c *gin.Context) {
	var body RagSearchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SearchHandler.Search", "invalid request body", err))
		return
	}
	h.runSearch(c, body.request())
}

// SearchGet is the query-string form: ?q=&top=&country=&has_startup=&generate=.
// top is clamped into range instead of rejected.
func (h *SearchHandler) SearchGet(c *gin.Context) {
	const op = "SearchHandler.SearchGet"

	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "query parameter 'q' is required", nil))
		return
	}
	top, ok := queryInt(c, op, "top", defaultRagTopK)
	if !ok {
		return
	}
	hasStartup, ok := queryBool(c, op, "has_startup", false)
	if !ok {
		return
	}
	generate, ok := queryBool(c, op, "generate", true)
	if !ok {
		return
	}

	h.runSearch(c, models.RagSearchRequest{
		Query:            q,
		TopK:             min(max(top, 1), services.MaxRagTopK),
		Country:          c.Query("country"),
		HasStartup:       hasStartup,
		GenerateResponse: *generate,
	})
}

func (h *SearchHandler) runSearch(c *gin.Context, req models.RagSearchRequest) {
	resp, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type MatchBody struct {
	MainActivity     string `json:"main_activity"`
	Interests        string `json:"interests"`
	Country          string `json:"country"`
	City             string `json:"city"`
	TopK             *int   `json:"top_k"`
	IncludeAISummary *bool  `json:"include_ai_summary"`
}

func (h *SearchHandler) Match(c *gin.Context) {
	var body MatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SearchHandler.Match", "invalid request body", err))
		return
	}
	req := models.MatchRequest{
		MainActivity:     body.MainActivity,
		Interests:        body.Interests,
		Country:          body.Country,
		City:             body.City,
		TopK:             defaultMatchTopK,
		IncludeAISummary: true,
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	if body.IncludeAISummary != nil {
		req.IncludeAISummary = *body.IncludeAISummary
	}

	resp, err := h.match.Match(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
