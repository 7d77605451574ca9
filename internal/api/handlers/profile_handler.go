package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/services"
	"github.com/yoockh/vibematch/internal/utils"
)

const maxImportBody = 32 << 20

type ProfileHandler struct {
	svc    services.ProfileService
	parser services.ParsingService
}

func NewProfileHandler(svc services.ProfileService, parser services.ParsingService) *ProfileHandler {
	return &ProfileHandler{svc: svc, parser: parser}
}

type ListProfilesResponse struct {
	Profiles []models.ProfileView `json:"profiles"`
	Total    int64                `json:"total"`
	Offset   int                  `json:"offset"`
	Limit    int                  `json:"limit"`
}

func (h *ProfileHandler) List(c *gin.Context) {
	const op = "ProfileHandler.List"

	offset, ok := queryInt(c, op, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, op, "limit", 0)
	if !ok {
		return
	}

	rows, total, err := h.svc.List(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := ListProfilesResponse{Profiles: make([]models.ProfileView, 0, len(rows)), Total: total, Offset: offset, Limit: limit}
	for i := range rows {
		out.Profiles = append(out.Profiles, models.NewProfileView(&rows[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *ProfileHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "ProfileHandler.Get")
	if !ok {
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProfileView(p))
}

func (h *ProfileHandler) Create(c *gin.Context) {
	var in models.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ProfileHandler.Create", "invalid request body", err))
		return
	}
	p, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewProfileView(p))
}

func (h *ProfileHandler) Update(c *gin.Context) {
	const op = "ProfileHandler.Update"

	id, ok := pathID(c, op)
	if !ok {
		return
	}
	var in models.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}
	if in.ID != 0 && in.ID != id {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "body id does not match path id", nil))
		return
	}
	p, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewProfileView(p))
}

func (h *ProfileHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "ProfileHandler.Delete")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Import accepts either a bare JSON array of profiles or {"profiles": [...]}.
func (h *ProfileHandler) Import(c *gin.Context) {
	const op = "ProfileHandler.Import"

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read request body", err))
		return
	}
	items, err := decodeImport(body)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid import payload", err))
		return
	}

	res, err := h.svc.Import(c.Request.Context(), items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func decodeImport(body []byte) ([]models.ProfileInput, error) {
	var items []models.ProfileInput
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Profiles []models.ProfileInput `json:"profiles"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Profiles, nil
}

func (h *ProfileHandler) ParsePreview(c *gin.Context) {
	id, ok := pathID(c, "ProfileHandler.ParsePreview")
	if !ok {
		return
	}
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.parser.Preview(c.Request.Context(), id))
}
