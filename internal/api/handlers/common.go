package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vibematch/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func pathID(c *gin.Context, op string) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "id must be a positive integer", err))
		return 0, false
	}
	return id, true
}

// queryInt returns def when the parameter is absent.
func queryInt(c *gin.Context, op, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, key+" must be an integer", err))
		return 0, false
	}
	return v, true
}

func queryBool(c *gin.Context, op, key string, def bool) (*bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		if !def {
			return nil, true
		}
		return &def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, key+" must be a boolean", err))
		return nil, false
	}
	return &v, true
}
