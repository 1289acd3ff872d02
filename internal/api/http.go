package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/examprep/internal/errors"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes mounts the REST surface of the attempt service on r. Routes
// other than /healthz run behind the given middlewares.
func (a *API) RegisterRoutes(r gin.IRouter, p Pinger, middlewares ...gin.HandlerFunc) {
	if p != nil {
		r.GET("/healthz", healthz(p))
	}

	v1 := r.Group("/v1", middlewares...)
	v1.POST("/attempts", a.handleStart)
	v1.GET("/attempts", a.handleListAttempts)
	v1.POST("/attempts/:id/answers", a.handleSubmitAnswer)
	v1.POST("/attempts/:id/finalize", a.handleFinalize)
	v1.GET("/attempts/:id/progress", a.handleGetInProgress)
	v1.GET("/attempts/:id/result", a.handleGetFinalized)
}

func (a *API) handleStart(c *gin.Context) {
	var req StartRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.Start(c.Request.Context(), &req)
	if err != nil {
		abort(c, err)
		return
	}

	code := http.StatusCreated
	if resp.Resumed {
		code = http.StatusOK
	}
	c.JSON(code, resp)
}

func (a *API) handleListAttempts(c *gin.Context) {
	resp, err := a.ListAttempts(c.Request.Context(), &ListAttemptsRequest{
		StudentID: c.Query("student_id"),
		QuizID:    c.Query("quiz_id"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) handleSubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bind(c, &req) {
		return
	}
	req.AttemptID = c.Param("id")

	resp, err := a.SubmitAnswer(c.Request.Context(), &req)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a *API) handleFinalize(c *gin.Context) {
	resp, err := a.Finalize(c.Request.Context(), &AttemptRequest{AttemptID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetInProgress(c *gin.Context) {
	resp, err := a.GetInProgress(c.Request.Context(), &AttemptRequest{AttemptID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetFinalized(c *gin.Context) {
	resp, err := a.GetFinalized(c.Request.Context(), &AttemptRequest{AttemptID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func healthz(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.Ping(c.Request.Context()); err != nil {
			abort(c, errors.New(errors.CodeUnavailable, errors.WithMessagef("store unreachable"), errors.WithCause(err)))
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("malformed body: %v", err)))
		return false
	}

	return true
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	code := e.HTTPStatusCode()

	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(code, e)
}
