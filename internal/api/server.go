package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

type Server struct {
	service *CompletionService
	models  func() ([]string, error)
	// index is served at / when set.
	index string
}

// NewServer serves completions from service. The model list comes from the
// provider when it can enumerate models.
func NewServer(service *CompletionService) *Server {
	s := &Server{service: service}
	if service != nil {
		if lister, ok := service.provider.(interface {
			ListModels() ([]string, error)
		}); ok {
			s.models = lister.ListModels
		}
	}
	return s
}

// WithIndex serves page at / next to the API.
func (s *Server) WithIndex(page string) *Server {
	s.index = page
	return s
}

func (s *Server) Register(e *echo.Echo) {
	if s.index != "" {
		e.GET("/", s.handleIndex)
	}
	e.POST("/v1/completions", s.handleCompletion)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleCompletion(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "completion service not configured", "", "")
	}
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.service.Complete(c.Request().Context(), &req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListModels(c *echo.Context) error {
	list := ModelList{Object: "list", Data: []Model{}}
	if s.models != nil {
		ids, err := s.models()
		if err != nil {
			return writeServiceError(c, err)
		}
		for _, id := range ids {
			list.Data = append(list.Data, Model{ID: id, Object: "model", OwnedBy: "local"})
		}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleIndex(c *echo.Context) error {
	return c.HTML(http.StatusOK, s.index)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeServiceError(c *echo.Context, err error) error {
	e := classify(err)
	return writeError(c, e.status, e.errType, err.Error(), e.param, e.code)
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
