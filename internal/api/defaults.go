package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gstgraph/internal/api/models"
)

func (s *Server) registerDefaultsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-defaults",
		Method:      http.MethodGet,
		Path:        "/api/defaults",
		Summary:     "Get Defaults",
		Description: "Get the configuration given to new sessions",
		Tags:        []string{"defaults"},
	}, func(ctx context.Context, input *struct{}) (*models.DefaultsResponse, error) {
		return &models.DefaultsResponse{Body: s.registry.Defaults()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-defaults",
		Method:      http.MethodPut,
		Path:        "/api/defaults",
		Summary:     "Update Defaults",
		Description: "Replace the configuration given to new sessions until the next reload of the config file",
		Tags:        []string{"defaults"},
		Errors:      []int{400},
	}, func(ctx context.Context, input *models.UpdateDefaultsInput) (*models.DefaultsResponse, error) {
		if err := s.registry.SetDefaults(input.Body); err != nil {
			return nil, s.mapSessionError(err)
		}
		s.logger.Info("Session defaults updated", "source", input.Body.Source.Kind)
		return &models.DefaultsResponse{Body: s.registry.Defaults()}, nil
	})
}
