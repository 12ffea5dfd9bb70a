package controller

import (
	"context"
	"net/http"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/repository"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

type Submitter interface {
	Submit(ctx context.Context, source string, t types.Telemetry) error
}

type MeasurementController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type measurementControllerImpl struct {
	repository repository.MeasurementRepository
	submitter  Submitter
}

func NewMeasurementController(repository repository.MeasurementRepository, submitter Submitter) MeasurementController {
	return &measurementControllerImpl{repository: repository, submitter: submitter}
}

func (c *measurementControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/measurements", c.handleList)
	mux.HandleFunc("POST /api/v1/measurements", c.handleIngest)
	mux.HandleFunc("GET /api/v1/devices", c.handleDevices)
}
