package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// serviceEndpoint keeps the per-client middleware off operations whose
// responses already carry a limiter decision for a caller-supplied identity.
var serviceEndpoint = map[string]any{
	ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
}

// RegisterRoutes registers the hit API.
func RegisterRoutes(api huma.API, hitHandler *HitHandler) {
	// POST /v1/hits - Record a hit for a subject
	huma.Register(api, huma.Operation{
		OperationID:   "record-hit",
		Method:        http.MethodPost,
		Path:          "/v1/hits",
		Summary:       "Record a hit",
		Description:   "Records a hit for the identity in a sliding window and reports whether it is within the limit.",
		Tags:          []string{"Hits"},
		DefaultStatus: http.StatusOK,
		Metadata:      serviceEndpoint,
	}, hitHandler.RecordHit)
}

// RegisterRejectionRoutes registers the read side of the rejection audit log.
func RegisterRejectionRoutes(api huma.API, rejectionHandler *RejectionHandler) {
	// GET /v1/rejections/{identity} - Count persisted rejections
	huma.Register(api, huma.Operation{
		OperationID: "count-rejections",
		Method:      http.MethodGet,
		Path:        "/v1/rejections/{identity}",
		Summary:     "Count rejections",
		Description: "Returns how many rejected hits were persisted for the identity.",
		Tags:        []string{"Rejections"},
	}, rejectionHandler.CountRejections)
}
