/*
File: internal/api/status_handlers.go
Description: Health and status operations for the relay, registered on a huma API.
*/
package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nceruchalu/go-feed-relay/internal/pipeline"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// RoomStats reports the size of the membership table.
type RoomStats interface {
	Stats() (members, rooms int)
}

// BroadcastStats reports the broadcaster's state and counters.
type BroadcastStats interface {
	Stats() pipeline.BroadcasterStats
}

// StatusBody is the payload of GET /stats.
type StatusBody struct {
	InstanceID  string                    `json:"instance_id"`
	Connections int                       `json:"connections"`
	Rooms       int                       `json:"rooms"`
	Upstream    pipeline.BroadcasterStats `json:"upstream"`
}

type statusOutput struct {
	Body StatusBody
}

type healthOutput struct {
	Body struct {
		Status   string `json:"status"`
		Upstream string `json:"upstream"`
	}
}

// API holds the dependencies for the status handlers.
type API struct {
	instanceID  string
	rooms       RoomStats
	broadcaster BroadcastStats
}

// NewAPI creates the status API.
func NewAPI(instanceID string, rooms RoomStats, broadcaster BroadcastStats) *API {
	return &API{instanceID: instanceID, rooms: rooms, broadcaster: broadcaster}
}

// Register attaches the operations to the huma API.
func (a *API) Register(api huma.API) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/healthz", Summary: "Liveness check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Upstream = a.broadcaster.Stats().State
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "ready", Method: http.MethodGet, Path: "/readyz", Summary: "Readiness check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			state := a.broadcaster.Stats().State
			if state != feed.StateSubscribed {
				return nil, huma.Error503ServiceUnavailable("upstream channel is " + state)
			}
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Upstream = state
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stats", Method: http.MethodGet, Path: "/stats", Summary: "Relay statistics", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			members, rooms := a.rooms.Stats()
			out := &statusOutput{}
			out.Body = StatusBody{
				InstanceID:  a.instanceID,
				Connections: members,
				Rooms:       rooms,
				Upstream:    a.broadcaster.Stats(),
			}
			return out, nil
		})
}
