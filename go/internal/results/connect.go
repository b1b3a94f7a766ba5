package results

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ResultsServiceName is the fully-qualified name of the ResultsService.
const ResultsServiceName = "tabletalk.v1.ResultsService"

// Procedure paths of the ResultsService RPCs.
const (
	ResultsServiceGetRoomResultProcedure        = "/tabletalk.v1.ResultsService/GetRoomResult"
	ResultsServiceListRoomParticipantsProcedure = "/tabletalk.v1.ResultsService/ListRoomParticipants"
)

// ResultsServiceHandler is implemented by the results Service.
type ResultsServiceHandler interface {
	GetRoomResult(context.Context, *connect.Request[GetRoomResultRequest]) (*connect.Response[GetRoomResultResponse], error)
	ListRoomParticipants(context.Context, *connect.Request[ListRoomParticipantsRequest]) (*connect.Response[ListRoomParticipantsResponse], error)
}

// NewResultsServiceHandler builds an HTTP handler for the service and returns
// the path to mount it on. Messages are JSON encoded.
func NewResultsServiceHandler(svc ResultsServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	getRoomResultHandler := connect.NewUnaryHandler(
		ResultsServiceGetRoomResultProcedure,
		svc.GetRoomResult,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...,
	)
	listRoomParticipantsHandler := connect.NewUnaryHandler(
		ResultsServiceListRoomParticipantsProcedure,
		svc.ListRoomParticipants,
		append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))...,
	)

	return "/" + ResultsServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ResultsServiceGetRoomResultProcedure:
			getRoomResultHandler.ServeHTTP(w, r)
		case ResultsServiceListRoomParticipantsProcedure:
			listRoomParticipantsHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// ResultsServiceClient calls the ResultsService.
type ResultsServiceClient struct {
	getRoomResult        *connect.Client[GetRoomResultRequest, GetRoomResultResponse]
	listRoomParticipants *connect.Client[ListRoomParticipantsRequest, ListRoomParticipantsResponse]
}

// NewResultsServiceClient creates a JSON client for the service at baseURL.
func NewResultsServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ResultsServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &ResultsServiceClient{
		getRoomResult: connect.NewClient[GetRoomResultRequest, GetRoomResultResponse](
			httpClient,
			baseURL+ResultsServiceGetRoomResultProcedure,
			opts...,
		),
		listRoomParticipants: connect.NewClient[ListRoomParticipantsRequest, ListRoomParticipantsResponse](
			httpClient,
			baseURL+ResultsServiceListRoomParticipantsProcedure,
			opts...,
		),
	}
}

func (c *ResultsServiceClient) GetRoomResult(ctx context.Context, req *connect.Request[GetRoomResultRequest]) (*connect.Response[GetRoomResultResponse], error) {
	return c.getRoomResult.CallUnary(ctx, req)
}

func (c *ResultsServiceClient) ListRoomParticipants(ctx context.Context, req *connect.Request[ListRoomParticipantsRequest]) (*connect.Response[ListRoomParticipantsResponse], error) {
	return c.listRoomParticipants.CallUnary(ctx, req)
}
