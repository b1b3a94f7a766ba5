package results

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room"
)

// ResultsApp defines what the service layer needs from the results application
type ResultsApp interface {
	GetRoomResult(ctx context.Context, req GetRoomResultRequest) (*GetRoomResultResponse, error)
	ListRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
}

// Service implements the ResultsService connect interface
type Service struct {
	app ResultsApp
}

// NewService creates a new results service
func NewService(app ResultsApp) *Service {
	return &Service{
		app: app,
	}
}

// Verify that Service implements the ResultsServiceHandler interface
var _ ResultsServiceHandler = (*Service)(nil)

// GetRoomResult returns the status and outcome of a room
func (s *Service) GetRoomResult(ctx context.Context, req *connect.Request[GetRoomResultRequest]) (*connect.Response[GetRoomResultResponse], error) {
	resp, err := s.app.GetRoomResult(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// ListRoomParticipants returns the roster of a room
func (s *Service) ListRoomParticipants(ctx context.Context, req *connect.Request[ListRoomParticipantsRequest]) (*connect.Response[ListRoomParticipantsResponse], error) {
	id, err := uuid.Parse(req.Msg.RoomID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	participants, err := s.app.ListRoomParticipants(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	if participants == nil {
		participants = []models.Participant{}
	}

	return connect.NewResponse(&ListRoomParticipantsResponse{
		Participants: participants,
	}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrMissingRoomRef), errors.Is(err, ErrInvalidRoomID):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, room.ErrRoomNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
