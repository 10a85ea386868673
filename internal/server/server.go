// Package server implements the ConnectRPC control API of regorusd.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/dantte-lp/regorus/internal/regorus"
	"github.com/dantte-lp/regorus/pkg/regorusapi"
)

// Sentinel errors returned to API clients.
var (
	// ErrEmptyInterfaceName indicates a request without an interface name.
	ErrEmptyInterfaceName = errors.New("interface name is required")

	// ErrCardNotFound indicates no card exists for the interface.
	ErrCardNotFound = errors.New("card not found")

	// ErrUnknownStatus indicates a ListCards filter that names no status.
	ErrUnknownStatus = errors.New("unknown card status")

	// ErrConfigureReserved indicates the configuration exchange is reserved.
	ErrConfigureReserved = errors.New("configuration exchange is reserved")
)

// Engine is the subset of the discovery engine used by the API.
type Engine interface {
	Probe(ctx context.Context, name string) (regorus.ProbeResult, error)
	Card(name string) (regorus.CardSnapshot, bool)
	Cards() []regorus.CardSnapshot
	Subscribe() (<-chan regorus.CardChange, func())
}

// RegorusServer implements regorusapi.Handler.
//
// Each RPC delegates to the Engine. The server is a thin adapter between
// the API and the engine.
type RegorusServer struct {
	engine Engine
	logger *slog.Logger
}

// verify interface compliance at compile time.
var _ regorusapi.Handler = (*RegorusServer)(nil)

// New creates a RegorusServer and returns its HTTP handler and mount path.
func New(engine Engine, logger *slog.Logger, opts ...connect.HandlerOption) (string, http.Handler) {
	srv := &RegorusServer{
		engine: engine,
		logger: logger.With(slog.String("component", "server")),
	}
	return regorusapi.NewHandler(srv, opts...)
}

// Probe starts discovery on an interface or reports the existing card.
func (s *RegorusServer) Probe(ctx context.Context, req *regorusapi.ProbeRequest) (*regorusapi.ProbeResponse, error) {
	if req.InterfaceName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrEmptyInterfaceName)
	}

	res, err := s.engine.Probe(ctx, req.InterfaceName)
	if err != nil {
		return nil, mapEngineError(err)
	}

	s.logger.DebugContext(ctx, "probe handled",
		slog.String("interface", req.InterfaceName),
		slog.Bool("found", res.Found),
		slog.String("status", res.Status.String()),
	)

	return &regorusapi.ProbeResponse{
		Found:  res.Found,
		Status: res.Status.String(),
	}, nil
}

// Configure is reserved for the Req/Rep configuration exchange.
func (s *RegorusServer) Configure(ctx context.Context, req *regorusapi.ConfigureRequest) (*regorusapi.ConfigureResponse, error) {
	s.logger.DebugContext(ctx, "configure requested",
		slog.String("interface", req.InterfaceName),
		slog.String("info", fmt.Sprintf("%#x", req.Info)),
	)
	return nil, connect.NewError(connect.CodeUnimplemented, ErrConfigureReserved)
}

// ListCards returns all cards, optionally filtered by status.
func (s *RegorusServer) ListCards(_ context.Context, req *regorusapi.ListCardsRequest) (*regorusapi.ListCardsResponse, error) {
	if req.Status != "" && !knownStatus(req.Status) {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%q: %w", req.Status, ErrUnknownStatus))
	}

	snaps := s.engine.Cards()
	cards := make([]*regorusapi.Card, 0, len(snaps))
	for _, snap := range snaps {
		if req.Status != "" && snap.Status.String() != req.Status {
			continue
		}
		cards = append(cards, cardToAPI(snap))
	}

	return &regorusapi.ListCardsResponse{Cards: cards}, nil
}

// GetCard returns one card by interface name.
func (s *RegorusServer) GetCard(_ context.Context, req *regorusapi.GetCardRequest) (*regorusapi.GetCardResponse, error) {
	if req.InterfaceName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrEmptyInterfaceName)
	}

	snap, ok := s.engine.Card(req.InterfaceName)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound,
			fmt.Errorf("%s: %w", req.InterfaceName, ErrCardNotFound))
	}

	return &regorusapi.GetCardResponse{Card: cardToAPI(snap)}, nil
}

// WatchCards streams card status changes until the client disconnects or
// the engine closes. With IncludeCurrent, every existing card is sent
// first as a "current" event.
func (s *RegorusServer) WatchCards(
	ctx context.Context,
	req *regorusapi.WatchCardsRequest,
	stream *connect.ServerStream[regorusapi.WatchCardsResponse],
) error {
	// Subscribe before the snapshot so no change falls in between.
	changes, cancel := s.engine.Subscribe()
	defer cancel()

	if req.IncludeCurrent {
		for _, snap := range s.engine.Cards() {
			if err := stream.Send(&regorusapi.WatchCardsResponse{
				Type: regorusapi.EventTypeCurrent,
				Card: cardToAPI(snap),
			}); err != nil {
				return fmt.Errorf("send current card %s: %w", snap.Name, err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cc, ok := <-changes:
			if !ok {
				return nil
			}
			if err := stream.Send(s.changeToAPI(cc)); err != nil {
				return fmt.Errorf("send card change %s: %w", cc.Name, err)
			}
		}
	}
}

func (s *RegorusServer) changeToAPI(cc regorus.CardChange) *regorusapi.WatchCardsResponse {
	resp := &regorusapi.WatchCardsResponse{
		Type:           regorusapi.EventTypeStatusChange,
		PreviousStatus: cc.OldStatus.String(),
		Event:          cc.Event.String(),
		Timestamp:      cc.Timestamp,
	}

	if snap, ok := s.engine.Card(cc.Name); ok {
		resp.Card = cardToAPI(snap)
	} else {
		resp.Card = &regorusapi.Card{Name: cc.Name, Status: cc.NewStatus.String()}
	}

	return resp
}

// -------------------------------------------------------------------------
// Conversion
// -------------------------------------------------------------------------

func cardToAPI(snap regorus.CardSnapshot) *regorusapi.Card {
	c := &regorusapi.Card{
		Name:             snap.Name,
		Status:           snap.Status.String(),
		RetriesLeft:      snap.RetriesLeft,
		RetriesExhausted: snap.RetriesExhausted,
		TimerArmed:       snap.TimerArmed,
		LinkUp:           snap.LinkUp,
		ProbesSent:       snap.ProbesSent,
		Confirmations:    snap.Confirmations,
		CreatedAt:        snap.CreatedAt,
		LastProbeAt:      snap.LastProbeAt,
		DetectedAt:       snap.DetectedAt,
	}
	if len(snap.HardwareAddr) > 0 {
		c.HardwareAddr = snap.HardwareAddr.String()
	}
	return c
}

func knownStatus(s string) bool {
	return s == regorusapi.StatusDetecting || s == regorusapi.StatusDetected
}

// mapEngineError translates engine errors into connect codes.
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, regorus.ErrInvalidInterfaceName):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, regorus.ErrUnknownInterface):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, regorus.ErrEngineClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
