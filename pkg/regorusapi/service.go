package regorusapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ServiceName is the fully qualified name of the regorus control service.
const ServiceName = "regorus.v1.RegorusService"

// Procedure paths of the regorus control service.
const (
	ProbeProcedure      = "/" + ServiceName + "/Probe"
	ConfigureProcedure  = "/" + ServiceName + "/Configure"
	ListCardsProcedure  = "/" + ServiceName + "/ListCards"
	GetCardProcedure    = "/" + ServiceName + "/GetCard"
	WatchCardsProcedure = "/" + ServiceName + "/WatchCards"
)

// errUnimplemented is returned by UnimplementedHandler methods.
var errUnimplemented = errors.New("not implemented")

// -------------------------------------------------------------------------
// Handler
// -------------------------------------------------------------------------

// Handler is the server side of the regorus control service.
type Handler interface {
	Probe(ctx context.Context, req *ProbeRequest) (*ProbeResponse, error)
	Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error)
	ListCards(ctx context.Context, req *ListCardsRequest) (*ListCardsResponse, error)
	GetCard(ctx context.Context, req *GetCardRequest) (*GetCardResponse, error)
	WatchCards(ctx context.Context, req *WatchCardsRequest, stream *connect.ServerStream[WatchCardsResponse]) error
}

// UnimplementedHandler answers every procedure with CodeUnimplemented.
// Embed it to implement a subset of Handler.
type UnimplementedHandler struct{}

func (UnimplementedHandler) Probe(context.Context, *ProbeRequest) (*ProbeResponse, error) {
	return nil, unimplemented(ProbeProcedure)
}

func (UnimplementedHandler) Configure(context.Context, *ConfigureRequest) (*ConfigureResponse, error) {
	return nil, unimplemented(ConfigureProcedure)
}

func (UnimplementedHandler) ListCards(context.Context, *ListCardsRequest) (*ListCardsResponse, error) {
	return nil, unimplemented(ListCardsProcedure)
}

func (UnimplementedHandler) GetCard(context.Context, *GetCardRequest) (*GetCardResponse, error) {
	return nil, unimplemented(GetCardProcedure)
}

func (UnimplementedHandler) WatchCards(context.Context, *WatchCardsRequest, *connect.ServerStream[WatchCardsResponse]) error {
	return unimplemented(WatchCardsProcedure)
}

func unimplemented(procedure string) error {
	return connect.NewError(connect.CodeUnimplemented,
		errors.New(strings.TrimPrefix(procedure, "/")+" "+errUnimplemented.Error()))
}

// NewHandler builds an HTTP handler for svc. It returns the path prefix to
// mount the handler on. The JSON codec is always installed; opts add
// interceptors and other handler options.
func NewHandler(svc Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	probe := unaryHandler(ProbeProcedure, svc.Probe, opts)
	configure := unaryHandler(ConfigureProcedure, svc.Configure, opts)
	listCards := unaryHandler(ListCardsProcedure, svc.ListCards, opts)
	getCard := unaryHandler(GetCardProcedure, svc.GetCard, opts)
	watchCards := connect.NewServerStreamHandler(WatchCardsProcedure,
		func(ctx context.Context, req *connect.Request[WatchCardsRequest], stream *connect.ServerStream[WatchCardsResponse]) error {
			return svc.WatchCards(ctx, req.Msg, stream)
		},
		opts...,
	)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ProbeProcedure:
			probe.ServeHTTP(w, r)
		case ConfigureProcedure:
			configure.ServeHTTP(w, r)
		case ListCardsProcedure:
			listCards.ServeHTTP(w, r)
		case GetCardProcedure:
			getCard.ServeHTTP(w, r)
		case WatchCardsProcedure:
			watchCards.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func unaryHandler[Req, Res any](
	procedure string,
	fn func(context.Context, *Req) (*Res, error),
	opts []connect.HandlerOption,
) *connect.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	)
}

// -------------------------------------------------------------------------
// Client
// -------------------------------------------------------------------------

// Client is the client side of the regorus control service.
type Client interface {
	Probe(ctx context.Context, req *ProbeRequest) (*ProbeResponse, error)
	Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error)
	ListCards(ctx context.Context, req *ListCardsRequest) (*ListCardsResponse, error)
	GetCard(ctx context.Context, req *GetCardRequest) (*GetCardResponse, error)
	WatchCards(ctx context.Context, req *WatchCardsRequest) (*connect.ServerStreamForClient[WatchCardsResponse], error)
}

type client struct {
	probe      *connect.Client[ProbeRequest, ProbeResponse]
	configure  *connect.Client[ConfigureRequest, ConfigureResponse]
	listCards  *connect.Client[ListCardsRequest, ListCardsResponse]
	getCard    *connect.Client[GetCardRequest, GetCardResponse]
	watchCards *connect.Client[WatchCardsRequest, WatchCardsResponse]
}

// NewClient returns a Client for the daemon at baseURL
// (e.g. "http://localhost:50061").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)

	return &client{
		probe:      connect.NewClient[ProbeRequest, ProbeResponse](httpClient, baseURL+ProbeProcedure, opts...),
		configure:  connect.NewClient[ConfigureRequest, ConfigureResponse](httpClient, baseURL+ConfigureProcedure, opts...),
		listCards:  connect.NewClient[ListCardsRequest, ListCardsResponse](httpClient, baseURL+ListCardsProcedure, opts...),
		getCard:    connect.NewClient[GetCardRequest, GetCardResponse](httpClient, baseURL+GetCardProcedure, opts...),
		watchCards: connect.NewClient[WatchCardsRequest, WatchCardsResponse](httpClient, baseURL+WatchCardsProcedure, opts...),
	}
}

func (c *client) Probe(ctx context.Context, req *ProbeRequest) (*ProbeResponse, error) {
	return callUnary(ctx, c.probe, req)
}

func (c *client) Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error) {
	return callUnary(ctx, c.configure, req)
}

func (c *client) ListCards(ctx context.Context, req *ListCardsRequest) (*ListCardsResponse, error) {
	return callUnary(ctx, c.listCards, req)
}

func (c *client) GetCard(ctx context.Context, req *GetCardRequest) (*GetCardResponse, error) {
	return callUnary(ctx, c.getCard, req)
}

func (c *client) WatchCards(ctx context.Context, req *WatchCardsRequest) (*connect.ServerStreamForClient[WatchCardsResponse], error) {
	return c.watchCards.CallServerStream(ctx, connect.NewRequest(req))
}

func callUnary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
