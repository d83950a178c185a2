package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SyncServiceName    = "roombook.v1.SyncService"
	BookingServiceName = "roombook.v1.BookingService"
)

// SyncServer is the server API for SyncService.
type SyncServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	Sync(context.Context, *SyncRequest) (*SyncResponse, error)
	ListPending(context.Context, *ListPendingRequest) (*ListOperationsResponse, error)
	ListQuarantined(context.Context, *ListQuarantinedRequest) (*ListOperationsResponse, error)
	Requeue(context.Context, *RequeueRequest) (*RequeueResponse, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStreamingServer[EventEnvelope]) error
}

// BookingServer is the server API for BookingService.
type BookingServer interface {
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsResponse, error)
	ListBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
	Book(context.Context, *BookingRequest) (*BookResponse, error)
	Waitlist(context.Context, *BookingRequest) (*BookResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	CheckConflicts(context.Context, *BookingRequest) (*CheckConflictsResponse, error)
	Suggest(context.Context, *BookingRequest) (*SuggestResponse, error)
	Override(context.Context, *OverrideRequest) (*OverrideResponse, error)
}

// SyncServiceDesc describes SyncService for grpc.Server.RegisterService.
var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(SyncServiceName, "GetStatus", SyncServer.GetStatus),
		unaryMethod(SyncServiceName, "Sync", SyncServer.Sync),
		unaryMethod(SyncServiceName, "ListPending", SyncServer.ListPending),
		unaryMethod(SyncServiceName, "ListQuarantined", SyncServer.ListQuarantined),
		unaryMethod(SyncServiceName, "Requeue", SyncServer.Requeue),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
}

// BookingServiceDesc describes BookingService for grpc.Server.RegisterService.
var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(BookingServiceName, "ListRooms", BookingServer.ListRooms),
		unaryMethod(BookingServiceName, "ListBookings", BookingServer.ListBookings),
		unaryMethod(BookingServiceName, "Book", BookingServer.Book),
		unaryMethod(BookingServiceName, "Waitlist", BookingServer.Waitlist),
		unaryMethod(BookingServiceName, "Cancel", BookingServer.Cancel),
		unaryMethod(BookingServiceName, "CheckConflicts", BookingServer.CheckConflicts),
		unaryMethod(BookingServiceName, "Suggest", BookingServer.Suggest),
		unaryMethod(BookingServiceName, "Override", BookingServer.Override),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterSyncServer registers srv on s.
func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}

// RegisterBookingServer registers srv on s.
func RegisterBookingServer(s grpc.ServiceRegistrar, srv BookingServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

// unaryMethod builds the handler generated code would emit for a unary RPC.
func unaryMethod[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SyncServer).WatchEvents(in, &grpc.GenericServerStream[WatchEventsRequest, EventEnvelope]{ServerStream: stream})
}

// SyncClient is the client API for SyncService.
type SyncClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncClient(cc grpc.ClientConnInterface) *SyncClient {
	return &SyncClient{cc: cc}
}

func (c *SyncClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c.cc, SyncServiceName, "GetStatus", in, opts)
}

func (c *SyncClient) Sync(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, SyncServiceName, "Sync", in, opts)
}

func (c *SyncClient) ListPending(ctx context.Context, in *ListPendingRequest, opts ...grpc.CallOption) (*ListOperationsResponse, error) {
	return invoke[ListOperationsResponse](ctx, c.cc, SyncServiceName, "ListPending", in, opts)
}

func (c *SyncClient) ListQuarantined(ctx context.Context, in *ListQuarantinedRequest, opts ...grpc.CallOption) (*ListOperationsResponse, error) {
	return invoke[ListOperationsResponse](ctx, c.cc, SyncServiceName, "ListQuarantined", in, opts)
}

func (c *SyncClient) Requeue(ctx context.Context, in *RequeueRequest, opts ...grpc.CallOption) (*RequeueResponse, error) {
	return invoke[RequeueResponse](ctx, c.cc, SyncServiceName, "Requeue", in, opts)
}

func (c *SyncClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[EventEnvelope], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &SyncServiceDesc.Streams[0], "/"+SyncServiceName+"/WatchEvents", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchEventsRequest, EventEnvelope]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// BookingClient is the client API for BookingService.
type BookingClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingClient(cc grpc.ClientConnInterface) *BookingClient {
	return &BookingClient{cc: cc}
}

func (c *BookingClient) ListRooms(ctx context.Context, in *ListRoomsRequest, opts ...grpc.CallOption) (*ListRoomsResponse, error) {
	return invoke[ListRoomsResponse](ctx, c.cc, BookingServiceName, "ListRooms", in, opts)
}

func (c *BookingClient) ListBookings(ctx context.Context, in *ListBookingsRequest, opts ...grpc.CallOption) (*ListBookingsResponse, error) {
	return invoke[ListBookingsResponse](ctx, c.cc, BookingServiceName, "ListBookings", in, opts)
}

func (c *BookingClient) Book(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookResponse, error) {
	return invoke[BookResponse](ctx, c.cc, BookingServiceName, "Book", in, opts)
}

func (c *BookingClient) Waitlist(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookResponse, error) {
	return invoke[BookResponse](ctx, c.cc, BookingServiceName, "Waitlist", in, opts)
}

func (c *BookingClient) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	return invoke[CancelResponse](ctx, c.cc, BookingServiceName, "Cancel", in, opts)
}

func (c *BookingClient) CheckConflicts(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*CheckConflictsResponse, error) {
	return invoke[CheckConflictsResponse](ctx, c.cc, BookingServiceName, "CheckConflicts", in, opts)
}

func (c *BookingClient) Suggest(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*SuggestResponse, error) {
	return invoke[SuggestResponse](ctx, c.cc, BookingServiceName, "Suggest", in, opts)
}

func (c *BookingClient) Override(ctx context.Context, in *OverrideRequest, opts ...grpc.CallOption) (*OverrideResponse, error) {
	return invoke[OverrideResponse](ctx, c.cc, BookingServiceName, "Override", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
