package rpc

import (
	"context"
	"net"

	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
	"github.com/spooky-finn/gatews-bridge/usecase"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

var logger = logging.GetLogger().WithComponent("rpc")

const (
	ServiceName                 = "marketdata.MarketDataService"
	GetOrderBookSnapshotMethod  = "/" + ServiceName + "/GetOrderBookSnapshot"
	getOrderBookSnapshotHandler = "GetOrderBookSnapshot"
)

// MarketDataServiceServer serves local order books. Messages are
// google.protobuf.Struct values so clients need no generated code.
type MarketDataServiceServer interface {
	GetOrderBookSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var MarketDataService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketDataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: getOrderBookSnapshotHandler,
			Handler:    getOrderBookSnapshotHandlerFunc,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketdata.proto",
}

func getOrderBookSnapshotHandlerFunc(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketDataServiceServer).GetOrderBookSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetOrderBookSnapshotMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketDataServiceServer).GetOrderBookSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterMarketDataServiceServer(s grpc.ServiceRegistrar, srv MarketDataServiceServer) {
	s.RegisterService(&MarketDataService_ServiceDesc, srv)
}

type MarketDataServiceClient interface {
	GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type marketDataServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketDataServiceClient(cc grpc.ClientConnInterface) MarketDataServiceClient {
	return &marketDataServiceClient{cc}
}

func (c *marketDataServiceClient) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetOrderBookSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type server struct {
	orderbookSnapshotUseCase *usecase.OrderBookSnapshotUseCase
	validationService        *ValidationService
}

func NewServer(uc *usecase.OrderBookSnapshotUseCase, conf *ValidationServiceConfig) *server {
	return &server{
		orderbookSnapshotUseCase: uc,
		validationService:        NewValidationService(conf),
	}
}

// Serve listens on addr until ctx ends, then stops gracefully.
func Serve(ctx context.Context, addr string, srv MarketDataServiceServer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, lis, srv)
}

func ServeListener(ctx context.Context, lis net.Listener, srv MarketDataServiceServer) error {
	s := grpc.NewServer()
	RegisterMarketDataServiceServer(s, srv)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.WithField("addr", lis.Addr().String()).Info("grpc server listening")
	return s.Serve(lis)
}
