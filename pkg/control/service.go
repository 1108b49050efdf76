package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Pause", Handler: unaryHandler("Pause", ControlServer.Pause)},
		{MethodName: "Resume", Handler: unaryHandler("Resume", ControlServer.Resume)},
		{MethodName: "Stop", Handler: unaryHandler("Stop", ControlServer.Stop)},
		{MethodName: "Status", Handler: unaryHandler("Status", ControlServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "diskfiller/control/v1/control.proto",
}

// unaryHandler adapts a ControlServer method taking Empty to the shape
// grpc.MethodDesc expects.
func unaryHandler[R any](method string, call func(ControlServer, context.Context, *emptypb.Empty) (R, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + method

	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ControlServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}
