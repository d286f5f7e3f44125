package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "carebook.v1.AppointmentsService"

type AppointmentsServiceServer interface {
	CreateAppointment(context.Context, *CreateAppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*AppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	UpdateAppointment(context.Context, *UpdateAppointmentRequest) (*AppointmentResponse, error)
	CancelAppointment(context.Context, *CancelAppointmentRequest) (*AppointmentResponse, error)
	RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*RescheduleAppointmentResponse, error)
	CompleteAppointment(context.Context, *CompleteAppointmentRequest) (*AppointmentResponse, error)
	ConfirmAppointment(context.Context, *TransitionRequest) (*AppointmentResponse, error)
	StartAppointment(context.Context, *TransitionRequest) (*AppointmentResponse, error)
	MarkAppointmentMissed(context.Context, *TransitionRequest) (*AppointmentResponse, error)
	GetAvailability(context.Context, *GetAvailabilityRequest) (*GetAvailabilityResponse, error)
	GetStatistics(context.Context, *GetStatisticsRequest) (*GetStatisticsResponse, error)
	ArchiveAccountAppointments(context.Context, *ArchiveAccountAppointmentsRequest) (*ArchiveAccountAppointmentsResponse, error)
}

type server = AppointmentsServiceServer

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateAppointment", server.CreateAppointment),
		unary("GetAppointment", server.GetAppointment),
		unary("ListAppointments", server.ListAppointments),
		unary("UpdateAppointment", server.UpdateAppointment),
		unary("CancelAppointment", server.CancelAppointment),
		unary("RescheduleAppointment", server.RescheduleAppointment),
		unary("CompleteAppointment", server.CompleteAppointment),
		unary("ConfirmAppointment", server.ConfirmAppointment),
		unary("StartAppointment", server.StartAppointment),
		unary("MarkAppointmentMissed", server.MarkAppointmentMissed),
		unary("GetAvailability", server.GetAvailability),
		unary("GetStatistics", server.GetStatistics),
		unary("ArchiveAccountAppointments", server.ArchiveAccountAppointments),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carebook/v1/appointments",
}

func RegisterAppointmentsServiceServer(r grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary adapts a typed server method to grpc's untyped method handler.
func unary[Req, Resp any](method string, call func(AppointmentsServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(AppointmentsServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
