package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls AppointmentsService over any connection, always asking for
// the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, in *CreateAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "CreateAppointment", in, opts)
}

func (c *Client) GetAppointment(ctx context.Context, in *GetAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "GetAppointment", in, opts)
}

func (c *Client) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c, "ListAppointments", in, opts)
}

func (c *Client) UpdateAppointment(ctx context.Context, in *UpdateAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "UpdateAppointment", in, opts)
}

func (c *Client) CancelAppointment(ctx context.Context, in *CancelAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "CancelAppointment", in, opts)
}

func (c *Client) RescheduleAppointment(ctx context.Context, in *RescheduleAppointmentRequest, opts ...grpc.CallOption) (*RescheduleAppointmentResponse, error) {
	return invoke[RescheduleAppointmentResponse](ctx, c, "RescheduleAppointment", in, opts)
}

func (c *Client) CompleteAppointment(ctx context.Context, in *CompleteAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "CompleteAppointment", in, opts)
}

func (c *Client) ConfirmAppointment(ctx context.Context, in *TransitionRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "ConfirmAppointment", in, opts)
}

func (c *Client) StartAppointment(ctx context.Context, in *TransitionRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "StartAppointment", in, opts)
}

func (c *Client) MarkAppointmentMissed(ctx context.Context, in *TransitionRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "MarkAppointmentMissed", in, opts)
}

func (c *Client) GetAvailability(ctx context.Context, in *GetAvailabilityRequest, opts ...grpc.CallOption) (*GetAvailabilityResponse, error) {
	return invoke[GetAvailabilityResponse](ctx, c, "GetAvailability", in, opts)
}

func (c *Client) GetStatistics(ctx context.Context, in *GetStatisticsRequest, opts ...grpc.CallOption) (*GetStatisticsResponse, error) {
	return invoke[GetStatisticsResponse](ctx, c, "GetStatistics", in, opts)
}

func (c *Client) ArchiveAccountAppointments(ctx context.Context, in *ArchiveAccountAppointmentsRequest, opts ...grpc.CallOption) (*ArchiveAccountAppointmentsResponse, error) {
	return invoke[ArchiveAccountAppointmentsResponse](ctx, c, "ArchiveAccountAppointments", in, opts)
}
