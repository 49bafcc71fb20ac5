package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// ServiceName is the fully qualified name of the MMP service.
const ServiceName = "mmp.v1.MMPService"

const (
	runMethod       = "/" + ServiceName + "/Run"
	runStreamMethod = "/" + ServiceName + "/RunStream"
)

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error)
}

// RunEvent is one message of a RunStream response.  Exactly one field is
// set; the summary is always the last event.
type RunEvent struct {
	Row         *mmp.TransformRow   `json:"row,omitempty"`
	Unprocessed *mmp.UnprocessedRow `json:"unprocessed,omitempty"`
	Failure     *mmp.PairFailure    `json:"failure,omitempty"`
	Summary     *mmp.RunSummary     `json:"summary,omitempty"`
}

// RunService implements the MMP service over a Runner.
type RunService struct {
	runner        Runner
	maxStructures int
	logger        logging.Logger
}

// NewRunService rejects requests with more than maxStructures inputs; 0
// means unlimited.
func NewRunService(runner Runner, maxStructures int, logger logging.Logger) *RunService {
	return &RunService{runner: runner, maxStructures: maxStructures, logger: logger.Named("grpc.run")}
}

// Register adds the service to srv.
func (s *RunService) Register(srv *Server) {
	srv.RegisterService(&ServiceDesc, s)
}

// Run executes the request and returns the whole response in one message.
func (s *RunService) Run(ctx context.Context, req *mmp.RunRequest) (*mmp.RunResponse, error) {
	if err := s.checkSize(req); err != nil {
		return nil, err
	}
	resp, err := s.runner.Run(ctx, *req)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return resp, nil
}

// RunStream executes the request and sends its rows one event at a time,
// which keeps large runs under the message size limit.
func (s *RunService) RunStream(req *mmp.RunRequest, stream grpc.ServerStream) error {
	if err := req.Validate(); err != nil {
		return status.Errorf(codes.InvalidArgument, "validation failed: %s", err.Error())
	}
	if err := s.checkSize(req); err != nil {
		return err
	}
	resp, err := s.runner.Run(stream.Context(), *req)
	if err != nil {
		return s.toStatus(err)
	}

	for i := range resp.Rows {
		if err := stream.SendMsg(&RunEvent{Row: &resp.Rows[i]}); err != nil {
			return err
		}
	}
	for i := range resp.Unprocessed {
		if err := stream.SendMsg(&RunEvent{Unprocessed: &resp.Unprocessed[i]}); err != nil {
			return err
		}
	}
	for i := range resp.Failures {
		if err := stream.SendMsg(&RunEvent{Failure: &resp.Failures[i]}); err != nil {
			return err
		}
	}
	return stream.SendMsg(&RunEvent{Summary: &resp.Summary})
}

func (s *RunService) checkSize(req *mmp.RunRequest) error {
	if s.maxStructures > 0 && len(req.Structures) > s.maxStructures {
		return status.Errorf(codes.InvalidArgument, "%d structures exceed the limit of %d", len(req.Structures), s.maxStructures)
	}
	return nil
}

// toStatus maps an AppError to a gRPC status.  Server-side details are
// logged and masked.
func (s *RunService) toStatus(err error) error {
	code := errors.GetCode(err)
	switch code {
	case errors.CodeCancelled:
		return status.Error(codes.Canceled, errors.DefaultMessageForCode(code))
	case errors.CodeNotFound:
		return status.Error(codes.NotFound, errors.Describe(err))
	case errors.ErrCodeTimeout:
		return status.Error(codes.DeadlineExceeded, errors.DefaultMessageForCode(code))
	case errors.ErrCodeNotImplemented:
		return status.Error(codes.Unimplemented, errors.Describe(err))
	}
	if errors.IsClientError(code) {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("%s: %s", code, errors.Describe(err)))
	}

	s.logger.Error("run failed", logging.Err(err))
	switch code {
	case errors.ErrCodeExternalService, errors.ErrCodeServiceUnavailable,
		errors.ErrCodeStorageError, errors.ErrCodeMessageQueueError, errors.ErrCodeSearchError:
		return status.Error(codes.Unavailable, errors.DefaultMessageForCode(code))
	}
	return status.Error(codes.Internal, errors.DefaultMessageForCode(code))
}

type runServer interface {
	Run(ctx context.Context, req *mmp.RunRequest) (*mmp.RunResponse, error)
	RunStream(req *mmp.RunRequest, stream grpc.ServerStream) error
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(mmp.RunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(runServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(runServer).Run(ctx, req.(*mmp.RunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func runStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(mmp.RunRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(runServer).RunStream(in, stream)
}

// ServiceDesc describes the MMP service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*runServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "RunStream", Handler: runStreamHandler, ServerStreams: true},
	},
	Metadata: "mmp/v1/mmp.proto",
}
