package grpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"

	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// RunClient calls the MMP service.
type RunClient struct {
	cc grpc.ClientConnInterface
}

// NewRunClient wraps an established connection.
func NewRunClient(cc grpc.ClientConnInterface) *RunClient {
	return &RunClient{cc: cc}
}

// Run submits req and waits for the whole response.
func (c *RunClient) Run(ctx context.Context, req *mmp.RunRequest, opts ...grpc.CallOption) (*mmp.RunResponse, error) {
	out := new(mmp.RunResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, runMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RunStream submits req and calls fn for every event until the summary.
func (c *RunClient) RunStream(ctx context.Context, req *mmp.RunRequest, fn func(*RunEvent) error, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], runStreamMethod, opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		ev := new(RunEvent)
		if err := stream.RecvMsg(ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
