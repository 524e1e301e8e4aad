package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestRegisterCaptureStreamServer_DoesNotPanic(t *testing.T) {
	s := grpc.NewServer()
	assert.NotPanics(t, func() {
		RegisterCaptureStreamServer(s, UnimplementedCaptureStreamServer{})
	})
}

func TestUnimplementedCaptureStreamServer_ListTargetsReturnsNil(t *testing.T) {
	var srv UnimplementedCaptureStreamServer
	resp, err := srv.ListTargets(context.Background(), &ListTargetsRequest{})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestUnimplementedCaptureStreamServer_SubscribeReturnsNil(t *testing.T) {
	var srv UnimplementedCaptureStreamServer
	err := srv.Subscribe(&SubscribeRequest{}, nil)
	assert.NoError(t, err)
}

func TestDirectionConstants_MatchWireValues(t *testing.T) {
	assert.Equal(t, Direction(0), Direction_INBOUND)
	assert.Equal(t, Direction(1), Direction_OUTBOUND)
}
