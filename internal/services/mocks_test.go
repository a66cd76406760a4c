package services

import (
	"context"
	"net"

	"github.com/stretchr/testify/mock"

	"startvnc/internal/models"
	"startvnc/pkg/rfb"
)

// mockSSHClient is a mock implementation of the sshclient.Client interface.
type mockSSHClient struct {
	mock.Mock
}

func (m *mockSSHClient) Output(ctx context.Context, cmd string) ([]byte, error) {
	args := m.Called(ctx, cmd)
	var output []byte
	if args.Get(0) != nil {
		output = args.Get(0).([]byte)
	}
	return output, args.Error(1)
}

func (m *mockSSHClient) Shell(cmd string) error {
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *mockSSHClient) Dial(network, addr string) (net.Conn, error) {
	args := m.Called(network, addr)
	var conn net.Conn
	if args.Get(0) != nil {
		conn = args.Get(0).(net.Conn)
	}
	return conn, args.Error(1)
}

func (m *mockSSHClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// mockServerController is a mock implementation of the serverController
// interface.
type mockServerController struct {
	mock.Mock
}

func (m *mockServerController) IsRunning(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockServerController) Start(ctx context.Context, interactive bool) error {
	args := m.Called(ctx, interactive)
	return args.Error(0)
}

func (m *mockServerController) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockServerController) Preflight(ctx context.Context) models.PreflightReport {
	args := m.Called(ctx)
	return args.Get(0).(models.PreflightReport)
}

// mockTunnelController is a mock implementation of the Tunnel interface.
type mockTunnelController struct {
	mock.Mock
}

func (m *mockTunnelController) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockTunnelController) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockTunnelController) LocalPort() int {
	args := m.Called()
	return args.Int(0)
}

func (m *mockTunnelController) WaitReady(ctx context.Context) (rfb.Version, error) {
	args := m.Called(ctx)
	return args.Get(0).(rfb.Version), args.Error(1)
}

// mockViewerController is a mock implementation of the viewerController
// interface.
type mockViewerController struct {
	mock.Mock
}

func (m *mockViewerController) RunningViewers() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *mockViewerController) Launch(ctx context.Context, port int) error {
	args := m.Called(ctx, port)
	return args.Error(0)
}
