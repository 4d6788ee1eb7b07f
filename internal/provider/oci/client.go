// Package oci implements provider.Client on top of the OCI Go SDK.
package oci

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"

	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/internal/provider"
)

// Options tune the SDK clients.
type Options struct {
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Factory opens SDK-backed clients.
type Factory struct {
	opts Options
}

// NewFactory returns a factory with defaults applied.
func NewFactory(opts Options) *Factory {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Factory{opts: opts}
}

// Open builds identity, compute, network and block storage clients for creds.
func (f *Factory) Open(_ context.Context, creds provider.Credentials) (provider.Client, error) {
	cfg := common.NewRawConfigurationProvider(creds.TenancyID, creds.UserID, creds.Region, creds.Fingerprint, creds.PrivateKey, nil)
	httpClient := &http.Client{Timeout: f.opts.Timeout}

	idc, err := identity.NewIdentityClientWithConfigurationProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("oci: identity client: %w", err)
	}
	idc.HTTPClient = httpClient
	compute, err := core.NewComputeClientWithConfigurationProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("oci: compute client: %w", err)
	}
	compute.HTTPClient = httpClient
	network, err := core.NewVirtualNetworkClientWithConfigurationProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("oci: network client: %w", err)
	}
	network.HTTPClient = httpClient
	storage, err := core.NewBlockstorageClientWithConfigurationProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("oci: blockstorage client: %w", err)
	}
	storage.HTTPClient = httpClient

	return &Client{
		identity: idc,
		compute:  compute,
		network:  network,
		storage:  storage,
	}, nil
}

// Client adapts SDK clients to provider.Client.
type Client struct {
	identity identity.IdentityClient
	compute  core.ComputeClient
	network  core.VirtualNetworkClient
	storage  core.BlockstorageClient
}

var _ provider.Client = (*Client)(nil)

// call logs one SDK round trip and converts SDK service errors.
func call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.Duration("duration", logger.Took(start)),
		slog.String("status", logger.Status(err)),
	}
	if err != nil {
		if svc, ok := common.IsServiceError(err); ok {
			attrs = append(attrs, slog.String("opc_request_id", svc.GetOpcRequestID()))
		}
		err = convert(op, err)
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Warn(ctx, "provider.oci", "provider.call", attrs...)
		return err
	}
	logger.Debug(ctx, "provider.oci", "provider.call", attrs...)
	return nil
}

func convert(op string, err error) error {
	if svc, ok := common.IsServiceError(err); ok {
		return &provider.Error{
			Op:      op,
			Status:  svc.GetHTTPStatusCode(),
			Code:    svc.GetCode(),
			Message: svc.GetMessage(),
			Err:     err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &provider.Error{Op: op, Status: http.StatusGatewayTimeout, Code: "Timeout", Message: err.Error(), Err: err}
	}
	return &provider.Error{Op: op, Status: 0, Code: "ClientError", Message: err.Error(), Err: err}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float32) float32 {
	if f == nil {
		return 0
	}
	return *f
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return common.String(s)
}
