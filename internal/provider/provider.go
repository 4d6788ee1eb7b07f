package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Credentials identify one OCI API key.
type Credentials struct {
	TenancyID   string
	UserID      string
	Region      string
	Fingerprint string
	PrivateKey  string
}

// Reader is the read-only surface. Validation only ever receives a Reader.
type Reader interface {
	GetUser(ctx context.Context, userID string) (User, error)
	ListCompartments(ctx context.Context, tenancyID string) ([]Compartment, error)
	ListAvailabilityDomains(ctx context.Context, compartmentID string) ([]AvailabilityDomain, error)
	ListFaultDomains(ctx context.Context, compartmentID, availabilityDomain string) ([]FaultDomain, error)
	ListShapes(ctx context.Context, compartmentID, availabilityDomain string) ([]Shape, error)
	// ListImages returns AVAILABLE images compatible with shape.
	ListImages(ctx context.Context, compartmentID, shape string) ([]Image, error)
	ListBootVolumes(ctx context.Context, compartmentID, availabilityDomain string) ([]BootVolume, error)
	GetBootVolume(ctx context.Context, bootVolumeID string) (BootVolume, error)
	ListBootVolumeAttachments(ctx context.Context, compartmentID, availabilityDomain, instanceID, bootVolumeID string) ([]BootVolumeAttachment, error)
	ListVcns(ctx context.Context, compartmentID string) ([]Vcn, error)
	GetVcn(ctx context.Context, vcnID string) (Vcn, error)
	ListSubnets(ctx context.Context, compartmentID, vcnID string) ([]Subnet, error)
	GetSubnet(ctx context.Context, subnetID string) (Subnet, error)
	ListInstances(ctx context.Context, compartmentID string) ([]Instance, error)
	GetInstance(ctx context.Context, instanceID string) (Instance, error)
	ListInstanceVnics(ctx context.Context, compartmentID, instanceID string) ([]Vnic, error)
}

// Writer is the mutating surface.
type Writer interface {
	LaunchInstance(ctx context.Context, req LaunchRequest) (Instance, error)
	RenameInstance(ctx context.Context, instanceID, displayName string) (Instance, error)
	TerminateInstance(ctx context.Context, instanceID string, preserveBootVolume bool) error
	InstanceAction(ctx context.Context, instanceID string, action PowerAction) (Instance, error)
	DeleteBootVolume(ctx context.Context, bootVolumeID string) error
	CreateVcn(ctx context.Context, compartmentID, displayName, cidr string) (Vcn, error)
	DeleteVcn(ctx context.Context, vcnID string) error
}

// Client is a provider bound to one set of credentials.
type Client interface {
	Reader
	Writer
}

// Factory opens clients for credentials.
type Factory interface {
	Open(ctx context.Context, creds Credentials) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, creds Credentials) (Client, error)

// Open calls f.
func (f FactoryFunc) Open(ctx context.Context, creds Credentials) (Client, error) {
	return f(ctx, creds)
}

// Error is a provider call failure carrying the machine status and message.
type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.Status)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, code, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a provider error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Status == http.StatusNotFound
}

// NotFound builds a 404 error.
func NotFound(op, what string) *Error {
	return &Error{Op: op, Status: http.StatusNotFound, Code: "NotAuthorizedOrNotFound", Message: what + " not found"}
}
