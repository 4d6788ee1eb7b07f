package oci

import (
	"context"
	"fmt"
	"net/http"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"

	"github.com/m3rciful/ocipanel/internal/provider"
)

func (c *Client) LaunchInstance(ctx context.Context, req provider.LaunchRequest) (provider.Instance, error) {
	details, err := launchDetails(req)
	if err != nil {
		return provider.Instance{}, &provider.Error{Op: "LaunchInstance", Status: http.StatusBadRequest, Code: "InvalidParameter", Message: err.Error()}
	}
	var out provider.Instance
	err = call(ctx, "LaunchInstance", func() error {
		resp, err := c.compute.LaunchInstance(ctx, core.LaunchInstanceRequest{LaunchInstanceDetails: details})
		if err != nil {
			return err
		}
		out = instanceFrom(resp.Instance)
		return nil
	})
	return out, err
}

func launchDetails(req provider.LaunchRequest) (core.LaunchInstanceDetails, error) {
	d := core.LaunchInstanceDetails{
		CompartmentId:      common.String(req.CompartmentID),
		AvailabilityDomain: common.String(req.AvailabilityDomain),
		FaultDomain:        optional(req.FaultDomain),
		DisplayName:        optional(req.DisplayName),
		Shape:              common.String(req.Shape),
		Metadata:           req.Metadata,
		CreateVnicDetails: &core.CreateVnicDetails{
			SubnetId:       common.String(req.SubnetID),
			DisplayName:    optional(req.VnicName),
			PrivateIp:      optional(req.PrivateIP),
			AssignPublicIp: common.Bool(req.AssignPublicIP),
		},
	}
	if req.OCPUs > 0 || req.MemoryGB > 0 {
		d.ShapeConfig = &core.LaunchInstanceShapeConfigDetails{
			Ocpus:       common.Float32(req.OCPUs),
			MemoryInGBs: common.Float32(req.MemoryGB),
		}
	}
	switch req.SourceKind {
	case provider.SourceImage:
		d.SourceDetails = core.InstanceSourceViaImageDetails{ImageId: common.String(req.SourceID)}
	case provider.SourceBootVolume:
		d.SourceDetails = core.InstanceSourceViaBootVolumeDetails{BootVolumeId: common.String(req.SourceID)}
	default:
		return d, fmt.Errorf("unknown source kind %q", req.SourceKind)
	}
	return d, nil
}

func (c *Client) RenameInstance(ctx context.Context, instanceID, displayName string) (provider.Instance, error) {
	var out provider.Instance
	err := call(ctx, "UpdateInstance", func() error {
		resp, err := c.compute.UpdateInstance(ctx, core.UpdateInstanceRequest{
			InstanceId:            common.String(instanceID),
			UpdateInstanceDetails: core.UpdateInstanceDetails{DisplayName: common.String(displayName)},
		})
		if err != nil {
			return err
		}
		out = instanceFrom(resp.Instance)
		return nil
	})
	return out, err
}

func (c *Client) TerminateInstance(ctx context.Context, instanceID string, preserveBootVolume bool) error {
	return call(ctx, "TerminateInstance", func() error {
		_, err := c.compute.TerminateInstance(ctx, core.TerminateInstanceRequest{
			InstanceId:         common.String(instanceID),
			PreserveBootVolume: common.Bool(preserveBootVolume),
		})
		return err
	})
}

func (c *Client) InstanceAction(ctx context.Context, instanceID string, action provider.PowerAction) (provider.Instance, error) {
	if !action.Valid() {
		return provider.Instance{}, &provider.Error{Op: "InstanceAction", Status: http.StatusBadRequest, Code: "InvalidParameter", Message: "unknown action " + string(action)}
	}
	var out provider.Instance
	err := call(ctx, "InstanceAction", func() error {
		resp, err := c.compute.InstanceAction(ctx, core.InstanceActionRequest{
			InstanceId: common.String(instanceID),
			Action:     core.InstanceActionActionEnum(action),
		})
		if err != nil {
			return err
		}
		out = instanceFrom(resp.Instance)
		return nil
	})
	return out, err
}

func (c *Client) DeleteBootVolume(ctx context.Context, bootVolumeID string) error {
	return call(ctx, "DeleteBootVolume", func() error {
		_, err := c.storage.DeleteBootVolume(ctx, core.DeleteBootVolumeRequest{BootVolumeId: common.String(bootVolumeID)})
		return err
	})
}

func (c *Client) CreateVcn(ctx context.Context, compartmentID, displayName, cidr string) (provider.Vcn, error) {
	var out provider.Vcn
	err := call(ctx, "CreateVcn", func() error {
		resp, err := c.network.CreateVcn(ctx, core.CreateVcnRequest{CreateVcnDetails: core.CreateVcnDetails{
			CompartmentId: common.String(compartmentID),
			DisplayName:   common.String(displayName),
			CidrBlock:     common.String(cidr),
		}})
		if err != nil {
			return err
		}
		out = vcnFrom(resp.Vcn)
		return nil
	})
	return out, err
}

func (c *Client) DeleteVcn(ctx context.Context, vcnID string) error {
	return call(ctx, "DeleteVcn", func() error {
		_, err := c.network.DeleteVcn(ctx, core.DeleteVcnRequest{VcnId: common.String(vcnID)})
		return err
	})
}
