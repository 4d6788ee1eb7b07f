package oci

import (
	"context"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/ocipanel/internal/provider"
)

// vnicFanout bounds concurrent GetVnic calls for one instance.
const vnicFanout = 4

func (c *Client) GetUser(ctx context.Context, userID string) (provider.User, error) {
	var out provider.User
	err := call(ctx, "GetUser", func() error {
		resp, err := c.identity.GetUser(ctx, identity.GetUserRequest{UserId: common.String(userID)})
		if err != nil {
			return err
		}
		out = provider.User{
			ID:          deref(resp.Id),
			Name:        deref(resp.Name),
			Email:       deref(resp.Email),
			Description: deref(resp.Description),
		}
		return nil
	})
	return out, err
}

func (c *Client) ListCompartments(ctx context.Context, tenancyID string) ([]provider.Compartment, error) {
	var out []provider.Compartment
	err := call(ctx, "ListCompartments", func() error {
		req := identity.ListCompartmentsRequest{
			CompartmentId:          common.String(tenancyID),
			CompartmentIdInSubtree: common.Bool(true),
			AccessLevel:            identity.ListCompartmentsAccessLevelAccessible,
		}
		for {
			resp, err := c.identity.ListCompartments(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, provider.Compartment{
					ID:    deref(item.Id),
					Name:  deref(item.Name),
					State: string(item.LifecycleState),
				})
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func (c *Client) ListAvailabilityDomains(ctx context.Context, compartmentID string) ([]provider.AvailabilityDomain, error) {
	var out []provider.AvailabilityDomain
	err := call(ctx, "ListAvailabilityDomains", func() error {
		resp, err := c.identity.ListAvailabilityDomains(ctx, identity.ListAvailabilityDomainsRequest{
			CompartmentId: common.String(compartmentID),
		})
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			out = append(out, provider.AvailabilityDomain{ID: deref(item.Id), Name: deref(item.Name)})
		}
		return nil
	})
	return out, err
}

func (c *Client) ListFaultDomains(ctx context.Context, compartmentID, availabilityDomain string) ([]provider.FaultDomain, error) {
	var out []provider.FaultDomain
	err := call(ctx, "ListFaultDomains", func() error {
		resp, err := c.identity.ListFaultDomains(ctx, identity.ListFaultDomainsRequest{
			CompartmentId:      common.String(compartmentID),
			AvailabilityDomain: common.String(availabilityDomain),
		})
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			out = append(out, provider.FaultDomain{
				ID:                 deref(item.Id),
				Name:               deref(item.Name),
				AvailabilityDomain: deref(item.AvailabilityDomain),
			})
		}
		return nil
	})
	return out, err
}

func (c *Client) ListShapes(ctx context.Context, compartmentID, availabilityDomain string) ([]provider.Shape, error) {
	var out []provider.Shape
	err := call(ctx, "ListShapes", func() error {
		req := core.ListShapesRequest{
			CompartmentId:      common.String(compartmentID),
			AvailabilityDomain: optional(availabilityDomain),
		}
		for {
			resp, err := c.compute.ListShapes(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, shapeFrom(item))
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func shapeFrom(item core.Shape) provider.Shape {
	s := provider.Shape{
		Name:        deref(item.Shape),
		BillingType: string(item.BillingType),
		OCPUs:       derefF(item.Ocpus),
		MemoryGB:    derefF(item.MemoryInGBs),
	}
	if opts := item.OcpuOptions; opts != nil {
		s.Flexible = true
		s.OCPURange = provider.Range{Min: derefF(opts.Min), Max: derefF(opts.Max)}
	}
	if opts := item.MemoryOptions; opts != nil {
		s.MemoryRange = provider.Range{Min: derefF(opts.MinInGBs), Max: derefF(opts.MaxInGBs)}
		s.MemoryPerOCPURange = provider.Range{Min: derefF(opts.MinPerOcpuInGBs), Max: derefF(opts.MaxPerOcpuInGBs)}
	}
	return s
}

func (c *Client) ListImages(ctx context.Context, compartmentID, shape string) ([]provider.Image, error) {
	var out []provider.Image
	err := call(ctx, "ListImages", func() error {
		req := core.ListImagesRequest{
			CompartmentId:  common.String(compartmentID),
			Shape:          optional(shape),
			LifecycleState: core.ImageLifecycleStateAvailable,
		}
		for {
			resp, err := c.compute.ListImages(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, provider.Image{
					ID:              deref(item.Id),
					DisplayName:     deref(item.DisplayName),
					OperatingSystem: deref(item.OperatingSystem),
					OSVersion:       deref(item.OperatingSystemVersion),
					State:           string(item.LifecycleState),
				})
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func bootVolumeFrom(item core.BootVolume) provider.BootVolume {
	bv := provider.BootVolume{
		ID:                 deref(item.Id),
		DisplayName:        deref(item.DisplayName),
		AvailabilityDomain: deref(item.AvailabilityDomain),
		State:              string(item.LifecycleState),
	}
	if item.SizeInGBs != nil {
		bv.SizeGB = *item.SizeInGBs
	}
	return bv
}

func (c *Client) ListBootVolumes(ctx context.Context, compartmentID, availabilityDomain string) ([]provider.BootVolume, error) {
	var out []provider.BootVolume
	err := call(ctx, "ListBootVolumes", func() error {
		req := core.ListBootVolumesRequest{
			CompartmentId:      common.String(compartmentID),
			AvailabilityDomain: optional(availabilityDomain),
		}
		for {
			resp, err := c.storage.ListBootVolumes(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, bootVolumeFrom(item))
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func (c *Client) GetBootVolume(ctx context.Context, bootVolumeID string) (provider.BootVolume, error) {
	var out provider.BootVolume
	err := call(ctx, "GetBootVolume", func() error {
		resp, err := c.storage.GetBootVolume(ctx, core.GetBootVolumeRequest{BootVolumeId: common.String(bootVolumeID)})
		if err != nil {
			return err
		}
		out = bootVolumeFrom(resp.BootVolume)
		return nil
	})
	return out, err
}

func (c *Client) ListBootVolumeAttachments(ctx context.Context, compartmentID, availabilityDomain, instanceID, bootVolumeID string) ([]provider.BootVolumeAttachment, error) {
	var out []provider.BootVolumeAttachment
	err := call(ctx, "ListBootVolumeAttachments", func() error {
		req := core.ListBootVolumeAttachmentsRequest{
			CompartmentId:      common.String(compartmentID),
			AvailabilityDomain: common.String(availabilityDomain),
			InstanceId:         optional(instanceID),
			BootVolumeId:       optional(bootVolumeID),
		}
		for {
			resp, err := c.compute.ListBootVolumeAttachments(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, provider.BootVolumeAttachment{
					ID:           deref(item.Id),
					InstanceID:   deref(item.InstanceId),
					BootVolumeID: deref(item.BootVolumeId),
					State:        string(item.LifecycleState),
				})
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func vcnFrom(item core.Vcn) provider.Vcn {
	v := provider.Vcn{
		ID:          deref(item.Id),
		DisplayName: deref(item.DisplayName),
		CIDR:        deref(item.CidrBlock),
		State:       string(item.LifecycleState),
	}
	if v.CIDR == "" && len(item.CidrBlocks) > 0 {
		v.CIDR = item.CidrBlocks[0]
	}
	return v
}

func (c *Client) ListVcns(ctx context.Context, compartmentID string) ([]provider.Vcn, error) {
	var out []provider.Vcn
	err := call(ctx, "ListVcns", func() error {
		req := core.ListVcnsRequest{CompartmentId: common.String(compartmentID)}
		for {
			resp, err := c.network.ListVcns(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, vcnFrom(item))
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func (c *Client) GetVcn(ctx context.Context, vcnID string) (provider.Vcn, error) {
	var out provider.Vcn
	err := call(ctx, "GetVcn", func() error {
		resp, err := c.network.GetVcn(ctx, core.GetVcnRequest{VcnId: common.String(vcnID)})
		if err != nil {
			return err
		}
		out = vcnFrom(resp.Vcn)
		return nil
	})
	return out, err
}

func subnetFrom(item core.Subnet) provider.Subnet {
	s := provider.Subnet{
		ID:                 deref(item.Id),
		DisplayName:        deref(item.DisplayName),
		VcnID:              deref(item.VcnId),
		CIDR:               deref(item.CidrBlock),
		AvailabilityDomain: deref(item.AvailabilityDomain),
		State:              string(item.LifecycleState),
	}
	if item.ProhibitPublicIpOnVnic != nil {
		s.ProhibitPublicIP = *item.ProhibitPublicIpOnVnic
	}
	return s
}

func (c *Client) ListSubnets(ctx context.Context, compartmentID, vcnID string) ([]provider.Subnet, error) {
	var out []provider.Subnet
	err := call(ctx, "ListSubnets", func() error {
		req := core.ListSubnetsRequest{CompartmentId: common.String(compartmentID), VcnId: optional(vcnID)}
		for {
			resp, err := c.network.ListSubnets(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, subnetFrom(item))
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func (c *Client) GetSubnet(ctx context.Context, subnetID string) (provider.Subnet, error) {
	var out provider.Subnet
	err := call(ctx, "GetSubnet", func() error {
		resp, err := c.network.GetSubnet(ctx, core.GetSubnetRequest{SubnetId: common.String(subnetID)})
		if err != nil {
			return err
		}
		out = subnetFrom(resp.Subnet)
		return nil
	})
	return out, err
}

func instanceFrom(item core.Instance) provider.Instance {
	in := provider.Instance{
		ID:                 deref(item.Id),
		DisplayName:        deref(item.DisplayName),
		CompartmentID:      deref(item.CompartmentId),
		AvailabilityDomain: deref(item.AvailabilityDomain),
		FaultDomain:        deref(item.FaultDomain),
		Region:             deref(item.Region),
		ImageID:            deref(item.ImageId),
		Shape:              deref(item.Shape),
		State:              string(item.LifecycleState),
	}
	if cfg := item.ShapeConfig; cfg != nil {
		in.OCPUs = derefF(cfg.Ocpus)
		in.MemoryGB = derefF(cfg.MemoryInGBs)
	}
	return in
}

func (c *Client) ListInstances(ctx context.Context, compartmentID string) ([]provider.Instance, error) {
	var out []provider.Instance
	err := call(ctx, "ListInstances", func() error {
		req := core.ListInstancesRequest{CompartmentId: common.String(compartmentID)}
		for {
			resp, err := c.compute.ListInstances(ctx, req)
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				out = append(out, instanceFrom(item))
			}
			if resp.OpcNextPage == nil {
				return nil
			}
			req.Page = resp.OpcNextPage
		}
	})
	return out, err
}

func (c *Client) GetInstance(ctx context.Context, instanceID string) (provider.Instance, error) {
	var out provider.Instance
	err := call(ctx, "GetInstance", func() error {
		resp, err := c.compute.GetInstance(ctx, core.GetInstanceRequest{InstanceId: common.String(instanceID)})
		if err != nil {
			return err
		}
		out = instanceFrom(resp.Instance)
		return nil
	})
	return out, err
}

// ListInstanceVnics resolves the vnic attachments of an instance into vnics.
func (c *Client) ListInstanceVnics(ctx context.Context, compartmentID, instanceID string) ([]provider.Vnic, error) {
	var ids []string
	err := call(ctx, "ListVnicAttachments", func() error {
		resp, err := c.compute.ListVnicAttachments(ctx, core.ListVnicAttachmentsRequest{
			CompartmentId: common.String(compartmentID),
			InstanceId:    common.String(instanceID),
		})
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			if item.VnicId != nil {
				ids = append(ids, *item.VnicId)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]provider.Vnic, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(vnicFanout)
	for i, id := range ids {
		g.Go(func() error {
			return call(gctx, "GetVnic", func() error {
				resp, err := c.network.GetVnic(gctx, core.GetVnicRequest{VnicId: common.String(id)})
				if err != nil {
					return err
				}
				v := provider.Vnic{
					ID:        deref(resp.Id),
					Name:      deref(resp.DisplayName),
					PrivateIP: deref(resp.PrivateIp),
					PublicIP:  deref(resp.PublicIp),
					SubnetID:  deref(resp.SubnetId),
				}
				if resp.IsPrimary != nil {
					v.Primary = *resp.IsPrimary
				}
				out[i] = v
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
