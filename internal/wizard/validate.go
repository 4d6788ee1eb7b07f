package wizard

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/m3rciful/ocipanel/internal/provider"
)

// Category tags a validation error with the option it concerns.
type Category string

const (
	CategoryCompartment        Category = "compartment"
	CategoryRegion             Category = "region"
	CategoryAvailabilityDomain Category = "availabilityDomain"
	CategoryFaultDomain        Category = "faultDomain"
	CategoryShape              Category = "shape"
	CategorySource             Category = "source"
	CategoryVnic               Category = "vnic"
)

// ValidationError is one problem found in the options. Fatal errors stop the run.
type ValidationError struct {
	Category Category
	Message  string
	Fatal    bool
}

func (e ValidationError) String() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

type checker struct {
	opts    *Options
	comp    string
	live    provider.Reader
	errs    []ValidationError
	stopped bool
}

func (c *checker) add(cat Category, msg string) {
	c.errs = append(c.errs, ValidationError{Category: cat, Message: msg})
}

func (c *checker) fatal(cat Category, msg string) {
	c.errs = append(c.errs, ValidationError{Category: cat, Message: msg, Fatal: true})
	c.stopped = true
}

// Validate checks opts against live resources in a fixed order, stopping at the first
// structurally fatal gap. Provider read failures are returned as err, not as validation errors.
// Only the read-only provider surface is consulted.
func Validate(ctx context.Context, opts *Options, tenancyID string, live provider.Reader) ([]ValidationError, error) {
	c := &checker{opts: opts, comp: opts.CompartmentID, live: live}
	if c.comp == "" {
		c.comp = tenancyID
	}
	steps := []func(context.Context, string) error{
		c.checkCompartment,
		c.checkRegion,
		c.checkShape,
		c.checkSource,
		c.checkVnic,
	}
	for _, step := range steps {
		if err := step(ctx, tenancyID); err != nil {
			return nil, err
		}
		if c.stopped {
			break
		}
	}
	return c.errs, nil
}

func (c *checker) checkCompartment(ctx context.Context, tenancyID string) error {
	// The root compartment cannot be listed, so it is assumed valid.
	if c.comp == tenancyID {
		return nil
	}
	items, err := c.live.ListCompartments(ctx, tenancyID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ID == c.comp {
			return nil
		}
	}
	c.fatal(CategoryCompartment, "The specified compartment cannot be found.")
	return nil
}

func (c *checker) checkRegion(ctx context.Context, _ string) error {
	region := c.opts.Region
	if region == nil || region.AvailabilityDomain == "" {
		c.fatal(CategoryRegion, "region not set.")
		return nil
	}
	ads, err := c.live.ListAvailabilityDomains(ctx, c.comp)
	if err != nil {
		return err
	}
	found := false
	for _, ad := range ads {
		if ad.Name == region.AvailabilityDomain {
			found = true
			break
		}
	}
	if !found {
		c.fatal(CategoryAvailabilityDomain, "AvailableDomain does not exist.")
		return nil
	}
	if region.FaultDomain == "" {
		return nil
	}
	fds, err := c.live.ListFaultDomains(ctx, c.comp, region.AvailabilityDomain)
	if err != nil {
		return err
	}
	for _, fd := range fds {
		if fd.Name == region.FaultDomain {
			return nil
		}
	}
	c.add(CategoryFaultDomain, "FaultDomain does not exist.")
	return nil
}

func (c *checker) checkShape(ctx context.Context, _ string) error {
	shape := c.opts.Shape
	if shape == nil || shape.Name == "" {
		c.fatal(CategoryShape, "shape not set.")
		return nil
	}
	shapes, err := c.live.ListShapes(ctx, c.comp, c.opts.Region.AvailabilityDomain)
	if err != nil {
		return err
	}
	var info *provider.Shape
	for i := range shapes {
		if shapes[i].Name == shape.Name {
			info = &shapes[i]
			break
		}
	}
	if info == nil {
		c.fatal(CategoryShape, "shape does not exist.")
		return nil
	}
	if !info.Flexible {
		return nil
	}
	d := shape.Details
	if d == nil {
		c.add(CategoryShape, "The shape is flexible, but no detailed configuration is set.")
		return nil
	}
	if !info.OCPURange.Contains(d.OCPUs) {
		c.add(CategoryShape, "The specified number of CPUs exceeds the shape limit.")
	}
	if !info.MemoryRange.Contains(d.MemoryGB) {
		c.add(CategoryShape, "The specified number of memories exceeds the shape limit.")
	} else if d.OCPUs <= 0 || !info.MemoryPerOCPURange.Contains(d.MemoryGB/d.OCPUs) {
		c.add(CategoryShape, "The specified amount of memory does not meet the specification constraints (available memory per CPU).")
	}
	return nil
}

func (c *checker) checkSource(ctx context.Context, _ string) error {
	src := c.opts.Source
	if src == nil || src.ID == "" {
		c.fatal(CategorySource, "source not set.")
		return nil
	}
	switch src.Kind {
	case SourceImage:
		images, err := c.live.ListImages(ctx, c.comp, c.opts.Shape.Name)
		if err != nil {
			return err
		}
		for _, img := range images {
			if img.ID == src.ID {
				return nil
			}
		}
		c.add(CategorySource, "The specified image does not exist.")
	case SourceBootVolume:
		ad := c.opts.Region.AvailabilityDomain
		bv, err := c.live.GetBootVolume(ctx, src.ID)
		if provider.IsNotFound(err) || (err == nil && bv.State != provider.StateAvailable) {
			c.add(CategorySource, "The specified boot volume does not exist.")
			return nil
		}
		if err != nil {
			return err
		}
		atts, err := c.live.ListBootVolumeAttachments(ctx, c.comp, ad, "", src.ID)
		if err != nil {
			return err
		}
		for _, a := range atts {
			if a.State != provider.StateDetached {
				c.add(CategorySource, "The specified boot volume has been mounted by another instance.")
				break
			}
		}
	default:
		c.fatal(CategorySource, "source not set.")
	}
	return nil
}

func (c *checker) checkVnic(ctx context.Context, _ string) error {
	vnic := c.opts.Vnic
	if vnic == nil {
		c.fatal(CategoryVnic, "vnic not set.")
		return nil
	}
	if vnic.PrivateIP != "" && !ValidIPv4(vnic.PrivateIP) {
		c.add(CategoryVnic, "The specified private IP does not conform to the standard IPv4 format.")
	}
	ref := vnic.Subnet
	if ref == nil {
		c.add(CategoryVnic, "Subnet to which vnic belongs is not specified.")
		return nil
	}
	vcn, err := c.live.GetVcn(ctx, ref.VcnID)
	if provider.IsNotFound(err) || (err == nil && vcn.State != provider.StateAvailable) {
		c.add(CategoryVnic, "The specified VCN does not exist.")
		return nil
	}
	if err != nil {
		return err
	}
	sn, err := c.live.GetSubnet(ctx, ref.ID)
	if provider.IsNotFound(err) || (err == nil && (sn.State != provider.StateAvailable || sn.VcnID != ref.VcnID)) {
		c.add(CategoryVnic, "The specified Subnet does not exist.")
		return nil
	}
	return err
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 literal.
func ValidIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}
