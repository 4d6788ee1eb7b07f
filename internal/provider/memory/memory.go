// Package memory is an in-process provider used by tests and the demo mode. It keeps a small
// tenancy model in maps and counts every call.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/m3rciful/ocipanel/internal/provider"
)

type imageRecord struct {
	image  provider.Image
	shapes []string
}

// Cloud is a fake tenancy. All methods are safe for concurrent use.
type Cloud struct {
	mu sync.Mutex

	tenancy string
	region  string

	users        map[string]provider.User
	compartments []provider.Compartment
	ads          []provider.AvailabilityDomain
	fds          map[string][]provider.FaultDomain
	shapes       map[string][]provider.Shape
	images       []imageRecord
	volumes      map[string]provider.BootVolume
	attachments  []provider.BootVolumeAttachment
	vcns         map[string]provider.Vcn
	subnets      map[string]provider.Subnet
	instances    map[string]provider.Instance
	vnics        map[string][]provider.Vnic

	calls map[string]int
	fail  map[string]error
	seq   int
}

// New creates an empty tenancy.
func New(tenancyID, region string) *Cloud {
	return &Cloud{
		tenancy:   tenancyID,
		region:    region,
		users:     make(map[string]provider.User),
		fds:       make(map[string][]provider.FaultDomain),
		shapes:    make(map[string][]provider.Shape),
		volumes:   make(map[string]provider.BootVolume),
		vcns:      make(map[string]provider.Vcn),
		subnets:   make(map[string]provider.Subnet),
		instances: make(map[string]provider.Instance),
		vnics:     make(map[string][]provider.Vnic),
		calls:     make(map[string]int),
		fail:      make(map[string]error),
	}
}

// OCID mints an identifier for kind.
func OCID(kind string) string {
	return fmt.Sprintf("ocid1.%s.oc1..%s", kind, uuid.NewString())
}

// Factory returns a provider.Factory handing out c for any credentials.
func Factory(c *Cloud) provider.Factory {
	return provider.FactoryFunc(func(context.Context, provider.Credentials) (provider.Client, error) {
		return c, nil
	})
}

// Calls returns the total number of provider calls served.
func (c *Cloud) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// CallsTo returns how many times op was called.
func (c *Cloud) CallsTo(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// FailOn makes every later call to op return err until cleared with a nil err.
func (c *Cloud) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, op)
		return
	}
	c.fail[op] = err
}

// begin records the call and returns the injected failure, if any. Caller holds c.mu.
func (c *Cloud) begin(op string) error {
	c.calls[op]++
	return c.fail[op]
}

// Seeding helpers.

func (c *Cloud) AddUser(u provider.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
}

func (c *Cloud) AddCompartment(comp provider.Compartment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compartments = append(c.compartments, comp)
}

func (c *Cloud) AddAvailabilityDomain(name string, faultDomains ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ads = append(c.ads, provider.AvailabilityDomain{ID: OCID("availabilitydomain"), Name: name})
	for _, fd := range faultDomains {
		c.fds[name] = append(c.fds[name], provider.FaultDomain{ID: OCID("faultdomain"), Name: fd, AvailabilityDomain: name})
	}
}

func (c *Cloud) AddShape(availabilityDomain string, s provider.Shape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes[availabilityDomain] = append(c.shapes[availabilityDomain], s)
}

// AddImage registers an image compatible with shapes; no shapes means every shape.
func (c *Cloud) AddImage(img provider.Image, shapes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img.State == "" {
		img.State = provider.StateAvailable
	}
	c.images = append(c.images, imageRecord{image: img, shapes: shapes})
}

func (c *Cloud) AddBootVolume(v provider.BootVolume) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes[v.ID] = v
}

func (c *Cloud) AttachBootVolume(instanceID, bootVolumeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments = append(c.attachments, provider.BootVolumeAttachment{
		ID: OCID("instance.bootvolumeattachment"), InstanceID: instanceID, BootVolumeID: bootVolumeID, State: provider.StateAttached,
	})
}

func (c *Cloud) AddVcn(v provider.Vcn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vcns[v.ID] = v
}

func (c *Cloud) AddSubnet(s provider.Subnet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subnets[s.ID] = s
}

func (c *Cloud) AddInstance(inst provider.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[inst.ID] = inst
}

// Reader.

func (c *Cloud) GetUser(_ context.Context, userID string) (provider.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetUser"); err != nil {
		return provider.User{}, err
	}
	u, ok := c.users[userID]
	if !ok {
		return provider.User{}, provider.NotFound("GetUser", "user")
	}
	return u, nil
}

func (c *Cloud) ListCompartments(_ context.Context, _ string) ([]provider.Compartment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListCompartments"); err != nil {
		return nil, err
	}
	return slices.Clone(c.compartments), nil
}

func (c *Cloud) ListAvailabilityDomains(_ context.Context, _ string) ([]provider.AvailabilityDomain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListAvailabilityDomains"); err != nil {
		return nil, err
	}
	return slices.Clone(c.ads), nil
}

func (c *Cloud) ListFaultDomains(_ context.Context, _, availabilityDomain string) ([]provider.FaultDomain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListFaultDomains"); err != nil {
		return nil, err
	}
	return slices.Clone(c.fds[availabilityDomain]), nil
}

func (c *Cloud) ListShapes(_ context.Context, _, availabilityDomain string) ([]provider.Shape, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListShapes"); err != nil {
		return nil, err
	}
	return slices.Clone(c.shapes[availabilityDomain]), nil
}

func (c *Cloud) ListImages(_ context.Context, _, shape string) ([]provider.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListImages"); err != nil {
		return nil, err
	}
	var out []provider.Image
	for _, rec := range c.images {
		if rec.image.State != provider.StateAvailable {
			continue
		}
		if len(rec.shapes) > 0 && !slices.Contains(rec.shapes, shape) {
			continue
		}
		out = append(out, rec.image)
	}
	return out, nil
}

func (c *Cloud) ListBootVolumes(_ context.Context, _, availabilityDomain string) ([]provider.BootVolume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListBootVolumes"); err != nil {
		return nil, err
	}
	var out []provider.BootVolume
	for _, v := range c.volumes {
		if availabilityDomain == "" || v.AvailabilityDomain == availabilityDomain {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b provider.BootVolume) int { return cmp.Compare(a.DisplayName, b.DisplayName) })
	return out, nil
}

func (c *Cloud) GetBootVolume(_ context.Context, bootVolumeID string) (provider.BootVolume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetBootVolume"); err != nil {
		return provider.BootVolume{}, err
	}
	v, ok := c.volumes[bootVolumeID]
	if !ok {
		return provider.BootVolume{}, provider.NotFound("GetBootVolume", "boot volume")
	}
	return v, nil
}

func (c *Cloud) ListBootVolumeAttachments(_ context.Context, compartmentID, _, instanceID, bootVolumeID string) ([]provider.BootVolumeAttachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListBootVolumeAttachments"); err != nil {
		return nil, err
	}
	var out []provider.BootVolumeAttachment
	for _, a := range c.attachments {
		if instanceID != "" && a.InstanceID != instanceID {
			continue
		}
		if bootVolumeID != "" && a.BootVolumeID != bootVolumeID {
			continue
		}
		if inst, ok := c.instances[a.InstanceID]; ok && compartmentID != "" && inst.CompartmentID != "" && inst.CompartmentID != compartmentID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Cloud) ListVcns(_ context.Context, _ string) ([]provider.Vcn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListVcns"); err != nil {
		return nil, err
	}
	out := make([]provider.Vcn, 0, len(c.vcns))
	for _, v := range c.vcns {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b provider.Vcn) int { return cmp.Compare(a.DisplayName, b.DisplayName) })
	return out, nil
}

func (c *Cloud) GetVcn(_ context.Context, vcnID string) (provider.Vcn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetVcn"); err != nil {
		return provider.Vcn{}, err
	}
	v, ok := c.vcns[vcnID]
	if !ok {
		return provider.Vcn{}, provider.NotFound("GetVcn", "vcn")
	}
	return v, nil
}

func (c *Cloud) ListSubnets(_ context.Context, _, vcnID string) ([]provider.Subnet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListSubnets"); err != nil {
		return nil, err
	}
	var out []provider.Subnet
	for _, s := range c.subnets {
		if vcnID == "" || s.VcnID == vcnID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b provider.Subnet) int { return cmp.Compare(a.DisplayName, b.DisplayName) })
	return out, nil
}

func (c *Cloud) GetSubnet(_ context.Context, subnetID string) (provider.Subnet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetSubnet"); err != nil {
		return provider.Subnet{}, err
	}
	s, ok := c.subnets[subnetID]
	if !ok {
		return provider.Subnet{}, provider.NotFound("GetSubnet", "subnet")
	}
	return s, nil
}

func (c *Cloud) ListInstances(_ context.Context, compartmentID string) ([]provider.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListInstances"); err != nil {
		return nil, err
	}
	var out []provider.Instance
	for _, inst := range c.instances {
		if compartmentID == "" || inst.CompartmentID == compartmentID {
			out = append(out, inst)
		}
	}
	slices.SortFunc(out, func(a, b provider.Instance) int { return cmp.Compare(a.DisplayName, b.DisplayName) })
	return out, nil
}

func (c *Cloud) GetInstance(_ context.Context, instanceID string) (provider.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetInstance"); err != nil {
		return provider.Instance{}, err
	}
	inst, ok := c.instances[instanceID]
	if !ok {
		return provider.Instance{}, provider.NotFound("GetInstance", "instance")
	}
	return inst, nil
}

func (c *Cloud) ListInstanceVnics(_ context.Context, _, instanceID string) ([]provider.Vnic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListInstanceVnics"); err != nil {
		return nil, err
	}
	return slices.Clone(c.vnics[instanceID]), nil
}

// Writer.

func (c *Cloud) LaunchInstance(_ context.Context, req provider.LaunchRequest) (provider.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("LaunchInstance"); err != nil {
		return provider.Instance{}, err
	}
	c.seq++
	name := req.DisplayName
	if name == "" {
		name = fmt.Sprintf("instance-%d", c.seq)
	}
	inst := provider.Instance{
		ID:                 OCID("instance"),
		DisplayName:        name,
		CompartmentID:      req.CompartmentID,
		AvailabilityDomain: req.AvailabilityDomain,
		FaultDomain:        req.FaultDomain,
		Region:             c.region,
		Shape:              req.Shape,
		OCPUs:              req.OCPUs,
		MemoryGB:           req.MemoryGB,
		State:              provider.StateProvisioning,
	}
	volumeID := req.SourceID
	if req.SourceKind == provider.SourceImage {
		inst.ImageID = req.SourceID
		volumeID = OCID("bootvolume")
		c.volumes[volumeID] = provider.BootVolume{
			ID: volumeID, DisplayName: name + " (Boot Volume)", AvailabilityDomain: req.AvailabilityDomain, State: provider.StateAvailable, SizeGB: 47,
		}
	}
	c.attachments = append(c.attachments, provider.BootVolumeAttachment{
		ID: OCID("instance.bootvolumeattachment"), InstanceID: inst.ID, BootVolumeID: volumeID, State: provider.StateAttached,
	})
	privateIP := req.PrivateIP
	if privateIP == "" {
		privateIP = fmt.Sprintf("10.0.0.%d", 10+c.seq)
	}
	vnic := provider.Vnic{ID: OCID("vnic"), Name: req.VnicName, PrivateIP: privateIP, SubnetID: req.SubnetID, Primary: true}
	if req.AssignPublicIP {
		vnic.PublicIP = fmt.Sprintf("203.0.113.%d", c.seq)
	}
	c.vnics[inst.ID] = []provider.Vnic{vnic}
	c.instances[inst.ID] = inst
	return inst, nil
}

func (c *Cloud) RenameInstance(_ context.Context, instanceID, displayName string) (provider.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("RenameInstance"); err != nil {
		return provider.Instance{}, err
	}
	inst, ok := c.instances[instanceID]
	if !ok {
		return provider.Instance{}, provider.NotFound("RenameInstance", "instance")
	}
	inst.DisplayName = displayName
	c.instances[instanceID] = inst
	return inst, nil
}

func (c *Cloud) TerminateInstance(_ context.Context, instanceID string, preserveBootVolume bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("TerminateInstance"); err != nil {
		return err
	}
	inst, ok := c.instances[instanceID]
	if !ok {
		return provider.NotFound("TerminateInstance", "instance")
	}
	inst.State = provider.StateTerminated
	c.instances[instanceID] = inst
	kept := c.attachments[:0]
	for _, a := range c.attachments {
		if a.InstanceID != instanceID {
			kept = append(kept, a)
			continue
		}
		if !preserveBootVolume {
			delete(c.volumes, a.BootVolumeID)
		}
	}
	c.attachments = kept
	delete(c.vnics, instanceID)
	return nil
}

func (c *Cloud) InstanceAction(_ context.Context, instanceID string, action provider.PowerAction) (provider.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("InstanceAction"); err != nil {
		return provider.Instance{}, err
	}
	inst, ok := c.instances[instanceID]
	if !ok {
		return provider.Instance{}, provider.NotFound("InstanceAction", "instance")
	}
	switch action {
	case provider.PowerStart, provider.PowerReset, provider.PowerSoftReset:
		inst.State = provider.StateRunning
	case provider.PowerStop, provider.PowerSoftStop:
		inst.State = provider.StateStopped
	default:
		return provider.Instance{}, &provider.Error{Op: "InstanceAction", Status: http.StatusBadRequest, Code: "InvalidParameter", Message: "unknown action " + string(action)}
	}
	c.instances[instanceID] = inst
	return inst, nil
}

func (c *Cloud) DeleteBootVolume(_ context.Context, bootVolumeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteBootVolume"); err != nil {
		return err
	}
	if _, ok := c.volumes[bootVolumeID]; !ok {
		return provider.NotFound("DeleteBootVolume", "boot volume")
	}
	for _, a := range c.attachments {
		if a.BootVolumeID == bootVolumeID {
			return &provider.Error{Op: "DeleteBootVolume", Status: http.StatusConflict, Code: "Conflict", Message: "boot volume is attached"}
		}
	}
	delete(c.volumes, bootVolumeID)
	return nil
}

func (c *Cloud) CreateVcn(_ context.Context, _, displayName, cidr string) (provider.Vcn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CreateVcn"); err != nil {
		return provider.Vcn{}, err
	}
	v := provider.Vcn{ID: OCID("vcn"), DisplayName: displayName, CIDR: cidr, State: provider.StateAvailable}
	c.vcns[v.ID] = v
	return v, nil
}

func (c *Cloud) DeleteVcn(_ context.Context, vcnID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteVcn"); err != nil {
		return err
	}
	if _, ok := c.vcns[vcnID]; !ok {
		return provider.NotFound("DeleteVcn", "vcn")
	}
	for _, s := range c.subnets {
		if s.VcnID == vcnID {
			return &provider.Error{Op: "DeleteVcn", Status: http.StatusConflict, Code: "Conflict", Message: "vcn still has subnets"}
		}
	}
	delete(c.vcns, vcnID)
	return nil
}

var _ provider.Client = (*Cloud)(nil)
