// Package provider declares the cloud operations the panel consumes. Implementations live in
// the oci (OCI SDK) and memory (in-process fake) subpackages.
package provider

// LifecycleState values shared by resources.
const (
	StateAvailable    = "AVAILABLE"
	StateProvisioning = "PROVISIONING"
	StateTerminating  = "TERMINATING"
	StateTerminated   = "TERMINATED"
	StateFaulty       = "FAULTY"
	StateAttached     = "ATTACHED"
	StateAttaching    = "ATTACHING"
	StateDetached     = "DETACHED"
	StateActive       = "ACTIVE"
	StateRunning      = "RUNNING"
	StateStopped      = "STOPPED"
)

// User is the authenticated OCI user.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
}

// Compartment is an identity compartment.
type Compartment struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// AvailabilityDomain is a primary placement zone.
type AvailabilityDomain struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FaultDomain is a secondary placement zone inside an availability domain.
type FaultDomain struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	AvailabilityDomain string `json:"availabilityDomain"`
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float32) bool { return v >= r.Min && v <= r.Max }

// Shape is a compute shape offered in an availability domain.
type Shape struct {
	Name        string  `json:"name"`
	BillingType string  `json:"billingType,omitempty"`
	Flexible    bool    `json:"flexible"`
	OCPUs       float32 `json:"ocpus,omitempty"`
	MemoryGB    float32 `json:"memoryGB,omitempty"`
	// Flexible shapes only.
	OCPURange          Range `json:"ocpuRange"`
	MemoryRange        Range `json:"memoryRange"`
	MemoryPerOCPURange Range `json:"memoryPerOcpuRange"`
}

// Image is a boot image.
type Image struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	OperatingSystem string `json:"operatingSystem,omitempty"`
	OSVersion       string `json:"osVersion,omitempty"`
	State           string `json:"state"`
}

// BootVolume is a block volume usable as an instance source.
type BootVolume struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	AvailabilityDomain string `json:"availabilityDomain"`
	State              string `json:"state"`
	SizeGB             int64  `json:"sizeGB,omitempty"`
}

// BootVolumeAttachment links a boot volume to an instance.
type BootVolumeAttachment struct {
	ID           string `json:"id"`
	InstanceID   string `json:"instanceId"`
	BootVolumeID string `json:"bootVolumeId"`
	State        string `json:"state"`
}

// Vcn is a virtual cloud network.
type Vcn struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	CIDR        string `json:"cidr"`
	State       string `json:"state"`
}

// Subnet belongs to a Vcn.
type Subnet struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	VcnID              string `json:"vcnId"`
	CIDR               string `json:"cidr"`
	AvailabilityDomain string `json:"availabilityDomain,omitempty"`
	State              string `json:"state"`
	ProhibitPublicIP   bool   `json:"prohibitPublicIp"`
}

// Instance is a compute instance.
type Instance struct {
	ID                 string  `json:"id"`
	DisplayName        string  `json:"displayName"`
	CompartmentID      string  `json:"compartmentId"`
	AvailabilityDomain string  `json:"availabilityDomain"`
	FaultDomain        string  `json:"faultDomain,omitempty"`
	Region             string  `json:"region"`
	ImageID            string  `json:"imageId,omitempty"`
	Shape              string  `json:"shape"`
	OCPUs              float32 `json:"ocpus,omitempty"`
	MemoryGB           float32 `json:"memoryGB,omitempty"`
	State              string  `json:"state"`
}

// Vnic is a network interface attached to an instance.
type Vnic struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	PrivateIP string `json:"privateIp,omitempty"`
	PublicIP  string `json:"publicIp,omitempty"`
	SubnetID  string `json:"subnetId,omitempty"`
	Primary   bool   `json:"primary"`
}

// SourceKind selects how a new instance boots.
type SourceKind string

const (
	SourceImage      SourceKind = "image"
	SourceBootVolume SourceKind = "bootVolume"
)

// LaunchRequest carries everything needed to create an instance.
type LaunchRequest struct {
	CompartmentID      string
	AvailabilityDomain string
	FaultDomain        string
	DisplayName        string
	Shape              string
	OCPUs              float32
	MemoryGB           float32
	SourceKind         SourceKind
	SourceID           string
	SubnetID           string
	VnicName           string
	PrivateIP          string
	AssignPublicIP     bool
	Metadata           map[string]string
}

// PowerAction is an instance power operation.
type PowerAction string

const (
	PowerStart     PowerAction = "START"
	PowerStop      PowerAction = "STOP"
	PowerReset     PowerAction = "RESET"
	PowerSoftReset PowerAction = "SOFTRESET"
	PowerSoftStop  PowerAction = "SOFTSTOP"
)

// PowerActions lists the supported actions in display order.
var PowerActions = []PowerAction{PowerStart, PowerStop, PowerReset, PowerSoftReset, PowerSoftStop}

// Valid reports whether a is a known action.
func (a PowerAction) Valid() bool {
	for _, known := range PowerActions {
		if a == known {
			return true
		}
	}
	return false
}
