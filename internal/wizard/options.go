// Package wizard holds the instance-creation options collected across menu steps, the phase
// machine guarding execution, and the live validation run before launch.
package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotValidated is returned when execution is attempted before a clean validation.
	ErrNotValidated = errors.New("wizard: options not validated")
	// ErrChanged is returned when a validation result is applied to a record edited since.
	ErrChanged = errors.New("wizard: options changed since validation started")
	// ErrInProgress is returned while a launch for the record is running.
	ErrInProgress = errors.New("wizard: launch in progress")
)

// InterruptedLaunch is recorded on a record found executing with no launch running.
const InterruptedLaunch = "previous launch was interrupted"

// Phase is the wizard lifecycle position.
type Phase uint8

const (
	PhaseEmpty Phase = iota
	PhasePartial
	PhaseValidated
	PhaseExecuting
	PhaseSucceeded
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhasePartial:
		return "partially_configured"
	case PhaseValidated:
		return "validated"
	case PhaseExecuting:
		return "executing"
	case PhaseSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Region is the placement choice. FaultDomain is optional.
type Region struct {
	AvailabilityDomain string `cbor:"1,keyasint"`
	FaultDomain        string `cbor:"2,keyasint,omitempty"`
}

// ShapeDetails is required for flexible shapes only.
type ShapeDetails struct {
	OCPUs    float32 `cbor:"1,keyasint"`
	MemoryGB float32 `cbor:"2,keyasint"`
}

type Shape struct {
	Name     string        `cbor:"1,keyasint"`
	Flexible bool          `cbor:"2,keyasint,omitempty"`
	Details  *ShapeDetails `cbor:"3,keyasint,omitempty"`
}

// SourceKind mirrors provider.SourceKind in the persisted record.
type SourceKind string

const (
	SourceImage      SourceKind = "image"
	SourceBootVolume SourceKind = "bootVolume"
)

type Source struct {
	Kind SourceKind `cbor:"1,keyasint"`
	ID   string     `cbor:"2,keyasint"`
	Name string     `cbor:"3,keyasint,omitempty"`
}

// SubnetRef is the subnet chosen for the primary vnic with its parent VCN.
type SubnetRef struct {
	ID      string `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint,omitempty"`
	VcnID   string `cbor:"3,keyasint"`
	VcnName string `cbor:"4,keyasint,omitempty"`
}

type Vnic struct {
	Name      string     `cbor:"1,keyasint,omitempty"`
	Subnet    *SubnetRef `cbor:"2,keyasint,omitempty"`
	PrivateIP string     `cbor:"3,keyasint,omitempty"`
	// NoPublicIP inverts the flag so the zero value assigns a public address.
	NoPublicIP bool `cbor:"4,keyasint,omitempty"`
}

// AssignPublicIP reports whether the vnic gets a public address.
func (v Vnic) AssignPublicIP() bool { return !v.NoPublicIP }

type CloudInit struct {
	UserData string   `cbor:"1,keyasint,omitempty"`
	SSHKeys  []string `cbor:"2,keyasint,omitempty"`
}

// Options is the persisted wizard record for one (chat, user).
type Options struct {
	Phase         Phase      `cbor:"1,keyasint"`
	CompartmentID string     `cbor:"2,keyasint,omitempty"`
	Region        *Region    `cbor:"3,keyasint,omitempty"`
	Shape         *Shape     `cbor:"4,keyasint,omitempty"`
	Source        *Source    `cbor:"5,keyasint,omitempty"`
	Vnic          *Vnic      `cbor:"6,keyasint,omitempty"`
	CloudInit     *CloudInit `cbor:"7,keyasint,omitempty"`
	DisplayName   string     `cbor:"8,keyasint,omitempty"`
	LastError     string     `cbor:"9,keyasint,omitempty"`
	// AccountID is the OCI user the record was built for.
	AccountID string `cbor:"10,keyasint,omitempty"`
	// Revision counts edits; a validation only applies to the revision it ran on.
	Revision uint64 `cbor:"11,keyasint,omitempty"`
}

// BindAccount starts over when the record belongs to another account. It reports whether
// the record was reset.
func (o *Options) BindAccount(userID string) bool {
	if o.AccountID == userID {
		return false
	}
	*o = Options{AccountID: userID, Revision: o.Revision + 1}
	return true
}

// Touch records an edit. Any edit drops a previous validation.
func (o *Options) Touch() {
	o.Phase = PhasePartial
	o.LastError = ""
	o.Revision++
}

// MarkValidated is called after Validate returned no errors for the record at revision rev.
func (o *Options) MarkValidated(rev uint64) error {
	if o.Revision != rev {
		return fmt.Errorf("%w: revision %d, validated %d", ErrChanged, o.Revision, rev)
	}
	switch o.Phase {
	case PhaseEmpty, PhasePartial, PhaseValidated:
		o.Phase = PhaseValidated
		return nil
	case PhaseExecuting:
		return ErrInProgress
	default:
		return fmt.Errorf("%w: phase %s", ErrNotValidated, o.Phase)
	}
}

// BeginExecute moves a validated record into execution.
func (o *Options) BeginExecute() error {
	switch o.Phase {
	case PhaseValidated:
		o.Phase = PhaseExecuting
		return nil
	case PhaseExecuting:
		return ErrInProgress
	default:
		return fmt.Errorf("%w: phase %s", ErrNotValidated, o.Phase)
	}
}

// Interrupted returns a record left executing by a launch that is no longer running to
// editing. Every choice is kept and the record must be validated again. It reports whether
// the record changed.
func (o *Options) Interrupted() bool {
	if o.Phase != PhaseExecuting {
		return false
	}
	o.Phase = PhasePartial
	o.LastError = InterruptedLaunch
	o.Revision++
	return true
}

// Fail records a failed launch. The record returns to editing with every choice kept.
func (o *Options) Fail(err error) {
	o.Phase = PhasePartial
	if err != nil {
		o.LastError = err.Error()
	}
}

func (o *Options) Succeed() {
	o.Phase = PhaseSucceeded
	o.LastError = ""
}

// Ready reports whether execution may start.
func (o *Options) Ready() bool { return o.Phase == PhaseValidated }

// SelectRegion replaces the placement and clears choices that depend on it.
func (o *Options) SelectRegion(r Region) {
	if o.Region == nil || o.Region.AvailabilityDomain != r.AvailabilityDomain {
		o.Shape = nil
		if o.Source != nil && o.Source.Kind == SourceBootVolume {
			o.Source = nil
		}
	}
	o.Region = &r
	o.Touch()
}

// SelectShape replaces the shape and drops an image chosen for the previous one.
func (o *Options) SelectShape(s Shape) {
	if o.Shape == nil || o.Shape.Name != s.Name {
		if o.Source != nil && o.Source.Kind == SourceImage {
			o.Source = nil
		}
	}
	o.Shape = &s
	o.Touch()
}

func (o *Options) SelectSource(s Source) {
	o.Source = &s
	o.Touch()
}

// SetDisplayName names the instance to launch.
func (o *Options) SetDisplayName(name string) {
	o.DisplayName = name
	o.Touch()
}

// EditVnic applies fn to the vnic config, creating it on first use.
func (o *Options) EditVnic(fn func(*Vnic)) {
	if o.Vnic == nil {
		o.Vnic = &Vnic{}
	}
	fn(o.Vnic)
	o.Touch()
}

// EditCloudInit applies fn to the cloud-init config and drops it when empty.
func (o *Options) EditCloudInit(fn func(*CloudInit)) {
	if o.CloudInit == nil {
		o.CloudInit = &CloudInit{}
	}
	fn(o.CloudInit)
	if o.CloudInit.UserData == "" && len(o.CloudInit.SSHKeys) == 0 {
		o.CloudInit = nil
	}
	o.Touch()
}
