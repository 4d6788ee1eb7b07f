package wizard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/m3rciful/ocipanel/core/engine/session"
	"github.com/m3rciful/ocipanel/internal/provider"
	"github.com/m3rciful/ocipanel/internal/provider/memory"
)

const tenancy = "ocid1.tenancy.oc1..test"

const flexShape = "VM.Standard.A1.Flex"

func seededCloud() *memory.Cloud {
	c := memory.New(tenancy, "eu-frankfurt-1")
	c.AddAvailabilityDomain("AD-1", "FAULT-DOMAIN-1", "FAULT-DOMAIN-2")
	c.AddShape("AD-1", provider.Shape{
		Name:               flexShape,
		Flexible:           true,
		OCPURange:          provider.Range{Min: 1, Max: 4},
		MemoryRange:        provider.Range{Min: 1, Max: 64},
		MemoryPerOCPURange: provider.Range{Min: 6, Max: 16},
	})
	c.AddImage(provider.Image{ID: "img-1", DisplayName: "Oracle-Linux-9"}, flexShape)
	c.AddVcn(provider.Vcn{ID: "vcn-1", DisplayName: "main", CIDR: "10.0.0.0/16", State: provider.StateAvailable})
	c.AddSubnet(provider.Subnet{ID: "sn-1", DisplayName: "public", VcnID: "vcn-1", State: provider.StateAvailable})
	return c
}

func completeOptions() *Options {
	return &Options{
		Phase:  PhasePartial,
		Region: &Region{AvailabilityDomain: "AD-1", FaultDomain: "FAULT-DOMAIN-2"},
		Shape:  &Shape{Name: flexShape, Flexible: true, Details: &ShapeDetails{OCPUs: 2, MemoryGB: 24}},
		Source: &Source{Kind: SourceImage, ID: "img-1"},
		Vnic:   &Vnic{Subnet: &SubnetRef{ID: "sn-1", VcnID: "vcn-1"}},
	}
}

func TestValidateStopsWhenPlacementUnset(t *testing.T) {
	c := seededCloud()
	opts := completeOptions()
	opts.Region = nil

	errs, err := Validate(context.Background(), opts, tenancy, c)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(errs) != 1 || !errs[0].Fatal || errs[0].Category != CategoryRegion {
		t.Fatalf("expected single fatal region error, got %v", errs)
	}
	if c.Calls() != 0 {
		t.Fatalf("expected zero provider calls, got %d", c.Calls())
	}
}

func TestValidateFlexibleMemoryPerCPU(t *testing.T) {
	c := seededCloud()
	opts := completeOptions()
	opts.Shape.Details = &ShapeDetails{OCPUs: 2, MemoryGB: 40}

	errs, err := Validate(context.Background(), opts, tenancy, c)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(errs) != 1 || errs[0].Category != CategoryShape || !strings.Contains(errs[0].Message, "memory per CPU") {
		t.Fatalf("expected per-CPU memory violation, got %v", errs)
	}

	opts.Shape.Details = &ShapeDetails{OCPUs: 2, MemoryGB: 24}
	errs, err = Validate(context.Background(), opts, tenancy, c)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, e := range errs {
		if e.Category == CategoryShape {
			t.Fatalf("unexpected shape error %v", e)
		}
	}
}

func TestValidateHappyPath(t *testing.T) {
	c := seededCloud()
	errs, err := Validate(context.Background(), completeOptions(), tenancy, c)
	if err != nil || len(errs) != 0 {
		t.Fatalf("errs=%v err=%v", errs, err)
	}
	if c.CallsTo("LaunchInstance") != 0 {
		t.Fatalf("validation must not launch")
	}
}

func TestValidateCollectsNonFatal(t *testing.T) {
	c := seededCloud()
	opts := completeOptions()
	opts.Region.FaultDomain = "FAULT-DOMAIN-9"
	opts.Vnic = &Vnic{PrivateIP: "10.0.0.300"}

	errs, err := Validate(context.Background(), opts, tenancy, c)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := []Category{CategoryFaultDomain, CategoryVnic, CategoryVnic}
	if len(errs) != len(want) {
		t.Fatalf("got %v", errs)
	}
	for i, cat := range want {
		if errs[i].Category != cat || errs[i].Fatal {
			t.Fatalf("errs[%d] = %v", i, errs[i])
		}
	}
}

func TestValidateUnknownShapeIsFatal(t *testing.T) {
	c := seededCloud()
	opts := completeOptions()
	opts.Shape = &Shape{Name: "VM.Unknown"}
	errs, _ := Validate(context.Background(), opts, tenancy, c)
	if len(errs) != 1 || !errs[0].Fatal || errs[0].Message != "shape does not exist." {
		t.Fatalf("got %v", errs)
	}
}

func TestValidateAttachedBootVolume(t *testing.T) {
	c := seededCloud()
	c.AddBootVolume(provider.BootVolume{ID: "bv-1", AvailabilityDomain: "AD-1", State: provider.StateAvailable})
	c.AttachBootVolume("inst-1", "bv-1")
	opts := completeOptions()
	opts.Source = &Source{Kind: SourceBootVolume, ID: "bv-1"}

	errs, err := Validate(context.Background(), opts, tenancy, c)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "mounted by another instance") {
		t.Fatalf("got %v", errs)
	}
}

func TestValidateReturnsProviderFailure(t *testing.T) {
	c := seededCloud()
	c.FailOn("ListShapes", &provider.Error{Op: "ListShapes", Status: http.StatusTooManyRequests, Code: "TooManyRequests", Message: "slow down"})

	errs, err := Validate(context.Background(), completeOptions(), tenancy, c)
	if err == nil || errs != nil {
		t.Fatalf("expected provider failure, errs=%v err=%v", errs, err)
	}
	if pe, ok := provider.AsError(err); !ok || pe.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPhaseMachine(t *testing.T) {
	var o Options
	if err := o.BeginExecute(); !errors.Is(err, ErrNotValidated) {
		t.Fatalf("empty record must not execute: %v", err)
	}
	o.SelectRegion(Region{AvailabilityDomain: "AD-1"})
	if err := o.MarkValidated(o.Revision); err != nil {
		t.Fatalf("validate: %v", err)
	}
	o.EditVnic(func(v *Vnic) { v.Name = "eth0" })
	if o.Phase != PhasePartial {
		t.Fatalf("edit must invalidate, phase=%s", o.Phase)
	}
	if err := o.MarkValidated(o.Revision); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := o.BeginExecute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := o.BeginExecute(); !errors.Is(err, ErrInProgress) {
		t.Fatalf("second execute: %v", err)
	}
	o.Fail(errors.New("500 InternalError"))
	if o.Phase != PhasePartial || o.Region == nil || o.LastError == "" {
		t.Fatalf("failure must keep state, got %+v", o)
	}
	if err := o.BeginExecute(); err == nil {
		t.Fatalf("failed record must be revalidated")
	}
}

func TestValidationDoesNotApplyAcrossEdits(t *testing.T) {
	o := completeOptions()
	rev := o.Revision
	o.EditVnic(func(v *Vnic) { v.PrivateIP = "999.1.1.1" })
	if err := o.MarkValidated(rev); !errors.Is(err, ErrChanged) {
		t.Fatalf("stale validation applied: %v", err)
	}
	if o.Phase != PhasePartial {
		t.Fatalf("phase=%s", o.Phase)
	}
	if err := o.BeginExecute(); !errors.Is(err, ErrNotValidated) {
		t.Fatalf("edited record must not execute: %v", err)
	}
}

func TestInterruptedLaunchReturnsToEditing(t *testing.T) {
	o := completeOptions()
	if err := o.MarkValidated(o.Revision); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := o.BeginExecute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	rev := o.Revision
	if !o.Interrupted() {
		t.Fatalf("executing record not recovered")
	}
	if o.Phase != PhasePartial || o.LastError != InterruptedLaunch || o.Shape == nil || o.Vnic == nil {
		t.Fatalf("unexpected record %+v", o)
	}
	if err := o.MarkValidated(rev); !errors.Is(err, ErrChanged) {
		t.Fatalf("validation from before the interruption applied: %v", err)
	}
	if o.Interrupted() {
		t.Fatalf("partial record reported as interrupted")
	}
	if err := o.MarkValidated(o.Revision); err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if err := o.BeginExecute(); err != nil {
		t.Fatalf("execute after recovery: %v", err)
	}
}

func TestSelectRegionDropsDependentChoices(t *testing.T) {
	o := completeOptions()
	o.Source = &Source{Kind: SourceBootVolume, ID: "bv"}
	o.SelectRegion(Region{AvailabilityDomain: "AD-2"})
	if o.Shape != nil || o.Source != nil || o.Vnic == nil {
		t.Fatalf("unexpected record %+v", o)
	}
}

func TestLaunchRequestAndMetadata(t *testing.T) {
	o := completeOptions()
	o.Vnic.NoPublicIP = true
	o.CloudInit = &CloudInit{UserData: "#!/bin/sh\necho hi\n", SSHKeys: []string{"ssh-ed25519 AAAA a@b", "ssh-rsa BBBB"}}

	req := o.LaunchRequest(tenancy)
	if req.CompartmentID != tenancy || req.Shape != flexShape || req.OCPUs != 2 || req.MemoryGB != 24 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.AssignPublicIP || req.SubnetID != "sn-1" || req.SourceKind != provider.SourceImage {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Metadata["ssh_authorized_keys"] != "ssh-ed25519 AAAA a@b\nssh-rsa BBBB" {
		t.Fatalf("ssh keys = %q", req.Metadata["ssh_authorized_keys"])
	}
	if req.Metadata["user_data"] != "IyEvYmluL3NoCmVjaG8gaGkK" {
		t.Fatalf("user data = %q", req.Metadata["user_data"])
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(session.NewMemoryBackend(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	want := completeOptions()
	want.CloudInit = &CloudInit{SSHKeys: []string{"ssh-ed25519 AAAA"}}
	if err := store.Set(ctx, 10, 20, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, 10, 20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Region.FaultDomain != "FAULT-DOMAIN-2" || got.Shape.Details.MemoryGB != 24 || got.Vnic.Subnet.VcnID != "vcn-1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if store.Key(10, 20).String() != "oc_instance_create::chat_10::user_20" {
		t.Fatalf("key = %s", store.Key(10, 20))
	}
}
