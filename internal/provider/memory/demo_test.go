package memory

import (
	"context"
	"testing"

	"github.com/m3rciful/ocipanel/internal/provider"
)

func TestDemoSharesTenancyAndKnowsUsers(t *testing.T) {
	ctx := context.Background()
	d := NewDemo()
	creds := provider.Credentials{TenancyID: "ocid1.tenancy.oc1..demo", UserID: "ocid1.user.oc1..a", Region: "eu-frankfurt-1"}
	c1, err := d.Open(ctx, creds)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c1.GetUser(ctx, creds.UserID); err != nil {
		t.Fatalf("user: %v", err)
	}
	vcn, err := c1.CreateVcn(ctx, creds.TenancyID, "extra", "10.1.0.0/16")
	if err != nil {
		t.Fatalf("create vcn: %v", err)
	}

	creds.UserID = "ocid1.user.oc1..b"
	c2, err := d.Open(ctx, creds)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := c2.GetVcn(ctx, vcn.ID); err != nil {
		t.Fatalf("vcn from second open: %v", err)
	}
	if _, err := c2.GetUser(ctx, "ocid1.user.oc1..b"); err != nil {
		t.Fatalf("second user: %v", err)
	}

	ads, err := c2.ListAvailabilityDomains(ctx, creds.TenancyID)
	if err != nil || len(ads) != 1 {
		t.Fatalf("ads = %v, %v", ads, err)
	}
	shapes, err := c2.ListShapes(ctx, creds.TenancyID, ads[0].Name)
	if err != nil || len(shapes) != 2 {
		t.Fatalf("shapes = %v, %v", shapes, err)
	}
}
