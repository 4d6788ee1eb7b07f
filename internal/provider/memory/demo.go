package memory

import (
	"context"
	"sync"

	"github.com/m3rciful/ocipanel/internal/provider"
)

// Demo hands out one seeded fake tenancy per tenancy id. Any user id presented with the
// credentials exists in its tenancy.
type Demo struct {
	mu     sync.Mutex
	clouds map[string]*Cloud
}

// NewDemo returns an empty demo factory.
func NewDemo() *Demo {
	return &Demo{clouds: make(map[string]*Cloud)}
}

// Open returns the tenancy of creds, seeding it on first use.
func (d *Demo) Open(_ context.Context, creds provider.Credentials) (provider.Client, error) {
	d.mu.Lock()
	c, ok := d.clouds[creds.TenancyID]
	if !ok {
		c = Seeded(creds.TenancyID, creds.Region)
		d.clouds[creds.TenancyID] = c
	}
	d.mu.Unlock()

	c.mu.Lock()
	if _, ok := c.users[creds.UserID]; !ok {
		c.users[creds.UserID] = provider.User{ID: creds.UserID, Name: "demo", Description: "demo tenancy user"}
	}
	c.mu.Unlock()
	return c, nil
}

// Seeded builds a tenancy with one availability domain, a fixed and a flexible shape, an
// image and a VCN with a regional subnet.
func Seeded(tenancyID, region string) *Cloud {
	c := New(tenancyID, region)
	const ad = "Uocm:EU-FRANKFURT-1-AD-1"
	c.AddAvailabilityDomain(ad, "FAULT-DOMAIN-1", "FAULT-DOMAIN-2", "FAULT-DOMAIN-3")
	c.AddShape(ad, provider.Shape{Name: "VM.Standard.E2.1.Micro", BillingType: "ALWAYS_FREE", OCPUs: 1, MemoryGB: 1})
	c.AddShape(ad, provider.Shape{
		Name:               "VM.Standard.A1.Flex",
		BillingType:        "LIMITED_FREE",
		Flexible:           true,
		OCPURange:          provider.Range{Min: 1, Max: 4},
		MemoryRange:        provider.Range{Min: 1, Max: 24},
		MemoryPerOCPURange: provider.Range{Min: 1, Max: 64},
	})
	c.AddImage(provider.Image{ID: OCID("image"), DisplayName: "Canonical-Ubuntu-24.04", OperatingSystem: "Canonical Ubuntu", OSVersion: "24.04"})
	vcn := provider.Vcn{ID: OCID("vcn"), DisplayName: "demo", CIDR: "10.0.0.0/16", State: provider.StateAvailable}
	c.AddVcn(vcn)
	c.AddSubnet(provider.Subnet{ID: OCID("subnet"), DisplayName: "public", VcnID: vcn.ID, CIDR: "10.0.0.0/24", State: provider.StateAvailable})
	return c
}

var _ provider.Factory = (*Demo)(nil)
