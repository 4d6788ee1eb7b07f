package wizard

import (
	"encoding/base64"
	"strings"

	"github.com/m3rciful/ocipanel/core/engine/session"
	"github.com/m3rciful/ocipanel/internal/provider"
)

const (
	// Namespace keys wizard records in the session store.
	Namespace = "oc_instance_create"

	schemaName    = "wizard.options"
	schemaVersion = 1
)

// NewStore returns the session store holding wizard records.
func NewStore(backend session.Backend, locks *session.KeyedMutex) (*session.Store[Options], error) {
	codec, err := session.NewCodec[Options](schemaName, schemaVersion)
	if err != nil {
		return nil, err
	}
	opts := []session.Option[Options]{}
	if locks != nil {
		opts = append(opts, session.WithLocks[Options](locks))
	}
	return session.NewStore(Namespace, backend, codec, opts...), nil
}

// Metadata renders cloud-init settings as instance metadata.
func (c *CloudInit) Metadata() map[string]string {
	if c == nil {
		return nil
	}
	md := make(map[string]string, 2)
	if len(c.SSHKeys) > 0 {
		md["ssh_authorized_keys"] = strings.Join(c.SSHKeys, "\n")
	}
	if c.UserData != "" {
		md["user_data"] = base64.StdEncoding.EncodeToString([]byte(c.UserData))
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// LaunchRequest converts validated options into a provider launch request.
func (o *Options) LaunchRequest(tenancyID string) provider.LaunchRequest {
	req := provider.LaunchRequest{
		CompartmentID:  o.CompartmentID,
		DisplayName:    o.DisplayName,
		AssignPublicIP: true,
		Metadata:       o.CloudInit.Metadata(),
	}
	if req.CompartmentID == "" {
		req.CompartmentID = tenancyID
	}
	if o.Region != nil {
		req.AvailabilityDomain = o.Region.AvailabilityDomain
		req.FaultDomain = o.Region.FaultDomain
	}
	if o.Shape != nil {
		req.Shape = o.Shape.Name
		if o.Shape.Flexible && o.Shape.Details != nil {
			req.OCPUs = o.Shape.Details.OCPUs
			req.MemoryGB = o.Shape.Details.MemoryGB
		}
	}
	if o.Source != nil {
		req.SourceKind = provider.SourceKind(o.Source.Kind)
		req.SourceID = o.Source.ID
	}
	if o.Vnic != nil {
		req.VnicName = o.Vnic.Name
		req.PrivateIP = o.Vnic.PrivateIP
		req.AssignPublicIP = o.Vnic.AssignPublicIP()
		if o.Vnic.Subnet != nil {
			req.SubnetID = o.Vnic.Subnet.ID
		}
	}
	return req
}
