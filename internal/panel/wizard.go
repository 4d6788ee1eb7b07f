package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/internal/accounts"
	"github.com/m3rciful/ocipanel/internal/provider"
	"github.com/m3rciful/ocipanel/internal/wizard"
)

const (
	actWizardStart        = "wizard.start"
	actWizardMenu         = "wizard.menu"
	actWizardRegion       = "wizard.region"
	actWizardRegionDomain = "wizard.region.domain"
	actWizardRegionApply  = "wizard.region.apply"
	actWizardShape        = "wizard.shape"
	actWizardShapeApply   = "wizard.shape.apply"
	actWizardSource       = "wizard.source"
	actWizardImages       = "wizard.source.images"
	actWizardVolumes      = "wizard.source.volumes"
	actWizardSourceApply  = "wizard.source.apply"
	actWizardNetwork      = "wizard.network"
	actWizardPublicIP     = "wizard.network.public"
	actWizardVnicName     = "wizard.network.name"
	actWizardVcn          = "wizard.network.vcn"
	actWizardSubnet       = "wizard.network.subnet"
	actWizardSubnetApply  = "wizard.network.subnet.apply"
	actWizardPrivateIP    = "wizard.network.ip"
	actWizardCloudInit    = "wizard.cloudinit"
	actWizardSSHKeys      = "wizard.cloudinit.ssh"
	actWizardUserData     = "wizard.cloudinit.userdata"
	actWizardName         = "wizard.name"
	actWizardValidate     = "wizard.validate"
	actWizardExecute      = "wizard.execute"
	actWizardAbort        = "wizard.abort"

	flowShapeFlexible = "shape_flexible"
	flowVnicName      = "vnic_name"
	flowPrivateIP     = "vnic_private_ip"
	flowSSHKeys       = "ssh_keys"
	flowUserData      = "user_data"
	flowInstanceName  = "instance_name"

	// maxChoices caps the buttons of one pick list.
	maxChoices = 50
)

var (
	flexibleShapePattern = regexp.MustCompile(`^(\d+(\.\d+)?)_(\d+(\.\d+)?)$`)
	sshKeyPattern        = regexp.MustCompile(`^[\da-zA-Z-]+ [a-zA-Z\d+/=]+( *([^ ]+))?$`)
)

func (p *Panel) wizardActions() []action {
	return []action{
		{name: actWizardStart, handler: p.wizardStart},
		{name: actWizardMenu, handler: p.wizardMenu},
		{name: actWizardRegion, handler: p.wizardRegion},
		{name: actWizardRegionDomain, handler: p.wizardRegionDomain},
		{name: actWizardRegionApply, handler: p.wizardRegionApply},
		{name: actWizardShape, handler: p.wizardShape},
		{name: actWizardShapeApply, handler: p.wizardShapeApply},
		{name: actWizardSource, handler: p.wizardSource},
		{name: actWizardImages, handler: p.wizardImages},
		{name: actWizardVolumes, handler: p.wizardVolumes},
		{name: actWizardSourceApply, handler: p.wizardSourceApply},
		{name: actWizardNetwork, handler: p.wizardNetwork},
		{name: actWizardPublicIP, handler: p.wizardPublicIP},
		{name: actWizardVnicName, handler: p.startFlow(flowVnicName)},
		{name: actWizardVcn, handler: p.wizardVcn},
		{name: actWizardSubnet, handler: p.wizardSubnet},
		{name: actWizardSubnetApply, handler: p.wizardSubnetApply},
		{name: actWizardPrivateIP, handler: p.startFlow(flowPrivateIP)},
		{name: actWizardCloudInit, handler: p.wizardCloudInit},
		{name: actWizardSSHKeys, handler: p.startFlow(flowSSHKeys)},
		{name: actWizardUserData, handler: p.startFlow(flowUserData)},
		{name: actWizardName, handler: p.startFlow(flowInstanceName)},
		{name: actWizardValidate, handler: p.wizardValidate},
		{name: actWizardExecute, handler: p.wizardExecute},
		{name: actWizardAbort, handler: p.wizardAbort},
	}
}

// startFlow starts flow carrying the pressed button's envelope.
func (p *Panel) startFlow(flow string) dispatch.Handler {
	return func(ctx context.Context, req *dispatch.Request) error {
		return p.flows.Start(ctx, req, flow, req.Event.Envelope, nil)
	}
}

// picks drops the transient selections carried between submenu steps.
func picks() []envelope.Op {
	return []envelope.Op{
		envelope.Unset(domainKey),
		envelope.Unset(faultKey),
		envelope.Unset(shapeKey),
		envelope.Unset(sourceKey),
		envelope.Unset(vcnKey),
		envelope.Unset(subnetKey),
	}
}

func compartment(opts wizard.Options, prof accounts.Profile) string {
	if opts.CompartmentID != "" {
		return opts.CompartmentID
	}
	return prof.TenantID
}

// loadOptions reads the caller's wizard record. A record built for another account reads as empty.
func (p *Panel) loadOptions(ctx context.Context, ev *dispatch.Event, prof accounts.Profile) (wizard.Options, error) {
	opts, err := p.options.Get(ctx, ev.ChatID, ev.UserID)
	if err != nil {
		return wizard.Options{}, err
	}
	opts.BindAccount(prof.UserID)
	p.recoverLaunch(ctx, ev, &opts)
	return opts, nil
}

type launchKey struct{ chat, user int64 }

// recoverLaunch reopens a record left executing when no launch for it runs in this process,
// as after a restart mid-launch.
func (p *Panel) recoverLaunch(ctx context.Context, ev *dispatch.Event, o *wizard.Options) {
	if _, running := p.launching.Load(launchKey{ev.ChatID, ev.UserID}); running {
		return
	}
	if o.Interrupted() {
		logger.Warn(ctx, component, "wizard.launch_interrupted", slog.String("account", o.AccountID))
	}
}

// editOptions applies fn to the caller's record under its lock and returns the stored result.
func (p *Panel) editOptions(ctx context.Context, ev *dispatch.Event, prof accounts.Profile, fn func(*wizard.Options) error) (wizard.Options, error) {
	var out wizard.Options
	err := p.options.Update(ctx, ev.ChatID, ev.UserID, func(cur wizard.Options, _ bool) (*wizard.Options, error) {
		if cur.BindAccount(prof.UserID) {
			logger.Debug(ctx, component, "wizard.reset", slog.String("account", prof.UserID))
		}
		p.recoverLaunch(ctx, ev, &cur)
		if fn != nil {
			if err := fn(&cur); err != nil {
				return nil, err
			}
		}
		out = cur
		return &cur, nil
	})
	return out, err
}

func (p *Panel) wizardStart(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	opts, err := p.editOptions(ctx, req.Event, prof, nil)
	if err != nil {
		return err
	}
	return p.renderMenu(ctx, req, prof, req.Event.Envelope, opts)
}

func (p *Panel) wizardMenu(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	return p.renderMenu(ctx, req, prof, req.Event.Envelope, opts)
}

func (p *Panel) renderMenu(ctx context.Context, req *dispatch.Request, prof accounts.Profile, env envelope.Envelope, opts wizard.Options) error {
	to := func(action string) envelope.Envelope { return next(env, action, picks()...) }
	k := p.kb.New()
	k.Row(k.Button("Region", to(actWizardRegion)), k.Button("Shape", to(actWizardShape)), k.Button("Source", to(actWizardSource)))
	k.Row(k.Button("Network", to(actWizardNetwork)), k.Button("Cloud-init", to(actWizardCloudInit)), k.Button("Name", to(actWizardName)))
	if opts.Ready() {
		k.Add("Execute", to(actWizardExecute))
	} else {
		k.Add("Validate", to(actWizardValidate))
	}
	k.Add("Abort", to(actWizardAbort))
	k.Back(to(actAccountManage))
	return p.show(ctx, req, describeOptions(prof, opts), k)
}

const (
	notSet            = "not set"
	launchRunningText = "A launch is already in progress."
)

func describeOptions(prof accounts.Profile, o wizard.Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New instance in %s\n", prof.Name)
	fmt.Fprintf(&b, "status: %s\n", o.Phase)

	region := notSet
	if o.Region != nil {
		fd := "automatic"
		if o.Region.FaultDomain != "" {
			fd = o.Region.FaultDomain
		}
		region = fmt.Sprintf("%s (%s)", o.Region.AvailabilityDomain, fd)
	}
	fmt.Fprintf(&b, "region: %s\n", region)

	shape := notSet
	if o.Shape != nil {
		shape = o.Shape.Name
		if d := o.Shape.Details; d != nil {
			shape += fmt.Sprintf(" (%g OCPU, %g GB)", d.OCPUs, d.MemoryGB)
		} else if o.Shape.Flexible {
			shape += " (size not set)"
		}
	}
	fmt.Fprintf(&b, "shape: %s\n", shape)

	source := notSet
	if o.Source != nil {
		source = fmt.Sprintf("%s %s", o.Source.Kind, orDash(o.Source.Name))
	}
	fmt.Fprintf(&b, "source: %s\n", source)
	fmt.Fprintf(&b, "network: %s\n", describeVnic(o.Vnic))

	ci := notSet
	if c := o.CloudInit; c != nil {
		parts := make([]string, 0, 2)
		if len(c.SSHKeys) > 0 {
			parts = append(parts, fmt.Sprintf("%d ssh key(s)", len(c.SSHKeys)))
		}
		if c.UserData != "" {
			parts = append(parts, fmt.Sprintf("user data %d bytes", len(c.UserData)))
		}
		ci = strings.Join(parts, ", ")
	}
	fmt.Fprintf(&b, "cloud-init: %s\n", ci)

	name := o.DisplayName
	if name == "" {
		name = "automatic"
	}
	fmt.Fprintf(&b, "name: %s", name)
	if o.LastError != "" {
		fmt.Fprintf(&b, "\nlast error: %s", o.LastError)
	}
	return b.String()
}

func describeVnic(v *wizard.Vnic) string {
	if v == nil {
		return notSet
	}
	subnet := "no subnet"
	if v.Subnet != nil {
		subnet = fmt.Sprintf("%s / %s", orDash(v.Subnet.VcnName), orDash(v.Subnet.Name))
	}
	ip := v.PrivateIP
	if ip == "" {
		ip = "automatic"
	}
	public := "yes"
	if !v.AssignPublicIP() {
		public = "no"
	}
	out := fmt.Sprintf("%s, private IP %s, public IP %s", subnet, ip, public)
	if v.Name != "" {
		out += ", vnic " + v.Name
	}
	return out
}

// Region.

func (p *Panel) wizardRegion(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardMenu, picks()...)
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	ads, err := c.ListAvailabilityDomains(ctx, compartment(opts, prof))
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	for _, ad := range ads {
		k.Add(ad.Name, next(env, actWizardRegionDomain, envelope.Set(domainKey, ad.Name)))
	}
	k.Back(back)
	return p.show(ctx, req, "Choose an availability domain.", k)
}

func (p *Panel) wizardRegionDomain(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	ad, ok := envelope.Lookup(env.Data(), domainKey)
	if !ok {
		return errors.New("panel: envelope without availability domain")
	}
	back := next(env, actWizardRegion, envelope.Unset(domainKey), envelope.Unset(faultKey))
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	fds, err := c.ListFaultDomains(ctx, compartment(opts, prof), ad)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	for _, fd := range fds {
		k.Add(fd.Name, next(env, actWizardRegionApply, envelope.Set(faultKey, fd.Name)))
	}
	k.Add("automatic", next(env, actWizardRegionApply, envelope.Unset(faultKey)))
	k.Back(back)
	return p.show(ctx, req, "Choose a fault domain in "+ad+".", k)
}

func (p *Panel) wizardRegionApply(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	data := env.Data()
	ad, ok := envelope.Lookup(data, domainKey)
	if !ok {
		return errors.New("panel: envelope without availability domain")
	}
	fd, _ := envelope.Lookup(data, faultKey)
	opts, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		o.SelectRegion(wizard.Region{AvailabilityDomain: ad, FaultDomain: fd})
		return nil
	})
	if err != nil {
		return err
	}
	return p.renderMenu(ctx, req, prof, env, opts)
}

// Shape.

func (p *Panel) wizardShape(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardMenu, picks()...)
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	if opts.Region == nil {
		return alert(ctx, req, "Choose a region first.")
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	shapes, err := c.ListShapes(ctx, compartment(opts, prof), opts.Region.AvailabilityDomain)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	for i, s := range shapes {
		if i == maxChoices {
			break
		}
		k.Add(shapeLabel(s), next(env, actWizardShapeApply, envelope.Set(shapeKey, s)))
	}
	k.Back(back)
	return p.show(ctx, req, "Choose a shape in "+opts.Region.AvailabilityDomain+".", k)
}

func shapeLabel(s provider.Shape) string {
	label := s.Name
	if s.BillingType != "" {
		label += " [" + strings.ToLower(s.BillingType) + "]"
	}
	return label
}

func (p *Panel) wizardShapeApply(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	s, ok := envelope.Lookup(env.Data(), shapeKey)
	if !ok {
		return errors.New("panel: envelope without shape")
	}
	if s.Flexible {
		return p.flows.Start(ctx, req, flowShapeFlexible, env, nil)
	}
	opts, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		o.SelectShape(wizard.Shape{Name: s.Name})
		return nil
	})
	if err != nil {
		return err
	}
	return p.renderMenu(ctx, req, prof, env, opts)
}

func (p *Panel) shapeFlexibleFlow() replyflow.Flow {
	return singleStage(flowShapeFlexible, func(_ context.Context, t *replyflow.Turn, hint string) (dispatch.Message, error) {
		s, _ := envelope.Lookup(t.Envelope.Data(), shapeKey)
		text := fmt.Sprintf("%s is flexible. Send <ocpus>_<memory GB>, for example 1_6.\nOCPU: %g-%g\nmemory: %g-%g GB\nmemory per OCPU: %g-%g GB",
			s.Name, s.OCPURange.Min, s.OCPURange.Max, s.MemoryRange.Min, s.MemoryRange.Max, s.MemoryPerOCPURange.Min, s.MemoryPerOCPURange.Max)
		return dispatch.Message{Text: withHint(hint, text), Placeholder: "1_6"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		prof, err := profileOf(t.Envelope)
		if err != nil {
			return replyflow.Result{}, err
		}
		s, ok := envelope.Lookup(t.Envelope.Data(), shapeKey)
		if !ok {
			return replyflow.Result{}, errors.New("panel: flow without shape")
		}
		details, ok := parseShapeDetails(t.Req.Event.Text)
		if !ok {
			return replyflow.Retry("Expected two numbers joined by an underscore."), nil
		}
		opts, err := p.editOptions(ctx, t.Req.Event, prof, func(o *wizard.Options) error {
			o.SelectShape(wizard.Shape{Name: s.Name, Flexible: true, Details: &details})
			return nil
		})
		if err != nil {
			return replyflow.Result{}, err
		}
		return replyflow.Finish(), p.renderMenu(ctx, t.Req, prof, t.Envelope, opts)
	})
}

func parseShapeDetails(text string) (wizard.ShapeDetails, bool) {
	m := flexibleShapePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return wizard.ShapeDetails{}, false
	}
	ocpus, err := strconv.ParseFloat(m[1], 32)
	if err != nil || ocpus <= 0 {
		return wizard.ShapeDetails{}, false
	}
	mem, err := strconv.ParseFloat(m[3], 32)
	if err != nil || mem <= 0 {
		return wizard.ShapeDetails{}, false
	}
	return wizard.ShapeDetails{OCPUs: float32(ocpus), MemoryGB: float32(mem)}, true
}

// Source.

func (p *Panel) wizardSource(ctx context.Context, req *dispatch.Request) error {
	env := req.Event.Envelope
	k := p.kb.New()
	k.Row(k.Button("Images", next(env, actWizardImages)), k.Button("Boot volumes", next(env, actWizardVolumes)))
	k.Back(next(env, actWizardMenu, picks()...))
	return p.show(ctx, req, "Boot from an image or an existing boot volume?", k)
}

func (p *Panel) wizardImages(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardSource, envelope.Unset(sourceKey))
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	if opts.Shape == nil {
		return alert(ctx, req, "Choose a shape first.")
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	images, err := c.ListImages(ctx, compartment(opts, prof), opts.Shape.Name)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	for i, img := range images {
		if i == maxChoices {
			break
		}
		src := wizard.Source{Kind: wizard.SourceImage, ID: img.ID, Name: img.DisplayName}
		k.Add(img.DisplayName, next(env, actWizardSourceApply, envelope.Set(sourceKey, src)))
	}
	k.Back(back)
	text := fmt.Sprintf("Images for %s: %d", opts.Shape.Name, len(images))
	if len(images) > maxChoices {
		text += fmt.Sprintf(", showing the first %d", maxChoices)
	}
	return p.show(ctx, req, text, k)
}

// wizardVolumes lists AVAILABLE boot volumes of the chosen availability domain that no instance holds.
func (p *Panel) wizardVolumes(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardSource, envelope.Unset(sourceKey))
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	if opts.Region == nil {
		return alert(ctx, req, "Choose a region first.")
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	comp, ad := compartment(opts, prof), opts.Region.AvailabilityDomain
	volumes, err := c.ListBootVolumes(ctx, comp, ad)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	count := 0
	for _, v := range volumes {
		if v.State != provider.StateAvailable || count == maxChoices {
			continue
		}
		atts, err := c.ListBootVolumeAttachments(ctx, comp, ad, "", v.ID)
		if err != nil {
			return p.failure(ctx, req, err, back)
		}
		if attached(atts) {
			continue
		}
		count++
		src := wizard.Source{Kind: wizard.SourceBootVolume, ID: v.ID, Name: v.DisplayName}
		k.Add(v.DisplayName, next(env, actWizardSourceApply, envelope.Set(sourceKey, src)))
	}
	k.Back(back)
	text := fmt.Sprintf("Free boot volumes in %s: %d", ad, count)
	return p.show(ctx, req, text, k)
}

func attached(atts []provider.BootVolumeAttachment) bool {
	for _, a := range atts {
		if a.State != provider.StateDetached {
			return true
		}
	}
	return false
}

// wizardSourceApply stores the source and returns to the menu with an envelope holding only the account.
func (p *Panel) wizardSourceApply(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	src, ok := envelope.Lookup(env.Data(), sourceKey)
	if !ok || src.ID == "" {
		return errors.New("panel: envelope without source")
	}
	opts, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		o.SelectSource(src)
		return nil
	})
	if err != nil {
		return err
	}
	data, err := envelope.Build(envelope.Set(profileKey, prof))
	if err != nil {
		return err
	}
	return p.renderMenu(ctx, req, prof, env.NextReplace(actWizardMenu, data), opts)
}

// Network.

func (p *Panel) wizardNetwork(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	return p.renderNetwork(ctx, req, req.Event.Envelope, opts)
}

func (p *Panel) renderNetwork(ctx context.Context, req *dispatch.Request, env envelope.Envelope, opts wizard.Options) error {
	to := func(action string) envelope.Envelope { return next(env, action, picks()...) }
	public := "Public IP: on"
	if opts.Vnic != nil && !opts.Vnic.AssignPublicIP() {
		public = "Public IP: off"
	}
	k := p.kb.New()
	k.Row(k.Button("Subnet", to(actWizardVcn)), k.Button(public, to(actWizardPublicIP)))
	k.Row(k.Button("VNIC name", to(actWizardVnicName)), k.Button("Private IP", to(actWizardPrivateIP)))
	k.Back(to(actWizardMenu))
	return p.show(ctx, req, "Primary VNIC\n"+describeVnic(opts.Vnic), k)
}

func (p *Panel) wizardPublicIP(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	opts, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		o.EditVnic(func(v *wizard.Vnic) { v.NoPublicIP = !v.NoPublicIP })
		return nil
	})
	if err != nil {
		return err
	}
	return p.renderNetwork(ctx, req, req.Event.Envelope, opts)
}

func (p *Panel) wizardVcn(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardNetwork, picks()...)
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	vcns, err := c.ListVcns(ctx, compartment(opts, prof))
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	for _, v := range vcns {
		if v.State != provider.StateAvailable {
			continue
		}
		k.Add(fmt.Sprintf("%s %s", v.DisplayName, v.CIDR), next(env, actWizardSubnet, envelope.Set(vcnKey, v)))
	}
	k.Back(back)
	return p.show(ctx, req, "Choose a VCN.", k)
}

func (p *Panel) wizardSubnet(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	vcn, ok := envelope.Lookup(env.Data(), vcnKey)
	if !ok {
		return errors.New("panel: envelope without vcn")
	}
	back := next(env, actWizardVcn, envelope.Unset(vcnKey), envelope.Unset(subnetKey))
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	subnets, err := c.ListSubnets(ctx, compartment(opts, prof), vcn.ID)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	for _, s := range subnets {
		if s.State != provider.StateAvailable {
			continue
		}
		k.Add(fmt.Sprintf("%s %s", s.DisplayName, s.CIDR), next(env, actWizardSubnetApply, envelope.Set(subnetKey, s)))
	}
	k.Back(back)
	return p.show(ctx, req, "Choose a subnet of "+vcn.DisplayName+".", k)
}

func (p *Panel) wizardSubnetApply(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	data := env.Data()
	vcn, okVcn := envelope.Lookup(data, vcnKey)
	sn, okSubnet := envelope.Lookup(data, subnetKey)
	if !okVcn || !okSubnet {
		return errors.New("panel: envelope without subnet")
	}
	opts, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		o.EditVnic(func(v *wizard.Vnic) {
			v.Subnet = &wizard.SubnetRef{ID: sn.ID, Name: sn.DisplayName, VcnID: vcn.ID, VcnName: vcn.DisplayName}
		})
		return nil
	})
	if err != nil {
		return err
	}
	return p.renderNetwork(ctx, req, next(env, actWizardNetwork, picks()...), opts)
}

func (p *Panel) vnicNameFlow() replyflow.Flow {
	return singleStage(flowVnicName, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		return dispatch.Message{Text: withHint(hint, "Send the VNIC name, or "+clearCommand+" to let OCI pick one."), Placeholder: "vnic name"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		name := ""
		if !isClear(t.Req.Event.Text) {
			var ok bool
			if name, ok = cleanName(t.Req.Event.Text); !ok {
				return replyflow.Retry(fmt.Sprintf("The name must be 1 to %d characters.", maxNameLength)), nil
			}
		}
		return p.finishVnicEdit(ctx, t, func(v *wizard.Vnic) { v.Name = name })
	})
}

func (p *Panel) privateIPFlow() replyflow.Flow {
	return singleStage(flowPrivateIP, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		return dispatch.Message{Text: withHint(hint, "Send the private IPv4 address, or "+clearCommand+" for automatic assignment."), Placeholder: "10.0.0.10"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		ip := ""
		if !isClear(t.Req.Event.Text) {
			ip = strings.TrimSpace(t.Req.Event.Text)
			if !wizard.ValidIPv4(ip) {
				return replyflow.Retry("That is not an IPv4 address."), nil
			}
		}
		return p.finishVnicEdit(ctx, t, func(v *wizard.Vnic) { v.PrivateIP = ip })
	})
}

func (p *Panel) finishVnicEdit(ctx context.Context, t *replyflow.Turn, fn func(*wizard.Vnic)) (replyflow.Result, error) {
	prof, err := profileOf(t.Envelope)
	if err != nil {
		return replyflow.Result{}, err
	}
	opts, err := p.editOptions(ctx, t.Req.Event, prof, func(o *wizard.Options) error {
		o.EditVnic(fn)
		return nil
	})
	if err != nil {
		return replyflow.Result{}, err
	}
	return replyflow.Finish(), p.renderNetwork(ctx, t.Req, next(t.Envelope, actWizardNetwork), opts)
}

// Cloud-init.

func (p *Panel) wizardCloudInit(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	opts, err := p.loadOptions(ctx, req.Event, prof)
	if err != nil {
		return err
	}
	return p.renderCloudInit(ctx, req, req.Event.Envelope, opts)
}

func (p *Panel) renderCloudInit(ctx context.Context, req *dispatch.Request, env envelope.Envelope, opts wizard.Options) error {
	var b strings.Builder
	b.WriteString("Cloud-init")
	keys, userData := 0, 0
	if opts.CloudInit != nil {
		keys, userData = len(opts.CloudInit.SSHKeys), len(opts.CloudInit.UserData)
	}
	fmt.Fprintf(&b, "\nssh keys: %d", keys)
	if userData > 0 {
		fmt.Fprintf(&b, "\nuser data: %d bytes", userData)
	} else {
		b.WriteString("\nuser data: " + notSet)
	}
	k := p.kb.New()
	k.Row(k.Button("SSH keys", next(env, actWizardSSHKeys)), k.Button("User data", next(env, actWizardUserData)))
	k.Back(next(env, actWizardMenu, picks()...))
	return p.show(ctx, req, b.String(), k)
}

func (p *Panel) sshKeysFlow() replyflow.Flow {
	return singleStage(flowSSHKeys, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		text := "Send the public SSH keys, one per line, or a .pub file. Send " + clearCommand + " to remove all keys."
		return dispatch.Message{Text: withHint(hint, text), Placeholder: "ssh-ed25519 AAAA... user@host"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		raw, err := payload(ctx, t.Req, ".pub")
		var wrong errWrongDocument
		if errors.As(err, &wrong) {
			return replyflow.Retry(wrong.Error()), nil
		}
		if err != nil {
			return replyflow.Result{}, err
		}
		var keys []string
		if !isClear(string(raw)) {
			var bad int
			keys, bad = parseSSHKeys(string(raw))
			if bad > 0 {
				return replyflow.Retry(fmt.Sprintf("Line %d is not an SSH public key.", bad)), nil
			}
			if len(keys) == 0 {
				return replyflow.Retry("No keys found."), nil
			}
		}
		return p.finishCloudInitEdit(ctx, t, func(c *wizard.CloudInit) { c.SSHKeys = keys })
	})
}

// parseSSHKeys returns the non-empty lines of text, or the 1-based number of the first line that
// is not a public key.
func parseSSHKeys(text string) ([]string, int) {
	var keys []string
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !sshKeyPattern.MatchString(line) {
			return nil, i + 1
		}
		keys = append(keys, line)
	}
	return keys, 0
}

func (p *Panel) userDataFlow() replyflow.Flow {
	return singleStage(flowUserData, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		text := "Send the user-data script as a .sh file of at most 10 MiB, or " + clearCommand + " to remove it."
		return dispatch.Message{Text: withHint(hint, text), Placeholder: clearCommand}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		ev := t.Req.Event
		if ev.Document == nil && !isClear(ev.Text) {
			return replyflow.Retry("Attach the script as a .sh document."), nil
		}
		userData := ""
		if ev.Document != nil {
			raw, err := payload(ctx, t.Req, ".sh")
			var wrong errWrongDocument
			if errors.As(err, &wrong) {
				return replyflow.Retry(wrong.Error()), nil
			}
			if err != nil {
				return replyflow.Result{}, err
			}
			userData = string(raw)
		}
		return p.finishCloudInitEdit(ctx, t, func(c *wizard.CloudInit) { c.UserData = userData })
	})
}

func (p *Panel) finishCloudInitEdit(ctx context.Context, t *replyflow.Turn, fn func(*wizard.CloudInit)) (replyflow.Result, error) {
	prof, err := profileOf(t.Envelope)
	if err != nil {
		return replyflow.Result{}, err
	}
	opts, err := p.editOptions(ctx, t.Req.Event, prof, func(o *wizard.Options) error {
		o.EditCloudInit(fn)
		return nil
	})
	if err != nil {
		return replyflow.Result{}, err
	}
	return replyflow.Finish(), p.renderCloudInit(ctx, t.Req, next(t.Envelope, actWizardCloudInit), opts)
}

func (p *Panel) instanceNameFlow() replyflow.Flow {
	return singleStage(flowInstanceName, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		return dispatch.Message{Text: withHint(hint, "Send the instance name, or "+clearCommand+" to let OCI pick one."), Placeholder: "instance name"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		prof, err := profileOf(t.Envelope)
		if err != nil {
			return replyflow.Result{}, err
		}
		name := ""
		if !isClear(t.Req.Event.Text) {
			var ok bool
			if name, ok = cleanName(t.Req.Event.Text); !ok {
				return replyflow.Retry(fmt.Sprintf("The name must be 1 to %d characters.", maxNameLength)), nil
			}
		}
		opts, err := p.editOptions(ctx, t.Req.Event, prof, func(o *wizard.Options) error {
			o.SetDisplayName(name)
			return nil
		})
		if err != nil {
			return replyflow.Result{}, err
		}
		return replyflow.Finish(), p.renderMenu(ctx, t.Req, prof, next(t.Envelope, actWizardMenu), opts)
	})
}

// Validation and execution.

func (p *Panel) wizardValidate(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardMenu, picks()...)
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	opts, err := p.editOptions(ctx, req.Event, prof, nil)
	if err != nil {
		return err
	}
	rev := opts.Revision
	problems, err := wizard.Validate(ctx, &opts, prof.TenantID, c)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	logger.Info(ctx, component, "wizard.validated",
		slog.String("account", prof.UserID),
		slog.Int("problems", len(problems)),
	)

	k := p.kb.New()
	if len(problems) > 0 {
		lines := make([]string, 0, len(problems)+1)
		lines = append(lines, fmt.Sprintf("Validation found %d problem(s):", len(problems)))
		for _, v := range problems {
			lines = append(lines, v.String())
		}
		k.Back(back)
		return p.show(ctx, req, strings.Join(lines, "\n"), k)
	}
	_, err = p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		return o.MarkValidated(rev)
	})
	switch {
	case errors.Is(err, wizard.ErrChanged):
		k.Back(back)
		return p.show(ctx, req, "The options changed during validation. Validate again.", k)
	case errors.Is(err, wizard.ErrInProgress):
		return alert(ctx, req, launchRunningText)
	case err != nil:
		return err
	}
	k.Add("Execute", next(env, actWizardExecute))
	k.Back(back)
	return p.show(ctx, req, "Validation passed.", k)
}

// wizardExecute launches a validated record. The record is marked executing under its lock and the
// launch runs outside it; success clears the record and failure keeps every choice.
func (p *Panel) wizardExecute(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actWizardMenu, picks()...)
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	key := launchKey{req.Event.ChatID, req.Event.UserID}
	reserved := false
	defer func() {
		if reserved {
			p.launching.Delete(key)
		}
	}()
	opts, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
		if err := o.BeginExecute(); err != nil {
			return err
		}
		p.launching.Store(key, struct{}{})
		reserved = true
		return nil
	})
	switch {
	case errors.Is(err, wizard.ErrInProgress):
		return alert(ctx, req, launchRunningText)
	case errors.Is(err, wizard.ErrNotValidated):
		return alert(ctx, req, "Validate the options first.")
	case err != nil:
		return err
	}

	inst, launchErr := c.LaunchInstance(ctx, opts.LaunchRequest(prof.TenantID))
	if launchErr != nil {
		logger.Warn(ctx, component, "wizard.launch_failed",
			slog.String("account", prof.UserID),
			slog.String("err", launchErr.Error()),
		)
		if _, err := p.editOptions(ctx, req.Event, prof, func(o *wizard.Options) error {
			o.Fail(launchErr)
			return nil
		}); err != nil {
			return err
		}
		return p.failure(ctx, req, launchErr, back)
	}

	if err := p.options.Set(ctx, req.Event.ChatID, req.Event.UserID, nil); err != nil {
		return err
	}
	logger.Info(ctx, component, "wizard.launched",
		slog.String("account", prof.UserID),
		slog.String("instance", inst.ID),
	)
	k := p.kb.New()
	k.Add("Open server", next(accountEnv(actServerList, prof), actServerManage, envelope.Set(instanceKey, inst.ID)))
	k.Back(accountEnv(actAccountManage, prof))
	return p.show(ctx, req, fmt.Sprintf("Instance %s created. state: %s", inst.DisplayName, inst.State), k)
}

func (p *Panel) wizardAbort(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	if err := p.options.Set(ctx, req.Event.ChatID, req.Event.UserID, nil); err != nil {
		return err
	}
	k := p.kb.New().Back(accountEnv(actAccountManage, prof))
	return p.show(ctx, req, "Instance creation aborted.", k)
}
