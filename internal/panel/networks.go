package panel

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	"github.com/m3rciful/ocipanel/core/telegram/format"
	"github.com/m3rciful/ocipanel/internal/provider"
)

const (
	actNetworkList          = "network.list"
	actNetworkCreate        = "network.create"
	actNetworkManage        = "network.manage"
	actNetworkSubnet        = "network.subnet"
	actNetworkDelete        = "network.delete"
	actNetworkDeleteConfirm = "network.delete.confirm"

	flowVcnCreate = "vcn_create"
)

func (p *Panel) networkActions() []action {
	return []action{
		{name: actNetworkList, handler: p.networkList},
		{name: actNetworkCreate, handler: p.startFlow(flowVcnCreate)},
		{name: actNetworkManage, handler: p.networkManage},
		{name: actNetworkSubnet, handler: p.networkSubnet},
		{name: actNetworkDelete, handler: p.networkDelete},
		{name: actNetworkDeleteConfirm, handler: p.networkDeleteConfirm},
	}
}

func (p *Panel) networkList(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actAccountManage, envelope.Unset(vcnIDKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	vcns, err := c.ListVcns(ctx, prof.TenantID)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New()
	count := 0
	for _, v := range vcns {
		if v.State == provider.StateTerminated {
			continue
		}
		count++
		k.Add(fmt.Sprintf("%s %s [%s]", v.DisplayName, v.CIDR, v.State), next(env, actNetworkManage, envelope.Set(vcnIDKey, v.ID)))
	}
	k.Add("Create VCN", next(env, actNetworkCreate))
	k.Back(back)
	return p.show(ctx, req, fmt.Sprintf("VCNs of %s: %d", prof.Name, count), k)
}

func vcnID(env envelope.Envelope) (string, error) {
	id, ok := envelope.Lookup(env.Data(), vcnIDKey)
	if !ok || id == "" {
		return "", errors.New("panel: envelope without vcn")
	}
	return id, nil
}

func (p *Panel) networkManage(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	id, err := vcnID(env)
	if err != nil {
		return err
	}
	back := next(env, actNetworkList, envelope.Unset(vcnIDKey), envelope.Unset(subnetIDKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}

	var (
		vcn     provider.Vcn
		subnets []provider.Subnet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vcn, err = c.GetVcn(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		subnets, err = c.ListSubnets(gctx, prof.TenantID, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return p.failure(ctx, req, err, back)
	}

	k := p.kb.New()
	for _, s := range subnets {
		k.Add(fmt.Sprintf("%s %s", s.DisplayName, s.CIDR), next(env, actNetworkSubnet, envelope.Set(subnetIDKey, s.ID)))
	}
	k.Add("Delete VCN", next(env, actNetworkDelete))
	k.Back(back)
	text := fmt.Sprintf("VCN: %s\ncidr: %s\nstate: %s\nsubnets: %d", vcn.DisplayName, vcn.CIDR, vcn.State, len(subnets))
	return p.show(ctx, req, text, k)
}

func (p *Panel) networkSubnet(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	id, ok := envelope.Lookup(env.Data(), subnetIDKey)
	if !ok || id == "" {
		return errors.New("panel: envelope without subnet")
	}
	back := next(env, actNetworkManage, envelope.Unset(subnetIDKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	s, err := c.GetSubnet(ctx, id)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subnet: *%s*\n", format.Escape(s.DisplayName))
	b.WriteString(format.Field("id", s.ID) + "\n")
	b.WriteString(format.Field("cidr", s.CIDR) + "\n")
	b.WriteString(format.Field("state", s.State))
	if s.AvailabilityDomain != "" {
		b.WriteString("\n" + format.Field("availability domain", s.AvailabilityDomain))
	} else {
		b.WriteString("\nregional")
	}
	if s.ProhibitPublicIP {
		b.WriteString("\npublic IPs prohibited")
	}
	k := p.kb.New().Back(back)
	return p.showMarkdown(ctx, req, b.String(), k)
}

func (p *Panel) networkDelete(ctx context.Context, req *dispatch.Request) error {
	env := req.Event.Envelope
	rows, err := p.kb.Prompt(next(env, actNetworkDeleteConfirm), next(env, actNetworkManage))
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: "Delete this VCN?", Keyboard: rows})
	return err
}

func (p *Panel) networkDeleteConfirm(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	id, err := vcnID(env)
	if err != nil {
		return err
	}
	back := next(env, actNetworkList, envelope.Unset(vcnIDKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	if err := c.DeleteVcn(ctx, id); err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New().Back(back)
	return p.show(ctx, req, "VCN deleted.", k)
}

func (p *Panel) vcnCreateFlow() replyflow.Flow {
	return singleStage(flowVcnCreate, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		return dispatch.Message{Text: withHint(hint, "Send the new VCN as <name> <cidr>, for example main 10.0.0.0/16."), Placeholder: "main 10.0.0.0/16"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		name, cidr, ok := parseVcnSpec(t.Req.Event.Text)
		if !ok {
			return replyflow.Retry("Expected a name and an IPv4 CIDR block separated by a space."), nil
		}
		prof, err := profileOf(t.Envelope)
		if err != nil {
			return replyflow.Result{}, err
		}
		back := next(t.Envelope, actNetworkList)
		c, err := p.client(ctx, prof)
		if err != nil {
			return replyflow.Result{}, err
		}
		vcn, err := c.CreateVcn(ctx, prof.TenantID, name, cidr)
		if err != nil {
			return replyflow.Finish(), p.failure(ctx, t.Req, err, back)
		}
		k := p.kb.New()
		k.Add("Open VCN", next(t.Envelope, actNetworkManage, envelope.Set(vcnIDKey, vcn.ID)))
		k.Back(back)
		return replyflow.Finish(), p.show(ctx, t.Req, fmt.Sprintf("VCN %s %s created.", vcn.DisplayName, vcn.CIDR), k)
	})
}

// parseVcnSpec splits "<name> <cidr>" and canonicalises the block.
func parseVcnSpec(text string) (string, string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", "", false
	}
	name, ok := cleanName(fields[0])
	if !ok {
		return "", "", false
	}
	prefix, err := netip.ParsePrefix(fields[1])
	if err != nil || !prefix.Addr().Is4() {
		return "", "", false
	}
	return name, prefix.Masked().String(), true
}
