package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	"github.com/m3rciful/ocipanel/core/telegram/format"
	"github.com/m3rciful/ocipanel/internal/accounts"
	"github.com/m3rciful/ocipanel/internal/provider"
)

const (
	actServerList          = "server.list"
	actServerManage        = "server.manage"
	actServerRename        = "server.rename"
	actServerPower         = "server.power"
	actServerPowerAsk      = "server.power.ask"
	actServerPowerApply    = "server.power.apply"
	actServerRemove        = "server.remove"
	actServerRemoveConfirm = "server.remove.confirm"
	actServerVolumesDelete = "server.volumes.delete"

	flowServerRename = "server_rename"
)

func (p *Panel) serverActions() []action {
	return []action{
		{name: actServerList, handler: p.serverList},
		{name: actServerManage, handler: p.serverManage},
		{name: actServerRename, handler: p.serverRename},
		{name: actServerPower, handler: p.serverPower},
		{name: actServerPowerAsk, handler: p.serverPowerAsk},
		{name: actServerPowerApply, handler: p.serverPowerApply},
		{name: actServerRemove, handler: p.serverRemove},
		{name: actServerRemoveConfirm, handler: p.serverRemoveConfirm},
		{name: actServerVolumesDelete, handler: p.serverVolumesDelete},
	}
}

// instanceCompartment scopes per-instance listings to the compartment the instance lives in.
func instanceCompartment(inst provider.Instance, prof accounts.Profile) string {
	if inst.CompartmentID != "" {
		return inst.CompartmentID
	}
	return prof.TenantID
}

// liveInstance excludes instances on their way out.
func liveInstance(state string) bool {
	return state != provider.StateTerminated && state != provider.StateTerminating
}

func (p *Panel) serverList(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actAccountManage, envelope.Unset(instanceKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	list, err := c.ListInstances(ctx, prof.TenantID)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}

	k := p.kb.New()
	count := 0
	for _, inst := range list {
		if !liveInstance(inst.State) {
			continue
		}
		count++
		k.Add(fmt.Sprintf("%s [%s]", inst.DisplayName, inst.State), next(env, actServerManage, envelope.Set(instanceKey, inst.ID)))
	}
	k.Back(back)
	text := fmt.Sprintf("Servers of %s: %d", prof.Name, count)
	if count == 0 {
		text = "No servers in " + prof.Name + "."
	}
	return p.show(ctx, req, text, k)
}

func instanceID(req *dispatch.Request) (string, error) {
	id, ok := envelope.Lookup(req.Event.Envelope.Data(), instanceKey)
	if !ok || id == "" {
		return "", errors.New("panel: envelope without instance")
	}
	return id, nil
}

func (p *Panel) serverManage(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	id, err := instanceID(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actServerList, envelope.Unset(instanceKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	inst, err := c.GetInstance(ctx, id)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	vnics, err := c.ListInstanceVnics(ctx, instanceCompartment(inst, prof), id)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}

	k := p.kb.New()
	k.Row(k.Button("Refresh", next(env, actServerManage)), k.Button("Rename", next(env, actServerRename)))
	k.Row(k.Button("Power", next(env, actServerPower)), k.Button("Remove", next(env, actServerRemove)))
	k.Back(back)
	return p.showMarkdown(ctx, req, describeInstance(inst, vnics), k)
}

func describeInstance(inst provider.Instance, vnics []provider.Vnic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Server: *%s*\n", format.Escape(inst.DisplayName))
	b.WriteString(format.Field("id", inst.ID) + "\n")
	b.WriteString(format.Field("state", inst.State) + "\n")
	shape := inst.Shape
	if inst.OCPUs > 0 {
		shape += fmt.Sprintf(" (%g OCPU, %g GB)", inst.OCPUs, inst.MemoryGB)
	}
	b.WriteString(format.Field("shape", shape))
	placement := inst.AvailabilityDomain
	if inst.FaultDomain != "" {
		placement += " / " + inst.FaultDomain
	}
	b.WriteString("\n" + format.Field("placement", placement))
	for _, v := range vnics {
		label := v.Name
		if label == "" {
			label = "vnic"
		}
		if v.Primary {
			label += " (primary)"
		}
		fmt.Fprintf(&b, "\n%s: private %s", format.Escape(label), format.Code(v.PrivateIP))
		if v.PublicIP != "" {
			fmt.Fprintf(&b, ", public %s", format.Code(v.PublicIP))
		}
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (p *Panel) serverRename(ctx context.Context, req *dispatch.Request) error {
	return p.flows.Start(ctx, req, flowServerRename, req.Event.Envelope, nil)
}

func (p *Panel) serverRenameFlow() replyflow.Flow {
	return singleStage(flowServerRename, func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
		return dispatch.Message{Text: withHint(hint, "Send a new name for the server."), Placeholder: "server name"}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		name, ok := cleanName(t.Req.Event.Text)
		if !ok {
			return replyflow.Retry(fmt.Sprintf("The name must be 1 to %d characters.", maxNameLength)), nil
		}
		prof, err := profileOf(t.Envelope)
		if err != nil {
			return replyflow.Result{}, err
		}
		id, ok := envelope.Lookup(t.Envelope.Data(), instanceKey)
		if !ok {
			return replyflow.Result{}, errors.New("panel: rename without instance")
		}
		back := next(t.Envelope, actServerManage)
		c, err := p.client(ctx, prof)
		if err != nil {
			return replyflow.Result{}, err
		}
		inst, err := c.RenameInstance(ctx, id, name)
		if err != nil {
			return replyflow.Finish(), p.failure(ctx, t.Req, err, back)
		}
		k := p.kb.New().Add("Open server", back)
		return replyflow.Finish(), p.show(ctx, t.Req, "Server renamed to "+inst.DisplayName+".", k)
	})
}

func (p *Panel) serverPower(ctx context.Context, req *dispatch.Request) error {
	env := req.Event.Envelope
	k := p.kb.New()
	buttons := make([]dispatch.Button, 0, len(provider.PowerActions))
	for _, a := range provider.PowerActions {
		buttons = append(buttons, k.Button(string(a), next(env, actServerPowerAsk, envelope.Set(powerKey, a))))
	}
	k.Chunk(buttons, 2)
	k.Back(next(env, actServerManage, envelope.Unset(powerKey)))
	return p.show(ctx, req, "Choose a power action.", k)
}

func (p *Panel) serverPowerAsk(ctx context.Context, req *dispatch.Request) error {
	env := req.Event.Envelope
	a, ok := envelope.Lookup(env.Data(), powerKey)
	if !ok || !a.Valid() {
		return errors.New("panel: envelope without power action")
	}
	rows, err := p.kb.Prompt(next(env, actServerPowerApply), next(env, actServerPower, envelope.Unset(powerKey)))
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: fmt.Sprintf("Run %s on this server?", a), Keyboard: rows})
	return err
}

func (p *Panel) serverPowerApply(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	id, err := instanceID(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	a, ok := envelope.Lookup(env.Data(), powerKey)
	if !ok || !a.Valid() {
		return errors.New("panel: envelope without power action")
	}
	back := next(env, actServerManage, envelope.Unset(powerKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	inst, err := c.InstanceAction(ctx, id, a)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	k := p.kb.New().Back(back)
	return p.show(ctx, req, fmt.Sprintf("%s accepted. %s is %s.", a, inst.DisplayName, inst.State), k)
}

func (p *Panel) serverRemove(ctx context.Context, req *dispatch.Request) error {
	env := req.Event.Envelope
	rows, err := p.kb.Prompt(next(env, actServerRemoveConfirm), next(env, actServerManage))
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: "Terminate this server? Boot volumes are kept until you delete them.", Keyboard: rows})
	return err
}

// serverRemoveConfirm terminates the instance keeping its boot volumes, then offers to delete them.
func (p *Panel) serverRemoveConfirm(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	id, err := instanceID(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	back := next(env, actServerList, envelope.Unset(instanceKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	inst, err := c.GetInstance(ctx, id)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	attachments, err := c.ListBootVolumeAttachments(ctx, instanceCompartment(inst, prof), inst.AvailabilityDomain, id, "")
	if err != nil {
		return p.failure(ctx, req, err, back)
	}
	if err := c.TerminateInstance(ctx, id, true); err != nil {
		return p.failure(ctx, req, err, back)
	}

	volumes := make([]string, 0, len(attachments))
	for _, a := range attachments {
		volumes = append(volumes, a.BootVolumeID)
	}
	k := p.kb.New()
	text := inst.DisplayName + " is terminating."
	if len(volumes) > 0 {
		text += fmt.Sprintf("\nIt kept %d boot volume(s).", len(volumes))
		k.Add("Delete boot volumes", next(env, actServerVolumesDelete, envelope.Set(volumesKey, volumes)))
	}
	k.Back(back)
	return p.show(ctx, req, text, k)
}

func (p *Panel) serverVolumesDelete(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	volumes, _ := envelope.Lookup(env.Data(), volumesKey)
	back := next(env, actServerList, envelope.Unset(instanceKey), envelope.Unset(volumesKey))
	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	steps := make([]Step, 0, len(volumes))
	for _, id := range volumes {
		steps = append(steps, Step{
			Name: "delete boot volume " + id,
			Run:  func(ctx context.Context) error { return c.DeleteBootVolume(ctx, id) },
		})
	}
	results := RunSteps(ctx, steps)
	k := p.kb.New().Back(back)
	return p.show(ctx, req, renderSteps("Boot volume cleanup:", results), k)
}
