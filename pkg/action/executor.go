package action

import (
	"context"
	"fmt"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"

	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/network"
	"github.com/opensnatch/snatchd/pkg/notify"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/types"
)

// Kind names one instance action.
type Kind string

const (
	KindStart      Kind = "start"
	KindStop       Kind = "stop"
	KindRestart    Kind = "restart"
	KindTerminate  Kind = "terminate"
	KindChangeIP   Kind = "changeip"
	KindAssignIPv6 Kind = "assignipv6"
	KindRename     Kind = "rename"
	KindReshape    Kind = "reshape"
	KindResize     Kind = "resize"
)

const (
	actionWaitTimeout  = 300 * time.Second
	actionWaitInterval = 5 * time.Second

	// Gap between releasing an ephemeral public IP and requesting a new
	// one; immediate re-creation tends to hand the same address back.
	changeIPGap = 5 * time.Second
)

// Params carries the per-kind extras of an action request.
type Params struct {
	NewName     string  `json:"new_name,omitempty"`
	Shape       string  `json:"shape,omitempty"`
	OCPUs       float32 `json:"ocpus,omitempty"`
	MemoryInGBs float32 `json:"memory_in_gbs,omitempty"`
	SizeInGBs   int64   `json:"size_in_gbs,omitempty"`
	BindDomain  bool    `json:"bind_domain,omitempty"`
}

// Request is one action assignment.
type Request struct {
	Alias      string
	Profile    *types.Profile
	InstanceID string
	Kind       Kind
	Params     Params

	// WebOrigin suppresses the Telegram notification; the requester is
	// watching the panel already.
	WebOrigin bool
}

// TaskRow is the slice of the task registry the executor may touch.
type TaskRow interface {
	ID() string
	SetRunning(result string) error
	UpdateProgress(result string) error
	SetSuccess(result string) error
	SetFailure(result string) error
}

// ClientFactory builds the per-profile client bundle.
type ClientFactory func(ctx context.Context, p *types.Profile) (*oci.Clients, error)

// IPv6Enabler is the slice of the network bootstrapper assignipv6 needs.
type IPv6Enabler interface {
	EnableIPv6(ctx context.Context, vnicID string, report network.Reporter) error
}

// Executor runs instance actions to a terminal task status. Every run
// ends in success or failure with completed_at stamped; nothing is
// retried.
type Executor struct {
	clients   ClientFactory
	bootstrap func(netAPI oci.NetworkAPI) IPv6Enabler
	dns       notify.DNSBinder
	telegram  notify.Telegram

	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor with production wiring.
func NewExecutor(profiles network.SubnetRemember, dns notify.DNSBinder, telegram notify.Telegram) *Executor {
	e := &Executor{
		clients: func(ctx context.Context, p *types.Profile) (*oci.Clients, error) {
			return oci.NewClients(ctx, p, false)
		},
		dns:      dns,
		telegram: telegram,
	}
	e.bootstrap = func(netAPI oci.NetworkAPI) IPv6Enabler {
		return network.NewBootstrapper(netAPI, profiles)
	}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	return e
}

// SetClientFactory replaces the SDK client factory.
func (e *Executor) SetClientFactory(f ClientFactory) { e.clients = f }

// SetBootstrapFactory replaces the bootstrapper factory.
func (e *Executor) SetBootstrapFactory(f func(netAPI oci.NetworkAPI) IPv6Enabler) { e.bootstrap = f }

// Run executes one action. The outcome lands on the row; the returned
// error is for infrastructure failures only.
func (e *Executor) Run(ctx context.Context, row TaskRow, req Request) error {
	logger := log.WithComponent("action").With().
		Str("task_id", row.ID()).Str("kind", string(req.Kind)).Str("instance", req.InstanceID).Logger()

	if err := row.SetRunning(fmt.Sprintf("executing %s...", req.Kind)); err != nil {
		return err
	}

	msg, err := e.dispatch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg = fmt.Sprintf("❌ %s failed: %v", req.Kind, err)
		if ferr := row.SetFailure(msg); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record action failure")
		}
		logger.Warn().Err(err).Msg("action failed")
	} else {
		if serr := row.SetSuccess(msg); serr != nil {
			logger.Error().Err(serr).Msg("failed to record action success")
			return serr
		}
		logger.Info().Msg("action completed")
	}

	if !req.WebOrigin {
		e.telegram.Send(ctx, msg)
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, req Request) (string, error) {
	clients, err := e.clients(ctx, req.Profile)
	if err != nil {
		return "", err
	}

	instance, err := e.getInstance(ctx, clients.Compute, req.InstanceID)
	if err != nil {
		if req.Kind == KindTerminate && oci.IsNotFound(err) {
			return fmt.Sprintf("✅ instance %s is already terminated", req.InstanceID), nil
		}
		return "", err
	}
	name := ""
	if instance.DisplayName != nil {
		name = *instance.DisplayName
	}

	switch req.Kind {
	case KindStart:
		return e.power(ctx, clients.Compute, req.InstanceID, name, core.InstanceActionActionStart, core.InstanceLifecycleStateRunning, "started")
	case KindStop:
		return e.power(ctx, clients.Compute, req.InstanceID, name, core.InstanceActionActionStop, core.InstanceLifecycleStateStopped, "stopped")
	case KindRestart:
		return e.power(ctx, clients.Compute, req.InstanceID, name, core.InstanceActionActionSoftreset, core.InstanceLifecycleStateRunning, "restarted")
	case KindTerminate:
		return e.terminate(ctx, clients.Compute, req.InstanceID, name)
	case KindChangeIP:
		return e.changeIP(ctx, clients, instance, req)
	case KindAssignIPv6:
		return e.assignIPv6(ctx, clients, instance, req)
	case KindRename:
		return e.rename(ctx, clients.Compute, req.InstanceID, name, req.Params.NewName)
	case KindReshape:
		return e.reshape(ctx, clients.Compute, instance, req.Params)
	case KindResize:
		return e.resizeBootVolume(ctx, clients, instance, req.Params.SizeInGBs)
	default:
		return "", fmt.Errorf("unsupported action %q", req.Kind)
	}
}

func (e *Executor) getInstance(ctx context.Context, compute oci.ComputeAPI, id string) (core.Instance, error) {
	resp, err := compute.GetInstance(ctx, core.GetInstanceRequest{InstanceId: common.String(id)})
	if err != nil {
		return core.Instance{}, err
	}
	return resp.Instance, nil
}

func (e *Executor) power(ctx context.Context, compute oci.ComputeAPI, id, name string, action core.InstanceActionActionEnum, target core.InstanceLifecycleStateEnum, verb string) (string, error) {
	_, err := compute.InstanceAction(ctx, core.InstanceActionRequest{
		InstanceId: common.String(id),
		Action:     action,
	})
	if err != nil {
		return "", err
	}
	err = oci.WaitUntil(ctx, actionWaitInterval, actionWaitTimeout, func(ctx context.Context) (bool, error) {
		resp, err := compute.GetInstance(ctx, core.GetInstanceRequest{InstanceId: common.String(id)})
		if err != nil {
			return false, err
		}
		return resp.LifecycleState == target, nil
	})
	if err != nil {
		return "", fmt.Errorf("instance never reached %s: %w", target, err)
	}
	return fmt.Sprintf("✅ instance %s %s", name, verb), nil
}

// terminate waits for TERMINATED; a 404 on the way means the same thing.
func (e *Executor) terminate(ctx context.Context, compute oci.ComputeAPI, id, name string) (string, error) {
	_, err := compute.TerminateInstance(ctx, core.TerminateInstanceRequest{
		InstanceId: common.String(id),
	})
	if err != nil && !oci.IsNotFound(err) {
		return "", err
	}
	err = oci.WaitUntil(ctx, actionWaitInterval, actionWaitTimeout, func(ctx context.Context) (bool, error) {
		resp, err := compute.GetInstance(ctx, core.GetInstanceRequest{InstanceId: common.String(id)})
		if err != nil {
			if oci.IsNotFound(err) {
				return true, nil
			}
			return false, err
		}
		return resp.LifecycleState == core.InstanceLifecycleStateTerminated, nil
	})
	if err != nil {
		return "", fmt.Errorf("instance never reached TERMINATED: %w", err)
	}
	return fmt.Sprintf("✅ instance %s terminated", name), nil
}

// changeIP swaps the primary VNIC's ephemeral public IP for a fresh one.
func (e *Executor) changeIP(ctx context.Context, clients *oci.Clients, instance core.Instance, req Request) (string, error) {
	vnicID, err := e.primaryVnicID(ctx, clients, instance)
	if err != nil {
		return "", err
	}

	privateIPs, err := clients.Network.ListPrivateIps(ctx, core.ListPrivateIpsRequest{
		VnicId: common.String(vnicID),
	})
	if err != nil {
		return "", fmt.Errorf("listing private IPs: %w", err)
	}
	var privateIPID string
	for _, ip := range privateIPs.Items {
		if ip.IsPrimary != nil && *ip.IsPrimary && ip.Id != nil {
			privateIPID = *ip.Id
			break
		}
	}
	if privateIPID == "" {
		return "", fmt.Errorf("primary private IP not found")
	}

	existing, err := clients.Network.GetPublicIpByPrivateIpId(ctx, core.GetPublicIpByPrivateIpIdRequest{
		GetPublicIpByPrivateIpIdDetails: core.GetPublicIpByPrivateIpIdDetails{
			PrivateIpId: common.String(privateIPID),
		},
	})
	switch {
	case err == nil && existing.Id != nil:
		if _, derr := clients.Network.DeletePublicIp(ctx, core.DeletePublicIpRequest{
			PublicIpId: existing.Id,
		}); derr != nil {
			return "", fmt.Errorf("releasing public IP: %w", derr)
		}
		if serr := e.sleep(ctx, changeIPGap); serr != nil {
			return "", serr
		}
	case err != nil && !oci.IsNotFound(err):
		return "", fmt.Errorf("looking up public IP: %w", err)
	}

	created, err := clients.Network.CreatePublicIp(ctx, core.CreatePublicIpRequest{
		CreatePublicIpDetails: core.CreatePublicIpDetails{
			CompartmentId: instance.CompartmentId,
			Lifetime:      core.CreatePublicIpDetailsLifetimeEphemeral,
			PrivateIpId:   common.String(privateIPID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating public IP: %w", err)
	}
	newIP := ""
	if created.IpAddress != nil {
		newIP = *created.IpAddress
	}

	name := ""
	if instance.DisplayName != nil {
		name = *instance.DisplayName
	}
	msg := fmt.Sprintf("✅ instance %s has a new public IP: %s", name, newIP)
	if req.Params.BindDomain && newIP != "" {
		msg += "\n" + e.dns.Upsert(ctx, name, newIP, "A")
	}
	return msg, nil
}

// assignIPv6 completes the network path's IPv6 plumbing and attaches an
// address to the primary VNIC.
func (e *Executor) assignIPv6(ctx context.Context, clients *oci.Clients, instance core.Instance, req Request) (string, error) {
	vnicID, err := e.primaryVnicID(ctx, clients, instance)
	if err != nil {
		return "", err
	}

	if err := e.bootstrap(clients.Network).EnableIPv6(ctx, vnicID, nil); err != nil {
		return "", err
	}

	existing, err := clients.Network.ListIpv6s(ctx, core.ListIpv6sRequest{
		VnicId: common.String(vnicID),
	})
	if err != nil {
		return "", fmt.Errorf("listing IPv6 addresses: %w", err)
	}

	var address string
	if len(existing.Items) > 0 && existing.Items[0].IpAddress != nil {
		address = *existing.Items[0].IpAddress
	} else {
		created, err := clients.Network.CreateIpv6(ctx, core.CreateIpv6Request{
			CreateIpv6Details: core.CreateIpv6Details{
				VnicId: common.String(vnicID),
			},
		})
		if err != nil {
			return "", fmt.Errorf("creating IPv6 address: %w", err)
		}
		if created.IpAddress != nil {
			address = *created.IpAddress
		}
	}

	name := ""
	if instance.DisplayName != nil {
		name = *instance.DisplayName
	}
	msg := fmt.Sprintf("✅ instance %s has IPv6 address %s", name, address)
	if req.Params.BindDomain && address != "" {
		msg += "\n" + e.dns.Upsert(ctx, name, address, "AAAA")
	}
	return msg, nil
}

func (e *Executor) rename(ctx context.Context, compute oci.ComputeAPI, id, oldName, newName string) (string, error) {
	if newName == "" {
		return "", fmt.Errorf("new name must not be empty")
	}
	_, err := compute.UpdateInstance(ctx, core.UpdateInstanceRequest{
		InstanceId: common.String(id),
		UpdateInstanceDetails: core.UpdateInstanceDetails{
			DisplayName: common.String(newName),
		},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ instance %s renamed to %s", oldName, newName), nil
}

// reshape changes shape in place; the provider only accepts this on a
// stopped instance, so a running one gets an explanatory failure.
func (e *Executor) reshape(ctx context.Context, compute oci.ComputeAPI, instance core.Instance, params Params) (string, error) {
	if instance.LifecycleState != core.InstanceLifecycleStateStopped {
		return "", fmt.Errorf("instance must be STOPPED to change shape (currently %s)", instance.LifecycleState)
	}
	if params.Shape == "" {
		return "", fmt.Errorf("target shape must not be empty")
	}
	details := core.UpdateInstanceDetails{
		Shape: common.String(params.Shape),
	}
	if params.OCPUs > 0 {
		details.ShapeConfig = &core.UpdateInstanceShapeConfigDetails{
			Ocpus:       common.Float32(params.OCPUs),
			MemoryInGBs: common.Float32(params.MemoryInGBs),
		}
	}
	_, err := compute.UpdateInstance(ctx, core.UpdateInstanceRequest{
		InstanceId:            instance.Id,
		UpdateInstanceDetails: details,
	})
	if err != nil {
		return "", err
	}
	name := ""
	if instance.DisplayName != nil {
		name = *instance.DisplayName
	}
	return fmt.Sprintf("✅ instance %s reshaped to %s", name, params.Shape), nil
}

func (e *Executor) resizeBootVolume(ctx context.Context, clients *oci.Clients, instance core.Instance, sizeGB int64) (string, error) {
	if sizeGB <= 0 {
		return "", fmt.Errorf("target size must be positive")
	}
	attachments, err := clients.Compute.ListBootVolumeAttachments(ctx, core.ListBootVolumeAttachmentsRequest{
		AvailabilityDomain: instance.AvailabilityDomain,
		CompartmentId:      instance.CompartmentId,
		InstanceId:         instance.Id,
	})
	if err != nil {
		return "", fmt.Errorf("listing boot volume attachments: %w", err)
	}
	if len(attachments.Items) == 0 || attachments.Items[0].BootVolumeId == nil {
		return "", fmt.Errorf("instance has no boot volume attachment")
	}
	_, err = clients.BlockStorage.UpdateBootVolume(ctx, core.UpdateBootVolumeRequest{
		BootVolumeId: attachments.Items[0].BootVolumeId,
		UpdateBootVolumeDetails: core.UpdateBootVolumeDetails{
			SizeInGBs: common.Int64(sizeGB),
		},
	})
	if err != nil {
		return "", err
	}
	name := ""
	if instance.DisplayName != nil {
		name = *instance.DisplayName
	}
	return fmt.Sprintf("✅ boot volume of %s resized to %d GB", name, sizeGB), nil
}

// primaryVnicID returns the instance's first VNIC attachment.
func (e *Executor) primaryVnicID(ctx context.Context, clients *oci.Clients, instance core.Instance) (string, error) {
	attachments, err := clients.Compute.ListVnicAttachments(ctx, core.ListVnicAttachmentsRequest{
		CompartmentId: instance.CompartmentId,
		InstanceId:    instance.Id,
	})
	if err != nil {
		return "", fmt.Errorf("listing VNIC attachments: %w", err)
	}
	if len(attachments.Items) == 0 || attachments.Items[0].VnicId == nil {
		return "", fmt.Errorf("instance has no VNIC attachment")
	}
	return *attachments.Items[0].VnicId, nil
}
