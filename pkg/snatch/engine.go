package snatch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/rs/zerolog"

	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/network"
	"github.com/opensnatch/snatchd/pkg/notify"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/types"
)

const (
	defaultMinDelay = 30
	defaultMaxDelay = 90

	defaultBootVolumeGB = 50
	microShape          = "VM.Standard.E2.1.Micro"

	runningWaitTimeout  = 600 * time.Second
	runningPollInterval = 10 * time.Second

	// Progress writes are throttled to this interval unless the error
	// classification changes between attempts.
	persistInterval = 5 * time.Second
)

// TaskRow is the slice of the task registry an engine may touch: its own
// row, nothing else.
type TaskRow interface {
	ID() string
	Reload() (*types.Task, bool, error)
	UpdateProgress(result string) error
	SetRunning(result string) error
	SetSuccess(result string) error
	SetFailure(result string) error
}

// Bootstrap is the slice of the network bootstrapper the engine needs.
type Bootstrap interface {
	EnsureSubnet(ctx context.Context, p *types.Profile, alias string, report network.Reporter) (string, error)
}

// ClientFactory builds the per-profile client bundle. The engine never
// validates credentials up front; a bad profile surfaces as attempt
// errors like any other.
type ClientFactory func(ctx context.Context, p *types.Profile) (*oci.Clients, error)

// BootstrapFactory builds a bootstrapper over a profile's network client.
type BootstrapFactory func(netAPI oci.NetworkAPI) Bootstrap

// Job is one snatch assignment handed to the engine. Progress is set
// when the job resumes or recovers an existing row; nil means a fresh
// start from Details.
type Job struct {
	Alias    string
	Profile  *types.Profile
	Details  types.SnatchDetails
	Progress *types.SnatchProgress

	// OnAttempt, when set, is called with the attempt number before
	// each launch try. The pool uses it to publish attempt events.
	OnAttempt func(attempt int)
}

// Engine runs the capacity-snatching retry loop: rotate availability
// domains, launch, classify the failure, back off, repeat until the row
// is paused, deleted, reassigned or the launch lands.
type Engine struct {
	clients   ClientFactory
	bootstrap BootstrapFactory
	dns       notify.DNSBinder
	telegram  notify.Telegram

	// Overridable in tests.
	sleep       func(ctx context.Context, d time.Duration) error
	randInt     func(n int) int
	waitPoll    time.Duration
	waitTimeout time.Duration
}

// NewEngine builds an engine with production wiring: real SDK clients
// and the network bootstrapper persisting subnets through profiles.
func NewEngine(profiles network.SubnetRemember, dns notify.DNSBinder, telegram notify.Telegram) *Engine {
	e := &Engine{
		clients: func(ctx context.Context, p *types.Profile) (*oci.Clients, error) {
			return oci.NewClients(ctx, p, false)
		},
		dns:      dns,
		telegram: telegram,
	}
	e.bootstrap = func(netAPI oci.NetworkAPI) Bootstrap {
		return network.NewBootstrapper(netAPI, profiles)
	}
	e.sleep = sleepCtx
	e.randInt = rand.Intn
	e.waitPoll = runningPollInterval
	e.waitTimeout = runningWaitTimeout
	return e
}

// SetClientFactory replaces the SDK client factory.
func (e *Engine) SetClientFactory(f ClientFactory) { e.clients = f }

// SetBootstrapFactory replaces the bootstrapper factory.
func (e *Engine) SetBootstrapFactory(f BootstrapFactory) { e.bootstrap = f }

// Run executes one snatch to completion. It returns an error only for
// infrastructure failures the caller should log; task-level outcomes
// are written to the row.
func (e *Engine) Run(ctx context.Context, row TaskRow, job Job) error {
	logger := log.WithComponent("snatch").With().Str("task_id", row.ID()).Str("alias", job.Alias).Logger()

	prep, err := e.prepare(ctx, row, job)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-preparation: leave the row for recovery.
			return ctx.Err()
		}
		msg := fmt.Sprintf("❌ failed to prepare snatch: %v", err)
		if ferr := row.SetFailure(msg); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record preparation failure")
		}
		e.telegram.Send(ctx, msg)
		logger.Error().Err(err).Msg("snatch preparation failed")
		return nil
	}

	logger.Info().Str("shape", prep.progress.Details.Shape).Int("ads", len(prep.ads)).
		Msg("snatch loop starting")
	return e.loop(ctx, row, job, prep, logger)
}

// prepared carries everything the loop needs, assembled once.
type prepared struct {
	progress *types.SnatchProgress
	clients  *oci.Clients
	ads      []string
	imageID  string
	subnetID string
	password string
	template core.LaunchInstanceDetails
}

func (e *Engine) prepare(ctx context.Context, row TaskRow, job Job) (*prepared, error) {
	progress := job.Progress
	if progress == nil {
		progress = &types.SnatchProgress{
			RunID:       uuid.NewString(),
			StartTime:   types.NowUTC(),
			LastMessage: "starting...",
			Details:     job.Details,
		}
	}
	applyDefaults(&progress.Details)
	progress.Details.AccountAlias = job.Alias

	if err := e.writeProgress(row, progress); err != nil {
		return nil, err
	}

	clients, err := e.clients(ctx, job.Profile)
	if err != nil {
		return nil, err
	}

	ads, err := e.listADs(ctx, clients.Identity, job.Profile.TenancyID, progress.Details.AvailabilityDomain)
	if err != nil {
		return nil, err
	}

	report := func(msg string) {
		progress.LastMessage = msg
		if err := e.persist(row, progress); err != nil {
			log.WithComponent("snatch").Warn().Err(err).Msg("failed to persist bootstrap progress")
		}
	}
	subnetID, err := e.bootstrap(clients.Network).EnsureSubnet(ctx, job.Profile, job.Alias, report)
	if err != nil {
		return nil, fmt.Errorf("network bootstrap: %w", err)
	}

	imageID, err := e.resolveImage(ctx, clients.Compute, job.Profile.TenancyID, &progress.Details)
	if err != nil {
		return nil, err
	}

	password := progress.Details.InstancePassword
	if password == "" {
		password = GeneratePassword(16)
		progress.Details.InstancePassword = password
	}

	template := e.launchTemplate(job.Profile, &progress.Details, subnetID, imageID, password)

	if err := e.persist(row, progress); err != nil {
		return nil, err
	}
	return &prepared{
		progress: progress,
		clients:  clients,
		ads:      ads,
		imageID:  imageID,
		subnetID: subnetID,
		password: password,
		template: template,
	}, nil
}

// listADs returns the rotation set: the pinned availability domain when
// one is set, otherwise every AD of the tenancy.
func (e *Engine) listADs(ctx context.Context, id oci.IdentityAPI, tenancyID, pinned string) ([]string, error) {
	if pinned != "" {
		return []string{pinned}, nil
	}
	resp, err := id.ListAvailabilityDomains(ctx, identity.ListAvailabilityDomainsRequest{
		CompartmentId: common.String(tenancyID),
	})
	if err != nil {
		return nil, fmt.Errorf("listing availability domains: %w", err)
	}
	ads := make([]string, 0, len(resp.Items))
	for _, ad := range resp.Items {
		if ad.Name != nil {
			ads = append(ads, *ad.Name)
		}
	}
	if len(ads) == 0 {
		return nil, fmt.Errorf("tenancy reports no availability domains")
	}
	return ads, nil
}

// resolveImage picks the newest image matching OS, version and shape.
func (e *Engine) resolveImage(ctx context.Context, compute oci.ComputeAPI, tenancyID string, d *types.SnatchDetails) (string, error) {
	resp, err := compute.ListImages(ctx, core.ListImagesRequest{
		CompartmentId:          common.String(tenancyID),
		OperatingSystem:        common.String(d.OS),
		OperatingSystemVersion: common.String(d.OSVersion),
		Shape:                  common.String(d.Shape),
		SortBy:                 core.ListImagesSortByTimecreated,
		SortOrder:              core.ListImagesSortOrderDesc,
	})
	if err != nil {
		return "", fmt.Errorf("listing images: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil {
		return "", fmt.Errorf("no image found for %s %s on %s", d.OS, d.OSVersion, d.Shape)
	}
	return *resp.Items[0].Id, nil
}

func (e *Engine) launchTemplate(p *types.Profile, d *types.SnatchDetails, subnetID, imageID, password string) core.LaunchInstanceDetails {
	metadata := map[string]string{
		"user_data": UserData(password, d.StartupScript),
	}
	if p.DefaultSSHPublicKey != "" {
		metadata["ssh_authorized_keys"] = p.DefaultSSHPublicKey
	}

	details := core.LaunchInstanceDetails{
		CompartmentId: common.String(p.TenancyID),
		Shape:         common.String(d.Shape),
		Metadata:      metadata,
		CreateVnicDetails: &core.CreateVnicDetails{
			SubnetId:       common.String(subnetID),
			AssignPublicIp: common.Bool(true),
		},
		SourceDetails: core.InstanceSourceViaImageDetails{
			ImageId:             common.String(imageID),
			BootVolumeSizeInGBs: common.Int64(d.BootVolumeSize),
		},
		AgentConfig: &core.LaunchInstanceAgentConfigDetails{
			PluginsConfig: []core.InstanceAgentPluginConfigDetails{
				{Name: common.String("Compute Instance Monitoring"), DesiredState: core.InstanceAgentPluginConfigDetailsDesiredStateDisabled},
				{Name: common.String("Custom Logs Monitoring"), DesiredState: core.InstanceAgentPluginConfigDetailsDesiredStateDisabled},
			},
		},
	}
	if strings.Contains(d.Shape, "Flex") {
		details.ShapeConfig = &core.LaunchInstanceShapeConfigDetails{
			Ocpus:       common.Float32(d.OCPUs),
			MemoryInGBs: common.Float32(d.MemoryInGBs),
		}
	}
	return details
}

// loop is the retry loop proper. Each iteration checks ownership,
// rotates the AD, launches, and classifies the outcome.
func (e *Engine) loop(ctx context.Context, row TaskRow, job Job, prep *prepared, logger zerolog.Logger) error {
	progress := prep.progress
	var lastKind string
	lastPersist := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		owned, err := e.stillOwned(row, progress.RunID)
		if err != nil {
			return err
		}
		if !owned {
			logger.Info().Msg("snatch ownership lost, exiting")
			return nil
		}

		progress.AttemptCount++
		if job.OnAttempt != nil {
			job.OnAttempt(progress.AttemptCount)
		}
		ad := prep.ads[(progress.AttemptCount-1)%len(prep.ads)]
		progress.Details.AD = ad

		name := instanceName(progress.Details.DisplayNamePrefix, progress.AttemptCount)
		launch := prep.template
		launch.AvailabilityDomain = common.String(ad)
		launch.DisplayName = common.String(name)

		resp, err := prep.clients.Compute.LaunchInstance(ctx, core.LaunchInstanceRequest{
			LaunchInstanceDetails: launch,
		})
		if err == nil {
			return e.finish(ctx, row, job, prep, resp.Instance, name, ad, logger)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind, msg := classify(err, ad)
		progress.LastMessage = msg
		logger.Debug().Int("attempt", progress.AttemptCount).Str("ad", ad).Str("kind", kind).Msg(msg)

		if kind != lastKind || time.Since(lastPersist) >= persistInterval {
			if err := e.persist(row, progress); err != nil {
				return err
			}
			lastKind = kind
			lastPersist = time.Now()
		}

		owned, err = e.stillOwned(row, progress.RunID)
		if err != nil {
			return err
		}
		if !owned {
			logger.Info().Msg("snatch ownership lost after attempt, exiting")
			return nil
		}

		if err := e.sleep(ctx, e.retryDelay(&progress.Details)); err != nil {
			return err
		}
	}
}

// finish drives a successful launch to a terminal row: wait for
// RUNNING, fetch the public IP, bind DNS if asked, notify.
func (e *Engine) finish(ctx context.Context, row TaskRow, job Job, prep *prepared, instance core.Instance, name, ad string, logger zerolog.Logger) error {
	progress := prep.progress
	progress.LastMessage = fmt.Sprintf("attempt %d succeeded, provisioning...", progress.AttemptCount)
	if err := e.persist(row, progress); err != nil {
		return err
	}

	instanceID := ""
	if instance.Id != nil {
		instanceID = *instance.Id
	}
	if err := e.waitRunning(ctx, prep.clients.Compute, instanceID); err != nil {
		msg := fmt.Sprintf("❌ instance %s launched but did not reach RUNNING: %v", name, err)
		if ferr := row.SetFailure(msg); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record provisioning failure")
		}
		e.telegram.Send(ctx, msg)
		return nil
	}

	publicIP := e.lookupPublicIP(ctx, prep.clients, job.Profile.TenancyID, instanceID)

	msg := successMessage(progress, name, ad, publicIP, prep.password)
	if progress.Details.AutoBindDomain && publicIP != "" {
		msg += "\n" + e.dns.Upsert(ctx, name, publicIP, "A")
	}

	if err := row.SetSuccess(msg); err != nil {
		logger.Error().Err(err).Msg("failed to record snatch success")
		return err
	}
	e.telegram.Send(ctx, msg)
	logger.Info().Int("attempts", progress.AttemptCount).Str("instance", name).Msg("snatch succeeded")
	return nil
}

// RunCreate is the one-shot launch flow behind the create task type:
// same preparation as a snatch, then Details.InstanceCount sequential
// launch attempts with 3 s gaps and no retry loop.
func (e *Engine) RunCreate(ctx context.Context, row TaskRow, job Job) error {
	logger := log.WithComponent("create").With().Str("task_id", row.ID()).Str("alias", job.Alias).Logger()

	prep, err := e.prepare(ctx, row, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := fmt.Sprintf("❌ failed to prepare launch: %v", err)
		if ferr := row.SetFailure(msg); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record preparation failure")
		}
		e.telegram.Send(ctx, msg)
		return nil
	}

	count := prep.progress.Details.InstanceCount
	if count <= 0 {
		count = 1
	}
	ad := prep.ads[0]

	var created []string
	var firstErr error
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := e.sleep(ctx, 3*time.Second); err != nil {
				return err
			}
		}
		name := instanceName(prep.progress.Details.DisplayNamePrefix, i+1)
		launch := prep.template
		launch.AvailabilityDomain = common.String(ad)
		launch.DisplayName = common.String(name)

		prep.progress.LastMessage = fmt.Sprintf("launching instance %d of %d...", i+1, count)
		if err := e.persist(row, prep.progress); err != nil {
			return err
		}

		_, err := prep.clients.Compute.LaunchInstance(ctx, core.LaunchInstanceRequest{
			LaunchInstanceDetails: launch,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn().Err(err).Str("instance", name).Msg("launch failed")
			continue
		}
		created = append(created, name)
	}

	var msg string
	switch {
	case len(created) == count:
		msg = fmt.Sprintf("🎉 %d instance(s) created!\n- Instances: %s\n- User: ubuntu\n- Password: %s",
			len(created), strings.Join(created, ", "), prep.password)
		err = row.SetSuccess(msg)
	case len(created) > 0:
		msg = fmt.Sprintf("❌ only %d of %d instances created (%s); first error: %v",
			len(created), count, strings.Join(created, ", "), firstErr)
		err = row.SetFailure(msg)
	default:
		msg = fmt.Sprintf("❌ no instances created: %v", firstErr)
		err = row.SetFailure(msg)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to record create result")
		return err
	}
	e.telegram.Send(ctx, msg)
	return nil
}

// stillOwned re-reads the row and reports whether this run id is still
// the authoritative worker. A deleted row, a non-running status or a
// foreign run id all mean the worker must exit without touching the row.
func (e *Engine) stillOwned(row TaskRow, runID string) (bool, error) {
	task, found, err := row.Reload()
	if err != nil {
		return false, err
	}
	if !found || task.Status != types.TaskStatusRunning {
		return false, nil
	}
	result := types.ParseTaskResult(task.Result)
	return result.Progress != nil && result.Progress.RunID == runID, nil
}

func (e *Engine) waitRunning(ctx context.Context, compute oci.ComputeAPI, instanceID string) error {
	return oci.WaitUntil(ctx, e.waitPoll, e.waitTimeout, func(ctx context.Context) (bool, error) {
		resp, err := compute.GetInstance(ctx, core.GetInstanceRequest{
			InstanceId: common.String(instanceID),
		})
		if err != nil {
			return false, err
		}
		return resp.LifecycleState == core.InstanceLifecycleStateRunning, nil
	})
}

// lookupPublicIP returns the primary VNIC's public IP, or empty; IP
// discovery failures never fail a landed snatch.
func (e *Engine) lookupPublicIP(ctx context.Context, clients *oci.Clients, tenancyID, instanceID string) string {
	attachments, err := clients.Compute.ListVnicAttachments(ctx, core.ListVnicAttachmentsRequest{
		CompartmentId: common.String(tenancyID),
		InstanceId:    common.String(instanceID),
	})
	if err != nil || len(attachments.Items) == 0 || attachments.Items[0].VnicId == nil {
		return ""
	}
	vnic, err := clients.Network.GetVnic(ctx, core.GetVnicRequest{
		VnicId: attachments.Items[0].VnicId,
	})
	if err != nil || vnic.PublicIp == nil {
		return ""
	}
	return *vnic.PublicIp
}

func (e *Engine) retryDelay(d *types.SnatchDetails) time.Duration {
	min, max := d.MinDelay, d.MaxDelay
	span := max - min
	secs := min
	if span > 0 {
		secs += e.randInt(span + 1)
	}
	return time.Duration(secs) * time.Second
}

func (e *Engine) writeProgress(row TaskRow, p *types.SnatchProgress) error {
	encoded, err := (types.TaskResult{Progress: p}).Encode()
	if err != nil {
		return err
	}
	task, found, err := row.Reload()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("task row disappeared before start")
	}
	if task.Status == types.TaskStatusPending {
		return row.SetRunning(encoded)
	}
	return row.UpdateProgress(encoded)
}

func (e *Engine) persist(row TaskRow, p *types.SnatchProgress) error {
	encoded, err := (types.TaskResult{Progress: p}).Encode()
	if err != nil {
		return err
	}
	return row.UpdateProgress(encoded)
}

// classify maps a launch error to a throttle classification kind and
// the user-visible progress line.
func classify(err error, ad string) (kind, msg string) {
	if oci.IsCapacityError(err) {
		code, _ := oci.IsServiceError(err)
		return "capacity", fmt.Sprintf("in %s capacity insufficient (%s)", ad, code)
	}
	if code, ok := oci.IsServiceError(err); ok {
		return "api", fmt.Sprintf("API error (%s)", code)
	}
	text := err.Error()
	if len(text) > 50 {
		text = text[:50]
	}
	return "unknown", fmt.Sprintf("unknown error: %s", text)
}

func successMessage(p *types.SnatchProgress, name, ad, publicIP, password string) string {
	elapsed := "unknown"
	if start, err := time.Parse(types.TimeFormat, p.StartTime); err == nil {
		elapsed = time.Since(start).Round(time.Second).String()
	}
	ip := publicIP
	if ip == "" {
		ip = "(not yet assigned)"
	}
	return fmt.Sprintf("🎉 Snatch succeeded on attempt %d (elapsed %s)!\n- Instance: %s\n- AD: %s\n- Public IP: %s\n- User: ubuntu\n- Password: %s",
		p.AttemptCount, elapsed, name, ad, ip, password)
}

// applyDefaults fills the detail fields the loop depends on. Micro
// shapes are clamped to their only valid size.
func applyDefaults(d *types.SnatchDetails) {
	if d.BootVolumeSize <= 0 {
		d.BootVolumeSize = defaultBootVolumeGB
	}
	if d.Shape == microShape {
		d.OCPUs = 1
		d.MemoryInGBs = 1
	}
	if d.MinDelay <= 0 {
		d.MinDelay = defaultMinDelay
	}
	if d.MaxDelay < d.MinDelay {
		d.MaxDelay = defaultMaxDelay
		if d.MaxDelay < d.MinDelay {
			d.MaxDelay = d.MinDelay
		}
	}
	if d.DisplayNamePrefix == "" {
		d.DisplayNamePrefix = "instance"
	}
}

func instanceName(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
