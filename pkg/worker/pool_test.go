package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensnatch/snatchd/pkg/action"
	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/network"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/oci/ocitest"
	"github.com/opensnatch/snatchd/pkg/registry"
	"github.com/opensnatch/snatchd/pkg/snatch"
	"github.com/opensnatch/snatchd/pkg/types"
)

type fakeProfiles map[string]*types.Profile

func (f fakeProfiles) Get(alias string) (*types.Profile, error) {
	p, ok := f[alias]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", alias)
	}
	return p, nil
}

func (f fakeProfiles) SetRememberedSubnet(alias, subnetID string) error { return nil }

type silentTelegram struct{}

func (silentTelegram) Send(ctx context.Context, text string) {}

type silentDNS struct{}

func (silentDNS) Upsert(ctx context.Context, subdomain, ip, recordType string) string { return "" }

type fixedSubnet struct{}

func (fixedSubnet) EnsureSubnet(ctx context.Context, p *types.Profile, alias string, report network.Reporter) (string, error) {
	return "subnet-1", nil
}

func launchableClients() *oci.Clients {
	compute := &ocitest.FakeCompute{
		ListImagesFn: func(ctx context.Context, req core.ListImagesRequest) (core.ListImagesResponse, error) {
			return core.ListImagesResponse{Items: []core.Image{{Id: common.String("image-1")}}}, nil
		},
		LaunchInstanceFn: func(ctx context.Context, req core.LaunchInstanceRequest) (core.LaunchInstanceResponse, error) {
			return core.LaunchInstanceResponse{Instance: core.Instance{
				Id:          common.String("instance-1"),
				DisplayName: req.DisplayName,
			}}, nil
		},
		GetInstanceFn: func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
			return core.GetInstanceResponse{Instance: core.Instance{
				Id:             req.InstanceId,
				LifecycleState: core.InstanceLifecycleStateRunning,
			}}, nil
		},
		ListVnicAttachmentsFn: func(ctx context.Context, req core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error) {
			return core.ListVnicAttachmentsResponse{Items: []core.VnicAttachment{
				{VnicId: common.String("vnic-1")},
			}}, nil
		},
	}
	netAPI := &ocitest.FakeNetwork{
		GetVnicFn: func(ctx context.Context, req core.GetVnicRequest) (core.GetVnicResponse, error) {
			return core.GetVnicResponse{Vnic: core.Vnic{PublicIp: common.String("203.0.113.5")}}, nil
		},
	}
	return &oci.Clients{
		Identity: ocitest.ADs("AD-1"),
		Compute:  compute,
		Network:  netAPI,
	}
}

func newTestEngine(profiles fakeProfiles, clients *oci.Clients) *snatch.Engine {
	e := snatch.NewEngine(profiles, silentDNS{}, silentTelegram{})
	e.SetClientFactory(func(ctx context.Context, p *types.Profile) (*oci.Clients, error) {
		return clients, nil
	})
	e.SetBootstrapFactory(func(netAPI oci.NetworkAPI) snatch.Bootstrap { return fixedSubnet{} })
	return e
}

func waitTerminal(t *testing.T, reg *registry.Registry, id string) *types.Task {
	t.Helper()
	var task *types.Task
	require.Eventually(t, func() bool {
		got, err := reg.Get(id)
		if err != nil {
			return false
		}
		task = got
		return task.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return task
}

// A running row from a previous process is re-dispatched on Start and
// continues under a new run id from the persisted attempt count.
func TestPoolRecoversInterruptedSnatch(t *testing.T) {
	reg, err := registry.NewRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	profiles := fakeProfiles{"tokyo": {TenancyID: "t", Region: "ap-tokyo-1"}}

	id, err := reg.Create(types.TaskTypeSnatch, "snatch VM.Standard.A1.Flex", "tokyo")
	require.NoError(t, err)
	progress := &types.SnatchProgress{
		RunID:        "run-dead",
		StartTime:    types.NowUTC(),
		AttemptCount: 30,
		Details: types.SnatchDetails{
			Shape:     "VM.Standard.A1.Flex",
			OCPUs:     4, MemoryInGBs: 24,
			OS: "Canonical Ubuntu", OSVersion: "22.04",
		},
	}
	encoded, err := (types.TaskResult{Progress: progress}).Encode()
	require.NoError(t, err)
	require.NoError(t, reg.SetRunning(id, encoded))

	broker := events.NewBroker()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	engine := newTestEngine(profiles, launchableClients())
	actions := action.NewExecutor(profiles, silentDNS{}, silentTelegram{})

	pool := NewPool(2, reg, profiles, engine, actions, broker)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	task := waitTerminal(t, reg, id)
	assert.Equal(t, types.TaskStatusSuccess, task.Status)
	// The recovered run picks up where the dead one stopped.
	assert.Contains(t, task.Result, "attempt 31")
	assert.Contains(t, task.Result, "203.0.113.5")

	var seen []events.EventType
	deadline := time.After(2 * time.Second)
	for len(seen) < 5 {
		select {
		case ev := <-sub:
			seen = append(seen, ev.Type)
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	assert.Contains(t, seen, events.EventTaskCreated)
	assert.Contains(t, seen, events.EventTaskStarted)
	assert.Contains(t, seen, events.EventSnatchAttempt)
	assert.Contains(t, seen, events.EventTaskSucceeded)
	assert.Contains(t, seen, events.EventInstanceLaunched)
}

func TestPoolRunsFreshSnatch(t *testing.T) {
	reg, err := registry.NewRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	profiles := fakeProfiles{"tokyo": {TenancyID: "t"}}
	broker := events.NewBroker()
	defer broker.Stop()
	sub := broker.Subscribe()

	engine := newTestEngine(profiles, launchableClients())
	actions := action.NewExecutor(profiles, silentDNS{}, silentTelegram{})
	pool := NewPool(2, reg, profiles, engine, actions, broker)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := reg.Create(types.TaskTypeSnatch, "snatch", "tokyo")
	require.NoError(t, err)
	require.NoError(t, pool.EnqueueSnatch(id, "tokyo", profiles["tokyo"], types.SnatchDetails{
		Shape: "VM.Standard.A1.Flex", OCPUs: 4, MemoryInGBs: 24,
		OS: "Canonical Ubuntu", OSVersion: "22.04",
	}))

	task := waitTerminal(t, reg, id)
	assert.Equal(t, types.TaskStatusSuccess, task.Status)
	assert.Contains(t, task.Result, "attempt 1")

	// Each launch try is mirrored onto the broker.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type != events.EventSnatchAttempt {
				continue
			}
			assert.Equal(t, id, ev.TaskID)
			assert.Equal(t, "tokyo", ev.Alias)
			assert.Equal(t, "attempt 1", ev.Message)
			return
		case <-deadline:
			t.Fatal("no attempt event published")
		}
	}
}

func TestPoolRunsAction(t *testing.T) {
	reg, err := registry.NewRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	profiles := fakeProfiles{"tokyo": {TenancyID: "t"}}
	broker := events.NewBroker()
	defer broker.Stop()

	clients := &oci.Clients{
		Compute: &ocitest.FakeCompute{
			GetInstanceFn: func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
				return core.GetInstanceResponse{Instance: core.Instance{
					Id:          req.InstanceId,
					DisplayName: common.String("web-1"),
				}}, nil
			},
			UpdateInstanceFn: func(ctx context.Context, req core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error) {
				return core.UpdateInstanceResponse{}, nil
			},
		},
	}
	engine := newTestEngine(profiles, clients)
	actions := action.NewExecutor(profiles, silentDNS{}, silentTelegram{})
	actions.SetClientFactory(func(ctx context.Context, p *types.Profile) (*oci.Clients, error) {
		return clients, nil
	})

	pool := NewPool(1, reg, profiles, engine, actions, broker)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	id, err := reg.Create(types.TaskTypeAction, "rename web-1", "tokyo")
	require.NoError(t, err)
	require.NoError(t, pool.EnqueueAction(id, action.Request{
		Alias: "tokyo", Profile: profiles["tokyo"], InstanceID: "i1",
		Kind: action.KindRename, Params: action.Params{NewName: "web-2"},
	}))

	task := waitTerminal(t, reg, id)
	assert.Equal(t, types.TaskStatusSuccess, task.Status)
	assert.Equal(t, "✅ instance web-1 renamed to web-2", task.Result)
}
