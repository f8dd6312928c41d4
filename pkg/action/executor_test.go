package action

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensnatch/snatchd/pkg/network"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/oci/ocitest"
	"github.com/opensnatch/snatchd/pkg/types"
)

type fakeRow struct {
	id      string
	status  types.TaskStatus
	results []string
}

func (f *fakeRow) ID() string { return f.id }
func (f *fakeRow) SetRunning(result string) error {
	f.status = types.TaskStatusRunning
	f.results = append(f.results, result)
	return nil
}
func (f *fakeRow) UpdateProgress(result string) error {
	f.results = append(f.results, result)
	return nil
}
func (f *fakeRow) SetSuccess(result string) error {
	f.status = types.TaskStatusSuccess
	f.results = append(f.results, result)
	return nil
}
func (f *fakeRow) SetFailure(result string) error {
	f.status = types.TaskStatusFailure
	f.results = append(f.results, result)
	return nil
}
func (f *fakeRow) last() string { return f.results[len(f.results)-1] }

type fakeTelegram struct {
	messages []string
}

func (f *fakeTelegram) Send(ctx context.Context, text string) {
	f.messages = append(f.messages, text)
}

type fakeDNS struct {
	calls []string
	line  string
}

func (f *fakeDNS) Upsert(ctx context.Context, subdomain, ip, recordType string) string {
	f.calls = append(f.calls, fmt.Sprintf("%s %s %s", recordType, subdomain, ip))
	return f.line
}

type fakeIPv6Enabler struct {
	enabled []string
}

func (f *fakeIPv6Enabler) EnableIPv6(ctx context.Context, vnicID string, report network.Reporter) error {
	f.enabled = append(f.enabled, vnicID)
	return nil
}

type fakeRemember struct{}

func (fakeRemember) SetRememberedSubnet(alias, subnetID string) error { return nil }

func newTestExecutor(clients *oci.Clients) (*Executor, *fakeTelegram, *fakeDNS, *fakeIPv6Enabler) {
	telegram := &fakeTelegram{}
	dns := &fakeDNS{line: "✅ DNS A record web-1.example.com -> 198.51.100.9 created"}
	ipv6 := &fakeIPv6Enabler{}

	e := NewExecutor(fakeRemember{}, dns, telegram)
	e.SetClientFactory(func(ctx context.Context, p *types.Profile) (*oci.Clients, error) {
		return clients, nil
	})
	e.SetBootstrapFactory(func(netAPI oci.NetworkAPI) IPv6Enabler { return ipv6 })
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e, telegram, dns, ipv6
}

func namedInstance(name string, state core.InstanceLifecycleStateEnum) func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
	return func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
		return core.GetInstanceResponse{Instance: core.Instance{
			Id:             req.InstanceId,
			DisplayName:    common.String(name),
			CompartmentId:  common.String("t"),
			LifecycleState: state,
		}}, nil
	}
}

func TestStopAction(t *testing.T) {
	var actions []core.InstanceActionActionEnum
	stopped := false
	compute := &ocitest.FakeCompute{
		GetInstanceFn: func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
			state := core.InstanceLifecycleStateRunning
			if stopped {
				state = core.InstanceLifecycleStateStopped
			}
			return core.GetInstanceResponse{Instance: core.Instance{
				Id:             req.InstanceId,
				DisplayName:    common.String("web-1"),
				LifecycleState: state,
			}}, nil
		},
		InstanceActionFn: func(ctx context.Context, req core.InstanceActionRequest) (core.InstanceActionResponse, error) {
			actions = append(actions, req.Action)
			stopped = true
			return core.InstanceActionResponse{}, nil
		},
	}
	e, telegram, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindStop,
	})
	require.NoError(t, err)

	assert.Equal(t, []core.InstanceActionActionEnum{core.InstanceActionActionStop}, actions)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Equal(t, "✅ instance web-1 stopped", row.last())
	require.Len(t, telegram.messages, 1)
	assert.Equal(t, row.last(), telegram.messages[0])
}

func TestTerminateAlreadyGone(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
			return core.GetInstanceResponse{}, ocitest.NotFound()
		},
		TerminateInstanceFn: func(ctx context.Context, req core.TerminateInstanceRequest) (core.TerminateInstanceResponse, error) {
			t.Fatal("terminate must not be called for a missing instance")
			return core.TerminateInstanceResponse{}, nil
		},
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindTerminate,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Contains(t, row.last(), "already terminated")
}

func TestTerminateWaitsFor404(t *testing.T) {
	terminated := false
	compute := &ocitest.FakeCompute{
		GetInstanceFn: func(ctx context.Context, req core.GetInstanceRequest) (core.GetInstanceResponse, error) {
			if terminated {
				return core.GetInstanceResponse{}, ocitest.NotFound()
			}
			return namedInstance("web-1", core.InstanceLifecycleStateRunning)(ctx, req)
		},
		TerminateInstanceFn: func(ctx context.Context, req core.TerminateInstanceRequest) (core.TerminateInstanceResponse, error) {
			terminated = true
			return core.TerminateInstanceResponse{}, nil
		},
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindTerminate,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Equal(t, "✅ instance web-1 terminated", row.last())
}

// changeip: release the existing ephemeral IP, wait out the gap, then
// request a fresh one and optionally bind DNS.
func TestChangeIP(t *testing.T) {
	var order []string
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		ListVnicAttachmentsFn: func(ctx context.Context, req core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error) {
			return core.ListVnicAttachmentsResponse{Items: []core.VnicAttachment{
				{VnicId: common.String("vnic-1")},
			}}, nil
		},
	}
	netAPI := &ocitest.FakeNetwork{
		ListPrivateIpsFn: func(ctx context.Context, req core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error) {
			return core.ListPrivateIpsResponse{Items: []core.PrivateIp{
				{Id: common.String("priv-secondary"), IsPrimary: common.Bool(false)},
				{Id: common.String("priv-1"), IsPrimary: common.Bool(true)},
			}}, nil
		},
		GetPublicIpByPrivateIpIdFn: func(ctx context.Context, req core.GetPublicIpByPrivateIpIdRequest) (core.GetPublicIpByPrivateIpIdResponse, error) {
			return core.GetPublicIpByPrivateIpIdResponse{PublicIp: core.PublicIp{
				Id: common.String("pub-old"),
			}}, nil
		},
		DeletePublicIpFn: func(ctx context.Context, req core.DeletePublicIpRequest) (core.DeletePublicIpResponse, error) {
			order = append(order, "delete")
			assert.Equal(t, "pub-old", *req.PublicIpId)
			return core.DeletePublicIpResponse{}, nil
		},
		CreatePublicIpFn: func(ctx context.Context, req core.CreatePublicIpRequest) (core.CreatePublicIpResponse, error) {
			order = append(order, "create")
			assert.Equal(t, core.CreatePublicIpDetailsLifetimeEphemeral, req.Lifetime)
			assert.Equal(t, "priv-1", *req.PrivateIpId)
			return core.CreatePublicIpResponse{PublicIp: core.PublicIp{
				IpAddress: common.String("198.51.100.9"),
			}}, nil
		},
	}
	e, _, dns, _ := newTestExecutor(&oci.Clients{Compute: compute, Network: netAPI})
	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		order = append(order, "sleep")
		slept = append(slept, d)
		return nil
	}

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindChangeIP,
		Params: Params{BindDomain: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete", "sleep", "create"}, order)
	assert.Equal(t, []time.Duration{5 * time.Second}, slept)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Contains(t, row.last(), "✅ instance web-1 has a new public IP: 198.51.100.9")
	require.Len(t, dns.calls, 1)
	assert.Equal(t, "A web-1 198.51.100.9", dns.calls[0])
	assert.Contains(t, row.last(), dns.line)
}

func TestChangeIPWithoutExistingIP(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		ListVnicAttachmentsFn: func(ctx context.Context, req core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error) {
			return core.ListVnicAttachmentsResponse{Items: []core.VnicAttachment{
				{VnicId: common.String("vnic-1")},
			}}, nil
		},
	}
	netAPI := &ocitest.FakeNetwork{
		ListPrivateIpsFn: func(ctx context.Context, req core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error) {
			return core.ListPrivateIpsResponse{Items: []core.PrivateIp{
				{Id: common.String("priv-1"), IsPrimary: common.Bool(true)},
			}}, nil
		},
		GetPublicIpByPrivateIpIdFn: func(ctx context.Context, req core.GetPublicIpByPrivateIpIdRequest) (core.GetPublicIpByPrivateIpIdResponse, error) {
			return core.GetPublicIpByPrivateIpIdResponse{}, ocitest.NotFound()
		},
		DeletePublicIpFn: func(ctx context.Context, req core.DeletePublicIpRequest) (core.DeletePublicIpResponse, error) {
			t.Fatal("nothing to delete when no public IP is assigned")
			return core.DeletePublicIpResponse{}, nil
		},
		CreatePublicIpFn: func(ctx context.Context, req core.CreatePublicIpRequest) (core.CreatePublicIpResponse, error) {
			return core.CreatePublicIpResponse{PublicIp: core.PublicIp{
				IpAddress: common.String("198.51.100.10"),
			}}, nil
		},
	}
	e, _, dns, _ := newTestExecutor(&oci.Clients{Compute: compute, Network: netAPI})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindChangeIP,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Empty(t, dns.calls)
}

func TestAssignIPv6(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		ListVnicAttachmentsFn: func(ctx context.Context, req core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error) {
			return core.ListVnicAttachmentsResponse{Items: []core.VnicAttachment{
				{VnicId: common.String("vnic-1")},
			}}, nil
		},
	}
	created := false
	netAPI := &ocitest.FakeNetwork{
		ListIpv6sFn: func(ctx context.Context, req core.ListIpv6sRequest) (core.ListIpv6sResponse, error) {
			return core.ListIpv6sResponse{}, nil
		},
		CreateIpv6Fn: func(ctx context.Context, req core.CreateIpv6Request) (core.CreateIpv6Response, error) {
			created = true
			assert.Equal(t, "vnic-1", *req.VnicId)
			return core.CreateIpv6Response{Ipv6: core.Ipv6{
				IpAddress: common.String("2603:c020:e:8400::1"),
			}}, nil
		},
	}
	e, _, dns, ipv6 := newTestExecutor(&oci.Clients{Compute: compute, Network: netAPI})
	dns.line = "✅ DNS AAAA record web-1.example.com -> 2603:c020:e:8400::1 created"

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindAssignIPv6,
		Params: Params{BindDomain: true},
	})
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, []string{"vnic-1"}, ipv6.enabled)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Contains(t, row.last(), "2603:c020:e:8400::1")
	require.Len(t, dns.calls, 1)
	assert.Equal(t, "AAAA web-1 2603:c020:e:8400::1", dns.calls[0])
}

func TestAssignIPv6ReusesExisting(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		ListVnicAttachmentsFn: func(ctx context.Context, req core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error) {
			return core.ListVnicAttachmentsResponse{Items: []core.VnicAttachment{
				{VnicId: common.String("vnic-1")},
			}}, nil
		},
	}
	netAPI := &ocitest.FakeNetwork{
		ListIpv6sFn: func(ctx context.Context, req core.ListIpv6sRequest) (core.ListIpv6sResponse, error) {
			return core.ListIpv6sResponse{Items: []core.Ipv6{
				{IpAddress: common.String("2603:c020:e:8400::2")},
			}}, nil
		},
		CreateIpv6Fn: func(ctx context.Context, req core.CreateIpv6Request) (core.CreateIpv6Response, error) {
			t.Fatal("must not create a second IPv6 address")
			return core.CreateIpv6Response{}, nil
		},
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute, Network: netAPI})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindAssignIPv6,
	})
	require.NoError(t, err)
	assert.Contains(t, row.last(), "2603:c020:e:8400::2")
}

func TestRename(t *testing.T) {
	var renamedTo string
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("old-name", core.InstanceLifecycleStateRunning),
		UpdateInstanceFn: func(ctx context.Context, req core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error) {
			renamedTo = *req.DisplayName
			return core.UpdateInstanceResponse{}, nil
		},
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindRename,
		Params: Params{NewName: "new-name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-name", renamedTo)
	assert.Equal(t, "✅ instance old-name renamed to new-name", row.last())
}

func TestReshapeRequiresStopped(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		UpdateInstanceFn: func(ctx context.Context, req core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error) {
			t.Fatal("reshape must not reach the provider on a running instance")
			return core.UpdateInstanceResponse{}, nil
		},
	}
	e, telegram, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindReshape,
		Params: Params{Shape: "VM.Standard.A1.Flex", OCPUs: 2, MemoryInGBs: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailure, row.status)
	assert.Contains(t, row.last(), "❌")
	assert.Contains(t, row.last(), "must be STOPPED")
	require.Len(t, telegram.messages, 1)
}

func TestReshapeStopped(t *testing.T) {
	var details core.UpdateInstanceDetails
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateStopped),
		UpdateInstanceFn: func(ctx context.Context, req core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error) {
			details = req.UpdateInstanceDetails
			return core.UpdateInstanceResponse{}, nil
		},
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindReshape,
		Params: Params{Shape: "VM.Standard.A1.Flex", OCPUs: 2, MemoryInGBs: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Equal(t, "VM.Standard.A1.Flex", *details.Shape)
	require.NotNil(t, details.ShapeConfig)
	assert.Equal(t, float32(2), *details.ShapeConfig.Ocpus)
	assert.Equal(t, float32(12), *details.ShapeConfig.MemoryInGBs)
}

func TestResizeBootVolume(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		ListBootVolumeAttachmentsFn: func(ctx context.Context, req core.ListBootVolumeAttachmentsRequest) (core.ListBootVolumeAttachmentsResponse, error) {
			return core.ListBootVolumeAttachmentsResponse{Items: []core.BootVolumeAttachment{
				{BootVolumeId: common.String("bv-1")},
			}}, nil
		},
	}
	var resized int64
	block := &ocitest.FakeBlockStorage{
		UpdateBootVolumeFn: func(ctx context.Context, req core.UpdateBootVolumeRequest) (core.UpdateBootVolumeResponse, error) {
			assert.Equal(t, "bv-1", *req.BootVolumeId)
			resized = *req.SizeInGBs
			return core.UpdateBootVolumeResponse{}, nil
		},
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute, BlockStorage: block})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindResize,
		Params: Params{SizeInGBs: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), resized)
	assert.Equal(t, "✅ boot volume of web-1 resized to 100 GB", row.last())
}

func TestWebOriginSuppressesTelegram(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
		UpdateInstanceFn: func(ctx context.Context, req core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error) {
			return core.UpdateInstanceResponse{}, nil
		},
	}
	e, telegram, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: KindRename,
		Params: Params{NewName: "x"}, WebOrigin: true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSuccess, row.status)
	assert.Empty(t, telegram.messages)
}

func TestUnsupportedKind(t *testing.T) {
	compute := &ocitest.FakeCompute{
		GetInstanceFn: namedInstance("web-1", core.InstanceLifecycleStateRunning),
	}
	e, _, _, _ := newTestExecutor(&oci.Clients{Compute: compute})

	row := &fakeRow{id: "t1"}
	err := e.Run(context.Background(), row, Request{
		Alias: "a", Profile: &types.Profile{}, InstanceID: "i1", Kind: Kind("selfdestruct"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailure, row.status)
	assert.Contains(t, row.last(), "unsupported action")
}
