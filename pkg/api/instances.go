package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"

	"github.com/opensnatch/snatchd/pkg/action"
	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/types"
)

// microShape is the Always Free AMD shape with the hard 2-instance cap.
const microShape = "VM.Standard.E2.1.Micro"

func (s *Server) handleListInstancesSession(w http.ResponseWriter, r *http.Request) {
	alias, ok := s.sessionAlias(r)
	if !ok {
		writeError(w, http.StatusForbidden, "select a profile first")
		return
	}
	s.listInstances(w, r, alias)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	s.listInstances(w, r, chi.URLParam(r, "alias"))
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request, alias string) {
	prof, clients, ok := s.profileClients(w, r, alias)
	if !ok {
		return
	}

	resp, err := clients.Compute.ListInstances(r.Context(), core.ListInstancesRequest{
		CompartmentId: common.String(prof.TenancyID),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to list instances: "+err.Error())
		return
	}

	summaries := make([]types.InstanceSummary, 0, len(resp.Items))
	for _, inst := range resp.Items {
		summaries = append(summaries, s.summarize(r.Context(), clients, prof.TenancyID, inst))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// summarize derives the per-instance panel row. Lookups past the base
// record are best-effort; a failed VNIC or volume read leaves its
// fields empty rather than failing the listing.
func (s *Server) summarize(ctx context.Context, clients *oci.Clients, tenancyID string, inst core.Instance) types.InstanceSummary {
	summary := types.InstanceSummary{
		LifecycleState: string(inst.LifecycleState),
	}
	if inst.DisplayName != nil {
		summary.DisplayName = *inst.DisplayName
	}
	if inst.Id != nil {
		summary.ID = *inst.Id
	}
	if inst.Shape != nil {
		summary.Shape = *inst.Shape
	}
	if inst.TimeCreated != nil {
		summary.TimeCreated = inst.TimeCreated.UTC().Format(types.TimeFormat)
	}
	if inst.ShapeConfig != nil {
		if inst.ShapeConfig.Ocpus != nil {
			summary.OCPUs = *inst.ShapeConfig.Ocpus
		}
		if inst.ShapeConfig.MemoryInGBs != nil {
			summary.MemoryInGBs = *inst.ShapeConfig.MemoryInGBs
		}
	}
	if inst.LifecycleState == core.InstanceLifecycleStateTerminated ||
		inst.LifecycleState == core.InstanceLifecycleStateTerminating {
		return summary
	}

	attachments, err := clients.Compute.ListVnicAttachments(ctx, core.ListVnicAttachmentsRequest{
		CompartmentId: common.String(tenancyID),
		InstanceId:    inst.Id,
	})
	if err == nil && len(attachments.Items) > 0 && attachments.Items[0].VnicId != nil {
		summary.VnicID = *attachments.Items[0].VnicId
		vnic, err := clients.Network.GetVnic(ctx, core.GetVnicRequest{
			VnicId: attachments.Items[0].VnicId,
		})
		if err == nil {
			if vnic.PublicIp != nil {
				summary.PublicIP = *vnic.PublicIp
			}
			if vnic.SubnetId != nil {
				summary.SubnetID = *vnic.SubnetId
			}
			ipv6s, err := clients.Network.ListIpv6s(ctx, core.ListIpv6sRequest{
				VnicId: attachments.Items[0].VnicId,
			})
			if err == nil && len(ipv6s.Items) > 0 && ipv6s.Items[0].IpAddress != nil {
				summary.IPv6Address = *ipv6s.Items[0].IpAddress
			}
		}
	}

	volumes, err := clients.Compute.ListBootVolumeAttachments(ctx, core.ListBootVolumeAttachmentsRequest{
		AvailabilityDomain: inst.AvailabilityDomain,
		CompartmentId:      common.String(tenancyID),
		InstanceId:         inst.Id,
	})
	if err == nil && len(volumes.Items) > 0 && volumes.Items[0].BootVolumeId != nil {
		volume, err := clients.BlockStorage.GetBootVolume(ctx, core.GetBootVolumeRequest{
			BootVolumeId: volumes.Items[0].BootVolumeId,
		})
		if err == nil && volume.SizeInGBs != nil {
			summary.BootVolumeSizeGB = *volume.SizeInGBs
		}
	}
	return summary
}

func (s *Server) handleInstanceAction(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	prof, err := s.profiles.Get(alias)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	var body struct {
		Action     string        `json:"action"`
		InstanceID string        `json:"instance_id"`
		Params     action.Params `json:"params"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Action == "" || body.InstanceID == "" {
		writeError(w, http.StatusBadRequest, "action and instance_id are required")
		return
	}
	kind := action.Kind(body.Action)
	switch kind {
	case action.KindStart, action.KindStop, action.KindRestart, action.KindTerminate,
		action.KindChangeIP, action.KindAssignIPv6, action.KindRename,
		action.KindReshape, action.KindResize:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported action %q", body.Action))
		return
	}

	taskID, err := s.registry.Create(types.TaskTypeAction,
		fmt.Sprintf("%s %s", body.Action, body.InstanceID), alias)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	err = s.pool.EnqueueAction(taskID, action.Request{
		Alias:      alias,
		Profile:    prof,
		InstanceID: body.InstanceID,
		Kind:       kind,
		Params:     body.Params,
		WebOrigin:  s.webOriginated(r),
	})
	if err != nil {
		if ferr := s.registry.SetFailure(taskID, "❌ "+err.Error()); ferr != nil {
			log.WithComponent("api").Error().Err(ferr).Str("task_id", taskID).Msg("failed to fail unqueued task")
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
}

func (s *Server) handleLaunchInstance(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	prof, err := s.profiles.Get(alias)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	var details types.SnatchDetails
	if err := decodeJSON(r, &details); err != nil {
		writeError(w, http.StatusBadRequest, "invalid launch details")
		return
	}
	if details.Shape == "" || details.OS == "" {
		writeError(w, http.StatusBadRequest, "shape and os are required")
		return
	}
	count := details.InstanceCount
	if count <= 0 {
		count = 1
	}

	if err := s.checkMicroQuota(r.Context(), w, r, prof, details.Shape, count); err != nil {
		return
	}

	taskIDs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		perTask := details
		perTask.InstanceCount = 1

		taskID, err := s.registry.Create(types.TaskTypeSnatch,
			fmt.Sprintf("snatch %s", details.Shape), alias)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.pool.EnqueueSnatch(taskID, alias, prof, perTask); err != nil {
			if ferr := s.registry.SetFailure(taskID, "❌ "+err.Error()); ferr != nil {
				log.WithComponent("api").Error().Err(ferr).Str("task_id", taskID).Msg("failed to fail unqueued task")
			}
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		taskIDs = append(taskIDs, taskID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task_ids": taskIDs})
}

// handleCreateInstance is the one-shot flavor: a single task that
// launches instance_count instances sequentially with no retry loop.
func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	prof, err := s.profiles.Get(alias)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	var details types.SnatchDetails
	if err := decodeJSON(r, &details); err != nil {
		writeError(w, http.StatusBadRequest, "invalid launch details")
		return
	}
	if details.Shape == "" || details.OS == "" {
		writeError(w, http.StatusBadRequest, "shape and os are required")
		return
	}
	count := details.InstanceCount
	if count <= 0 {
		count = 1
		details.InstanceCount = 1
	}

	if err := s.checkMicroQuota(r.Context(), w, r, prof, details.Shape, count); err != nil {
		return
	}

	taskID, err := s.registry.Create(types.TaskTypeCreate,
		fmt.Sprintf("create %dx %s", count, details.Shape), alias)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.pool.EnqueueCreate(taskID, alias, prof, details); err != nil {
		if ferr := s.registry.SetFailure(taskID, "❌ "+err.Error()); ferr != nil {
			log.WithComponent("api").Error().Err(ferr).Str("task_id", taskID).Msg("failed to fail unqueued task")
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
}

// checkMicroQuota refuses launches that would push the count of
// non-terminated Micro instances above 2. It runs synchronously in the
// handler so no task row exists when the quota is exceeded. A non-nil
// return means the response has been written.
func (s *Server) checkMicroQuota(ctx context.Context, w http.ResponseWriter, r *http.Request, prof *types.Profile, shape string, requested int) error {
	if shape != microShape {
		return nil
	}
	clients, err := s.clients(ctx, prof, false)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to build provider clients: "+err.Error())
		return err
	}
	resp, err := clients.Compute.ListInstances(ctx, core.ListInstancesRequest{
		CompartmentId: common.String(prof.TenancyID),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to count existing instances: "+err.Error())
		return err
	}
	existing := 0
	for _, inst := range resp.Items {
		if inst.Shape == nil || *inst.Shape != microShape {
			continue
		}
		if inst.LifecycleState == core.InstanceLifecycleStateTerminated ||
			inst.LifecycleState == core.InstanceLifecycleStateTerminating {
			continue
		}
		existing++
	}
	if existing+requested > 2 {
		err := fmt.Errorf("micro quota exceeded: %d existing + %d requested > 2", existing, requested)
		writeError(w, http.StatusBadRequest, err.Error())
		return err
	}
	return nil
}

// profileClients resolves an alias to its profile and client bundle,
// writing the error response itself on failure.
func (s *Server) profileClients(w http.ResponseWriter, r *http.Request, alias string) (*types.Profile, *oci.Clients, bool) {
	prof, err := s.profiles.Get(alias)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return nil, nil, false
	}
	clients, err := s.clients(r.Context(), prof, false)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to build provider clients: "+err.Error())
		return nil, nil, false
	}
	return prof, clients, true
}
