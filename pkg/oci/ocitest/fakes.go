// Package ocitest provides function-field fakes of the pkg/oci service
// interfaces for tests. Unset fields return empty successful responses.
package ocitest

import (
	"context"

	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
)

// ServiceError implements common.ServiceError for error-path tests.
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string          { return e.Message }
func (e *ServiceError) GetHTTPStatusCode() int { return e.Status }
func (e *ServiceError) GetMessage() string     { return e.Message }
func (e *ServiceError) GetCode() string        { return e.Code }
func (e *ServiceError) GetOpcRequestID() string {
	return "fake-request-id"
}

// OutOfCapacity returns the provider's AD-exhaustion error.
func OutOfCapacity() *ServiceError {
	return &ServiceError{Status: 500, Code: "InternalError", Message: "Out of host capacity."}
}

// TooManyRequests returns the provider's rate-limit error.
func TooManyRequests() *ServiceError {
	return &ServiceError{Status: 429, Code: "TooManyRequests", Message: "Too many requests for the user"}
}

// NotFound returns a provider 404.
func NotFound() *ServiceError {
	return &ServiceError{Status: 404, Code: "NotAuthorizedOrNotFound", Message: "resource not found"}
}

// FakeIdentity implements oci.IdentityAPI.
type FakeIdentity struct {
	ListAvailabilityDomainsFn func(ctx context.Context, request identity.ListAvailabilityDomainsRequest) (identity.ListAvailabilityDomainsResponse, error)
	GetUserFn                 func(ctx context.Context, request identity.GetUserRequest) (identity.GetUserResponse, error)
}

func (f *FakeIdentity) ListAvailabilityDomains(ctx context.Context, request identity.ListAvailabilityDomainsRequest) (identity.ListAvailabilityDomainsResponse, error) {
	if f.ListAvailabilityDomainsFn != nil {
		return f.ListAvailabilityDomainsFn(ctx, request)
	}
	return identity.ListAvailabilityDomainsResponse{}, nil
}

func (f *FakeIdentity) GetUser(ctx context.Context, request identity.GetUserRequest) (identity.GetUserResponse, error) {
	if f.GetUserFn != nil {
		return f.GetUserFn(ctx, request)
	}
	return identity.GetUserResponse{}, nil
}

// ADs builds a FakeIdentity returning the given availability domains.
func ADs(names ...string) *FakeIdentity {
	return &FakeIdentity{
		ListAvailabilityDomainsFn: func(ctx context.Context, request identity.ListAvailabilityDomainsRequest) (identity.ListAvailabilityDomainsResponse, error) {
			items := make([]identity.AvailabilityDomain, len(names))
			for i := range names {
				name := names[i]
				items[i] = identity.AvailabilityDomain{Name: &name}
			}
			return identity.ListAvailabilityDomainsResponse{Items: items}, nil
		},
	}
}

// FakeCompute implements oci.ComputeAPI.
type FakeCompute struct {
	LaunchInstanceFn            func(ctx context.Context, request core.LaunchInstanceRequest) (core.LaunchInstanceResponse, error)
	GetInstanceFn               func(ctx context.Context, request core.GetInstanceRequest) (core.GetInstanceResponse, error)
	ListInstancesFn             func(ctx context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error)
	InstanceActionFn            func(ctx context.Context, request core.InstanceActionRequest) (core.InstanceActionResponse, error)
	TerminateInstanceFn         func(ctx context.Context, request core.TerminateInstanceRequest) (core.TerminateInstanceResponse, error)
	UpdateInstanceFn            func(ctx context.Context, request core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error)
	ListImagesFn                func(ctx context.Context, request core.ListImagesRequest) (core.ListImagesResponse, error)
	ListVnicAttachmentsFn       func(ctx context.Context, request core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error)
	ListBootVolumeAttachmentsFn func(ctx context.Context, request core.ListBootVolumeAttachmentsRequest) (core.ListBootVolumeAttachmentsResponse, error)
}

func (f *FakeCompute) LaunchInstance(ctx context.Context, request core.LaunchInstanceRequest) (core.LaunchInstanceResponse, error) {
	if f.LaunchInstanceFn != nil {
		return f.LaunchInstanceFn(ctx, request)
	}
	return core.LaunchInstanceResponse{}, nil
}

func (f *FakeCompute) GetInstance(ctx context.Context, request core.GetInstanceRequest) (core.GetInstanceResponse, error) {
	if f.GetInstanceFn != nil {
		return f.GetInstanceFn(ctx, request)
	}
	return core.GetInstanceResponse{}, nil
}

func (f *FakeCompute) ListInstances(ctx context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error) {
	if f.ListInstancesFn != nil {
		return f.ListInstancesFn(ctx, request)
	}
	return core.ListInstancesResponse{}, nil
}

func (f *FakeCompute) InstanceAction(ctx context.Context, request core.InstanceActionRequest) (core.InstanceActionResponse, error) {
	if f.InstanceActionFn != nil {
		return f.InstanceActionFn(ctx, request)
	}
	return core.InstanceActionResponse{}, nil
}

func (f *FakeCompute) TerminateInstance(ctx context.Context, request core.TerminateInstanceRequest) (core.TerminateInstanceResponse, error) {
	if f.TerminateInstanceFn != nil {
		return f.TerminateInstanceFn(ctx, request)
	}
	return core.TerminateInstanceResponse{}, nil
}

func (f *FakeCompute) UpdateInstance(ctx context.Context, request core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error) {
	if f.UpdateInstanceFn != nil {
		return f.UpdateInstanceFn(ctx, request)
	}
	return core.UpdateInstanceResponse{}, nil
}

func (f *FakeCompute) ListImages(ctx context.Context, request core.ListImagesRequest) (core.ListImagesResponse, error) {
	if f.ListImagesFn != nil {
		return f.ListImagesFn(ctx, request)
	}
	return core.ListImagesResponse{}, nil
}

func (f *FakeCompute) ListVnicAttachments(ctx context.Context, request core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error) {
	if f.ListVnicAttachmentsFn != nil {
		return f.ListVnicAttachmentsFn(ctx, request)
	}
	return core.ListVnicAttachmentsResponse{}, nil
}

func (f *FakeCompute) ListBootVolumeAttachments(ctx context.Context, request core.ListBootVolumeAttachmentsRequest) (core.ListBootVolumeAttachmentsResponse, error) {
	if f.ListBootVolumeAttachmentsFn != nil {
		return f.ListBootVolumeAttachmentsFn(ctx, request)
	}
	return core.ListBootVolumeAttachmentsResponse{}, nil
}

// FakeNetwork implements oci.NetworkAPI.
type FakeNetwork struct {
	GetVcnFn                   func(ctx context.Context, request core.GetVcnRequest) (core.GetVcnResponse, error)
	ListVcnsFn                 func(ctx context.Context, request core.ListVcnsRequest) (core.ListVcnsResponse, error)
	CreateVcnFn                func(ctx context.Context, request core.CreateVcnRequest) (core.CreateVcnResponse, error)
	AddIpv6VcnCidrFn           func(ctx context.Context, request core.AddIpv6VcnCidrRequest) (core.AddIpv6VcnCidrResponse, error)
	GetSubnetFn                func(ctx context.Context, request core.GetSubnetRequest) (core.GetSubnetResponse, error)
	ListSubnetsFn              func(ctx context.Context, request core.ListSubnetsRequest) (core.ListSubnetsResponse, error)
	CreateSubnetFn             func(ctx context.Context, request core.CreateSubnetRequest) (core.CreateSubnetResponse, error)
	UpdateSubnetFn             func(ctx context.Context, request core.UpdateSubnetRequest) (core.UpdateSubnetResponse, error)
	CreateInternetGatewayFn    func(ctx context.Context, request core.CreateInternetGatewayRequest) (core.CreateInternetGatewayResponse, error)
	GetInternetGatewayFn       func(ctx context.Context, request core.GetInternetGatewayRequest) (core.GetInternetGatewayResponse, error)
	ListInternetGatewaysFn     func(ctx context.Context, request core.ListInternetGatewaysRequest) (core.ListInternetGatewaysResponse, error)
	GetRouteTableFn            func(ctx context.Context, request core.GetRouteTableRequest) (core.GetRouteTableResponse, error)
	UpdateRouteTableFn         func(ctx context.Context, request core.UpdateRouteTableRequest) (core.UpdateRouteTableResponse, error)
	GetSecurityListFn          func(ctx context.Context, request core.GetSecurityListRequest) (core.GetSecurityListResponse, error)
	UpdateSecurityListFn       func(ctx context.Context, request core.UpdateSecurityListRequest) (core.UpdateSecurityListResponse, error)
	GetVnicFn                  func(ctx context.Context, request core.GetVnicRequest) (core.GetVnicResponse, error)
	ListPrivateIpsFn           func(ctx context.Context, request core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error)
	GetPublicIpByPrivateIpIdFn func(ctx context.Context, request core.GetPublicIpByPrivateIpIdRequest) (core.GetPublicIpByPrivateIpIdResponse, error)
	CreatePublicIpFn           func(ctx context.Context, request core.CreatePublicIpRequest) (core.CreatePublicIpResponse, error)
	DeletePublicIpFn           func(ctx context.Context, request core.DeletePublicIpRequest) (core.DeletePublicIpResponse, error)
	CreateIpv6Fn               func(ctx context.Context, request core.CreateIpv6Request) (core.CreateIpv6Response, error)
	ListIpv6sFn                func(ctx context.Context, request core.ListIpv6sRequest) (core.ListIpv6sResponse, error)
}

func (f *FakeNetwork) GetVcn(ctx context.Context, request core.GetVcnRequest) (core.GetVcnResponse, error) {
	if f.GetVcnFn != nil {
		return f.GetVcnFn(ctx, request)
	}
	return core.GetVcnResponse{}, nil
}

func (f *FakeNetwork) ListVcns(ctx context.Context, request core.ListVcnsRequest) (core.ListVcnsResponse, error) {
	if f.ListVcnsFn != nil {
		return f.ListVcnsFn(ctx, request)
	}
	return core.ListVcnsResponse{}, nil
}

func (f *FakeNetwork) CreateVcn(ctx context.Context, request core.CreateVcnRequest) (core.CreateVcnResponse, error) {
	if f.CreateVcnFn != nil {
		return f.CreateVcnFn(ctx, request)
	}
	return core.CreateVcnResponse{}, nil
}

func (f *FakeNetwork) AddIpv6VcnCidr(ctx context.Context, request core.AddIpv6VcnCidrRequest) (core.AddIpv6VcnCidrResponse, error) {
	if f.AddIpv6VcnCidrFn != nil {
		return f.AddIpv6VcnCidrFn(ctx, request)
	}
	return core.AddIpv6VcnCidrResponse{}, nil
}

func (f *FakeNetwork) GetSubnet(ctx context.Context, request core.GetSubnetRequest) (core.GetSubnetResponse, error) {
	if f.GetSubnetFn != nil {
		return f.GetSubnetFn(ctx, request)
	}
	return core.GetSubnetResponse{}, nil
}

func (f *FakeNetwork) ListSubnets(ctx context.Context, request core.ListSubnetsRequest) (core.ListSubnetsResponse, error) {
	if f.ListSubnetsFn != nil {
		return f.ListSubnetsFn(ctx, request)
	}
	return core.ListSubnetsResponse{}, nil
}

func (f *FakeNetwork) CreateSubnet(ctx context.Context, request core.CreateSubnetRequest) (core.CreateSubnetResponse, error) {
	if f.CreateSubnetFn != nil {
		return f.CreateSubnetFn(ctx, request)
	}
	return core.CreateSubnetResponse{}, nil
}

func (f *FakeNetwork) UpdateSubnet(ctx context.Context, request core.UpdateSubnetRequest) (core.UpdateSubnetResponse, error) {
	if f.UpdateSubnetFn != nil {
		return f.UpdateSubnetFn(ctx, request)
	}
	return core.UpdateSubnetResponse{}, nil
}

func (f *FakeNetwork) CreateInternetGateway(ctx context.Context, request core.CreateInternetGatewayRequest) (core.CreateInternetGatewayResponse, error) {
	if f.CreateInternetGatewayFn != nil {
		return f.CreateInternetGatewayFn(ctx, request)
	}
	return core.CreateInternetGatewayResponse{}, nil
}

func (f *FakeNetwork) GetInternetGateway(ctx context.Context, request core.GetInternetGatewayRequest) (core.GetInternetGatewayResponse, error) {
	if f.GetInternetGatewayFn != nil {
		return f.GetInternetGatewayFn(ctx, request)
	}
	return core.GetInternetGatewayResponse{}, nil
}

func (f *FakeNetwork) ListInternetGateways(ctx context.Context, request core.ListInternetGatewaysRequest) (core.ListInternetGatewaysResponse, error) {
	if f.ListInternetGatewaysFn != nil {
		return f.ListInternetGatewaysFn(ctx, request)
	}
	return core.ListInternetGatewaysResponse{}, nil
}

func (f *FakeNetwork) GetRouteTable(ctx context.Context, request core.GetRouteTableRequest) (core.GetRouteTableResponse, error) {
	if f.GetRouteTableFn != nil {
		return f.GetRouteTableFn(ctx, request)
	}
	return core.GetRouteTableResponse{}, nil
}

func (f *FakeNetwork) UpdateRouteTable(ctx context.Context, request core.UpdateRouteTableRequest) (core.UpdateRouteTableResponse, error) {
	if f.UpdateRouteTableFn != nil {
		return f.UpdateRouteTableFn(ctx, request)
	}
	return core.UpdateRouteTableResponse{}, nil
}

func (f *FakeNetwork) GetSecurityList(ctx context.Context, request core.GetSecurityListRequest) (core.GetSecurityListResponse, error) {
	if f.GetSecurityListFn != nil {
		return f.GetSecurityListFn(ctx, request)
	}
	return core.GetSecurityListResponse{}, nil
}

func (f *FakeNetwork) UpdateSecurityList(ctx context.Context, request core.UpdateSecurityListRequest) (core.UpdateSecurityListResponse, error) {
	if f.UpdateSecurityListFn != nil {
		return f.UpdateSecurityListFn(ctx, request)
	}
	return core.UpdateSecurityListResponse{}, nil
}

func (f *FakeNetwork) GetVnic(ctx context.Context, request core.GetVnicRequest) (core.GetVnicResponse, error) {
	if f.GetVnicFn != nil {
		return f.GetVnicFn(ctx, request)
	}
	return core.GetVnicResponse{}, nil
}

func (f *FakeNetwork) ListPrivateIps(ctx context.Context, request core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error) {
	if f.ListPrivateIpsFn != nil {
		return f.ListPrivateIpsFn(ctx, request)
	}
	return core.ListPrivateIpsResponse{}, nil
}

func (f *FakeNetwork) GetPublicIpByPrivateIpId(ctx context.Context, request core.GetPublicIpByPrivateIpIdRequest) (core.GetPublicIpByPrivateIpIdResponse, error) {
	if f.GetPublicIpByPrivateIpIdFn != nil {
		return f.GetPublicIpByPrivateIpIdFn(ctx, request)
	}
	return core.GetPublicIpByPrivateIpIdResponse{}, nil
}

func (f *FakeNetwork) CreatePublicIp(ctx context.Context, request core.CreatePublicIpRequest) (core.CreatePublicIpResponse, error) {
	if f.CreatePublicIpFn != nil {
		return f.CreatePublicIpFn(ctx, request)
	}
	return core.CreatePublicIpResponse{}, nil
}

func (f *FakeNetwork) DeletePublicIp(ctx context.Context, request core.DeletePublicIpRequest) (core.DeletePublicIpResponse, error) {
	if f.DeletePublicIpFn != nil {
		return f.DeletePublicIpFn(ctx, request)
	}
	return core.DeletePublicIpResponse{}, nil
}

func (f *FakeNetwork) CreateIpv6(ctx context.Context, request core.CreateIpv6Request) (core.CreateIpv6Response, error) {
	if f.CreateIpv6Fn != nil {
		return f.CreateIpv6Fn(ctx, request)
	}
	return core.CreateIpv6Response{}, nil
}

func (f *FakeNetwork) ListIpv6s(ctx context.Context, request core.ListIpv6sRequest) (core.ListIpv6sResponse, error) {
	if f.ListIpv6sFn != nil {
		return f.ListIpv6sFn(ctx, request)
	}
	return core.ListIpv6sResponse{}, nil
}

// FakeBlockStorage implements oci.BlockStorageAPI.
type FakeBlockStorage struct {
	GetBootVolumeFn    func(ctx context.Context, request core.GetBootVolumeRequest) (core.GetBootVolumeResponse, error)
	UpdateBootVolumeFn func(ctx context.Context, request core.UpdateBootVolumeRequest) (core.UpdateBootVolumeResponse, error)
}

func (f *FakeBlockStorage) GetBootVolume(ctx context.Context, request core.GetBootVolumeRequest) (core.GetBootVolumeResponse, error) {
	if f.GetBootVolumeFn != nil {
		return f.GetBootVolumeFn(ctx, request)
	}
	return core.GetBootVolumeResponse{}, nil
}

func (f *FakeBlockStorage) UpdateBootVolume(ctx context.Context, request core.UpdateBootVolumeRequest) (core.UpdateBootVolumeResponse, error) {
	if f.UpdateBootVolumeFn != nil {
		return f.UpdateBootVolumeFn(ctx, request)
	}
	return core.UpdateBootVolumeResponse{}, nil
}
