package oci

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"

	"github.com/opensnatch/snatchd/pkg/types"
)

// IdentityAPI is the slice of the identity service the orchestrator uses.
type IdentityAPI interface {
	ListAvailabilityDomains(ctx context.Context, request identity.ListAvailabilityDomainsRequest) (identity.ListAvailabilityDomainsResponse, error)
	GetUser(ctx context.Context, request identity.GetUserRequest) (identity.GetUserResponse, error)
}

// ComputeAPI is the slice of the compute service the orchestrator uses.
type ComputeAPI interface {
	LaunchInstance(ctx context.Context, request core.LaunchInstanceRequest) (core.LaunchInstanceResponse, error)
	GetInstance(ctx context.Context, request core.GetInstanceRequest) (core.GetInstanceResponse, error)
	ListInstances(ctx context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error)
	InstanceAction(ctx context.Context, request core.InstanceActionRequest) (core.InstanceActionResponse, error)
	TerminateInstance(ctx context.Context, request core.TerminateInstanceRequest) (core.TerminateInstanceResponse, error)
	UpdateInstance(ctx context.Context, request core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error)
	ListImages(ctx context.Context, request core.ListImagesRequest) (core.ListImagesResponse, error)
	ListVnicAttachments(ctx context.Context, request core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error)
	ListBootVolumeAttachments(ctx context.Context, request core.ListBootVolumeAttachmentsRequest) (core.ListBootVolumeAttachmentsResponse, error)
}

// NetworkAPI is the slice of the virtual network service the
// orchestrator uses.
type NetworkAPI interface {
	GetVcn(ctx context.Context, request core.GetVcnRequest) (core.GetVcnResponse, error)
	ListVcns(ctx context.Context, request core.ListVcnsRequest) (core.ListVcnsResponse, error)
	CreateVcn(ctx context.Context, request core.CreateVcnRequest) (core.CreateVcnResponse, error)
	AddIpv6VcnCidr(ctx context.Context, request core.AddIpv6VcnCidrRequest) (core.AddIpv6VcnCidrResponse, error)
	GetSubnet(ctx context.Context, request core.GetSubnetRequest) (core.GetSubnetResponse, error)
	ListSubnets(ctx context.Context, request core.ListSubnetsRequest) (core.ListSubnetsResponse, error)
	CreateSubnet(ctx context.Context, request core.CreateSubnetRequest) (core.CreateSubnetResponse, error)
	UpdateSubnet(ctx context.Context, request core.UpdateSubnetRequest) (core.UpdateSubnetResponse, error)
	CreateInternetGateway(ctx context.Context, request core.CreateInternetGatewayRequest) (core.CreateInternetGatewayResponse, error)
	GetInternetGateway(ctx context.Context, request core.GetInternetGatewayRequest) (core.GetInternetGatewayResponse, error)
	ListInternetGateways(ctx context.Context, request core.ListInternetGatewaysRequest) (core.ListInternetGatewaysResponse, error)
	GetRouteTable(ctx context.Context, request core.GetRouteTableRequest) (core.GetRouteTableResponse, error)
	UpdateRouteTable(ctx context.Context, request core.UpdateRouteTableRequest) (core.UpdateRouteTableResponse, error)
	GetSecurityList(ctx context.Context, request core.GetSecurityListRequest) (core.GetSecurityListResponse, error)
	UpdateSecurityList(ctx context.Context, request core.UpdateSecurityListRequest) (core.UpdateSecurityListResponse, error)
	GetVnic(ctx context.Context, request core.GetVnicRequest) (core.GetVnicResponse, error)
	ListPrivateIps(ctx context.Context, request core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error)
	GetPublicIpByPrivateIpId(ctx context.Context, request core.GetPublicIpByPrivateIpIdRequest) (core.GetPublicIpByPrivateIpIdResponse, error)
	CreatePublicIp(ctx context.Context, request core.CreatePublicIpRequest) (core.CreatePublicIpResponse, error)
	DeletePublicIp(ctx context.Context, request core.DeletePublicIpRequest) (core.DeletePublicIpResponse, error)
	CreateIpv6(ctx context.Context, request core.CreateIpv6Request) (core.CreateIpv6Response, error)
	ListIpv6s(ctx context.Context, request core.ListIpv6sRequest) (core.ListIpv6sResponse, error)
}

// BlockStorageAPI is the slice of the block storage service the
// orchestrator uses.
type BlockStorageAPI interface {
	GetBootVolume(ctx context.Context, request core.GetBootVolumeRequest) (core.GetBootVolumeResponse, error)
	UpdateBootVolume(ctx context.Context, request core.UpdateBootVolumeRequest) (core.UpdateBootVolumeResponse, error)
}

// Clients bundles the per-profile service clients.
type Clients struct {
	Identity     IdentityAPI
	Compute      ComputeAPI
	Network      NetworkAPI
	BlockStorage BlockStorageAPI
}

// NewClients builds the client bundle for a profile. Key material may be
// inline PEM content or a file path; inline content is handed straight
// to the SDK configuration provider. When validate is set, a credential
// check runs before the bundle is returned.
func NewClients(ctx context.Context, p *types.Profile, validate bool) (*Clients, error) {
	keyPEM := p.KeyContent
	if keyPEM == "" && p.KeyFile != "" {
		data, err := os.ReadFile(p.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading key file: %v", ErrCredential, err)
		}
		keyPEM = string(data)
	}
	if keyPEM == "" {
		return nil, fmt.Errorf("%w: profile has no private key", ErrCredential)
	}

	provider := common.NewRawConfigurationProvider(
		p.TenancyID, p.UserID, p.Region, p.Fingerprint, keyPEM, nil)

	var httpClient *http.Client
	if p.Proxy != "" {
		proxyURL, err := url.Parse("http://" + p.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProxy, err)
		}
		httpClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
			Timeout:   60 * time.Second,
		}
	}

	identityClient, err := identity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}
	computeClient, err := core.NewComputeClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}
	networkClient, err := core.NewVirtualNetworkClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}
	blockClient, err := core.NewBlockstorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}

	if httpClient != nil {
		identityClient.HTTPClient = httpClient
		computeClient.HTTPClient = httpClient
		networkClient.HTTPClient = httpClient
		blockClient.HTTPClient = httpClient
	}

	clients := &Clients{
		Identity:     identityClient,
		Compute:      computeClient,
		Network:      networkClient,
		BlockStorage: blockClient,
	}

	if validate {
		if err := clients.validate(ctx, p.UserID); err != nil {
			return nil, err
		}
	}
	return clients, nil
}

// validate performs a cheap authenticated call to confirm the
// credentials work before the bundle is handed out.
func (c *Clients) validate(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := c.Identity.GetUser(ctx, identity.GetUserRequest{
		UserId: common.String(userID),
	})
	if err == nil {
		return nil
	}
	return ClassifyConnectError(err)
}
