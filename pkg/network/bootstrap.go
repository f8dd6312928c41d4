package network

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"

	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/oci"
	"github.com/opensnatch/snatchd/pkg/types"
)

const (
	vcnCIDR    = "10.0.0.0/16"
	subnetCIDR = "10.0.1.0/24"

	resourceWaitTimeout  = 5 * time.Minute
	resourceWaitInterval = 3 * time.Second
)

// Reporter receives progress lines for the owning task. A nil Reporter
// is valid and discards everything.
type Reporter func(msg string)

func (r Reporter) emit(msg string) {
	if r != nil {
		r(msg)
	}
}

// SubnetRemember persists a bootstrap result against a profile.
type SubnetRemember interface {
	SetRememberedSubnet(alias, subnetID string) error
}

// Bootstrapper guarantees a usable subnet exists for a profile, and
// enables IPv6 on a VNIC's network path on demand. Every step is
// idempotent; partially-configured VCNs are completed, not duplicated.
type Bootstrapper struct {
	net      oci.NetworkAPI
	profiles SubnetRemember
}

// NewBootstrapper creates a bootstrapper over the given network client.
func NewBootstrapper(netAPI oci.NetworkAPI, profiles SubnetRemember) *Bootstrapper {
	return &Bootstrapper{net: netAPI, profiles: profiles}
}

// EnsureSubnet returns a subnet id usable for launches: the remembered
// one if still AVAILABLE, else the first available subnet discovered in
// the tenancy, else a freshly created VCN + IGW + route + subnet. The
// result is persisted to the profile store before returning.
func (b *Bootstrapper) EnsureSubnet(ctx context.Context, p *types.Profile, alias string, report Reporter) (string, error) {
	logger := log.WithComponent("bootstrap")

	// Remembered subnet is a soft reference: gone or unusable means
	// fall through, anything else propagates.
	if p.DefaultSubnetOCID != "" {
		resp, err := b.net.GetSubnet(ctx, core.GetSubnetRequest{
			SubnetId: common.String(p.DefaultSubnetOCID),
		})
		switch {
		case err == nil && resp.LifecycleState == core.SubnetLifecycleStateAvailable:
			return p.DefaultSubnetOCID, nil
		case err != nil && !oci.IsNotFound(err):
			return "", fmt.Errorf("failed to check remembered subnet: %w", err)
		default:
			logger.Warn().Str("alias", alias).Str("subnet", p.DefaultSubnetOCID).
				Msg("remembered subnet unusable, rebuilding")
		}
	}

	report.emit("checking tenancy network...")
	subnetID, err := b.discoverSubnet(ctx, p.TenancyID)
	if err != nil {
		return "", err
	}
	if subnetID == "" {
		report.emit("no usable network found, creating one...")
		subnetID, err = b.createNetwork(ctx, p.TenancyID, alias, report)
		if err != nil {
			return "", err
		}
	}

	if err := b.profiles.SetRememberedSubnet(alias, subnetID); err != nil {
		return "", fmt.Errorf("failed to remember subnet: %w", err)
	}
	p.DefaultSubnetOCID = subnetID
	return subnetID, nil
}

// discoverSubnet returns the first AVAILABLE subnet of the first VCN in
// the tenancy, or empty when nothing is reusable.
func (b *Bootstrapper) discoverSubnet(ctx context.Context, tenancyID string) (string, error) {
	vcns, err := b.net.ListVcns(ctx, core.ListVcnsRequest{
		CompartmentId: common.String(tenancyID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list VCNs: %w", err)
	}
	if len(vcns.Items) == 0 {
		return "", nil
	}

	subnets, err := b.net.ListSubnets(ctx, core.ListSubnetsRequest{
		CompartmentId: common.String(tenancyID),
		VcnId:         vcns.Items[0].Id,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list subnets: %w", err)
	}
	for _, subnet := range subnets.Items {
		if subnet.LifecycleState == core.SubnetLifecycleStateAvailable {
			return *subnet.Id, nil
		}
	}
	return "", nil
}

// createNetwork builds VCN, internet gateway, default route and subnet
// in sequence, waiting for each to reach AVAILABLE.
func (b *Bootstrapper) createNetwork(ctx context.Context, tenancyID, alias string, report Reporter) (string, error) {
	suffix := 100 + rand.Intn(900)

	report.emit("creating VCN...")
	vcnResp, err := b.net.CreateVcn(ctx, core.CreateVcnRequest{
		CreateVcnDetails: core.CreateVcnDetails{
			CidrBlock:     common.String(vcnCIDR),
			CompartmentId: common.String(tenancyID),
			DisplayName:   common.String(fmt.Sprintf("vcn-autocreated-%s-%d", alias, suffix)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create VCN: %w", err)
	}
	vcnID := *vcnResp.Id
	if err := b.waitVcnAvailable(ctx, vcnID); err != nil {
		return "", err
	}

	report.emit("creating internet gateway...")
	igwResp, err := b.net.CreateInternetGateway(ctx, core.CreateInternetGatewayRequest{
		CreateInternetGatewayDetails: core.CreateInternetGatewayDetails{
			CompartmentId: common.String(tenancyID),
			VcnId:         common.String(vcnID),
			IsEnabled:     common.Bool(true),
			DisplayName:   common.String(fmt.Sprintf("igw-autocreated-%s-%d", alias, suffix)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create internet gateway: %w", err)
	}
	igwID := *igwResp.Id
	err = oci.WaitUntil(ctx, resourceWaitInterval, resourceWaitTimeout, func(ctx context.Context) (bool, error) {
		resp, err := b.net.GetInternetGateway(ctx, core.GetInternetGatewayRequest{IgId: common.String(igwID)})
		if err != nil {
			return false, err
		}
		return resp.LifecycleState == core.InternetGatewayLifecycleStateAvailable, nil
	})
	if err != nil {
		return "", fmt.Errorf("internet gateway never became available: %w", err)
	}

	report.emit("adding default route...")
	if err := b.appendRouteRule(ctx, *vcnResp.DefaultRouteTableId, "0.0.0.0/0", igwID); err != nil {
		return "", err
	}

	report.emit("creating subnet...")
	subnetResp, err := b.net.CreateSubnet(ctx, core.CreateSubnetRequest{
		CreateSubnetDetails: core.CreateSubnetDetails{
			CompartmentId: common.String(tenancyID),
			VcnId:         common.String(vcnID),
			CidrBlock:     common.String(subnetCIDR),
			DisplayName:   common.String(fmt.Sprintf("subnet-autocreated-%s-%d", alias, suffix)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create subnet: %w", err)
	}
	subnetID := *subnetResp.Id
	if err := b.waitSubnetAvailable(ctx, subnetID); err != nil {
		return "", err
	}
	return subnetID, nil
}

// EnableIPv6 walks the VNIC's network path and fills in every missing
// piece of IPv6 plumbing: an Oracle-GUA /56 on the VCN, a /64 on the
// subnet, a ::/0 route to the IGW, and a ::/0 egress rule on the
// default security list. Safe to call repeatedly.
func (b *Bootstrapper) EnableIPv6(ctx context.Context, vnicID string, report Reporter) error {
	vnic, err := b.net.GetVnic(ctx, core.GetVnicRequest{VnicId: common.String(vnicID)})
	if err != nil {
		return fmt.Errorf("failed to look up VNIC: %w", err)
	}
	subnet, err := b.net.GetSubnet(ctx, core.GetSubnetRequest{SubnetId: vnic.SubnetId})
	if err != nil {
		return fmt.Errorf("failed to look up subnet: %w", err)
	}
	vcnResp, err := b.net.GetVcn(ctx, core.GetVcnRequest{VcnId: subnet.VcnId})
	if err != nil {
		return fmt.Errorf("failed to look up VCN: %w", err)
	}
	vcn := vcnResp.Vcn

	if len(vcn.Ipv6CidrBlocks) == 0 {
		report.emit("requesting IPv6 allocation for VCN...")
		_, err := b.net.AddIpv6VcnCidr(ctx, core.AddIpv6VcnCidrRequest{
			VcnId: vcn.Id,
			AddVcnIpv6CidrDetails: core.AddVcnIpv6CidrDetails{
				IsOracleGuaAllocationEnabled: common.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to add IPv6 CIDR to VCN: %w", err)
		}
		if err := b.waitVcnAvailable(ctx, *vcn.Id); err != nil {
			return err
		}
		vcnResp, err = b.net.GetVcn(ctx, core.GetVcnRequest{VcnId: vcn.Id})
		if err != nil {
			return fmt.Errorf("failed to re-read VCN: %w", err)
		}
		vcn = vcnResp.Vcn
		if len(vcn.Ipv6CidrBlocks) == 0 {
			return fmt.Errorf("VCN reports no IPv6 CIDR after allocation")
		}
	}

	if subnet.Ipv6CidrBlock == nil || *subnet.Ipv6CidrBlock == "" {
		subnetV6, err := deriveSubnetIPv6(vcn.Ipv6CidrBlocks[0])
		if err != nil {
			return err
		}
		report.emit(fmt.Sprintf("assigning %s to subnet...", subnetV6))
		_, err = b.net.UpdateSubnet(ctx, core.UpdateSubnetRequest{
			SubnetId: subnet.Id,
			UpdateSubnetDetails: core.UpdateSubnetDetails{
				Ipv6CidrBlock: common.String(subnetV6),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to add IPv6 CIDR to subnet: %w", err)
		}
		if err := b.waitSubnetAvailable(ctx, *subnet.Id); err != nil {
			return err
		}
	}

	rt, err := b.net.GetRouteTable(ctx, core.GetRouteTableRequest{RtId: vcn.DefaultRouteTableId})
	if err != nil {
		return fmt.Errorf("failed to read default route table: %w", err)
	}
	if !hasRoute(rt.RouteRules, "::/0") {
		igws, err := b.net.ListInternetGateways(ctx, core.ListInternetGatewaysRequest{
			CompartmentId: subnet.CompartmentId,
			VcnId:         vcn.Id,
		})
		if err != nil {
			return fmt.Errorf("failed to list internet gateways: %w", err)
		}
		if len(igws.Items) == 0 {
			return fmt.Errorf("VCN has no internet gateway to route ::/0 through")
		}
		report.emit("adding ::/0 route...")
		if err := b.appendRouteRule(ctx, *vcn.DefaultRouteTableId, "::/0", *igws.Items[0].Id); err != nil {
			return err
		}
	}

	sl, err := b.net.GetSecurityList(ctx, core.GetSecurityListRequest{
		SecurityListId: vcn.DefaultSecurityListId,
	})
	if err != nil {
		return fmt.Errorf("failed to read default security list: %w", err)
	}
	if !hasEgress(sl.EgressSecurityRules, "::/0") {
		report.emit("opening IPv6 egress...")
		rules := append(sl.EgressSecurityRules, core.EgressSecurityRule{
			Destination: common.String("::/0"),
			Protocol:    common.String("all"),
		})
		_, err = b.net.UpdateSecurityList(ctx, core.UpdateSecurityListRequest{
			SecurityListId: vcn.DefaultSecurityListId,
			UpdateSecurityListDetails: core.UpdateSecurityListDetails{
				EgressSecurityRules:  rules,
				IngressSecurityRules: sl.IngressSecurityRules,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to update security list: %w", err)
		}
	}
	return nil
}

func (b *Bootstrapper) appendRouteRule(ctx context.Context, routeTableID, destination, igwID string) error {
	rt, err := b.net.GetRouteTable(ctx, core.GetRouteTableRequest{RtId: common.String(routeTableID)})
	if err != nil {
		return fmt.Errorf("failed to read route table: %w", err)
	}
	if hasRoute(rt.RouteRules, destination) {
		return nil
	}
	rules := append(rt.RouteRules, core.RouteRule{
		Destination:     common.String(destination),
		DestinationType: core.RouteRuleDestinationTypeCidrBlock,
		NetworkEntityId: common.String(igwID),
	})
	_, err = b.net.UpdateRouteTable(ctx, core.UpdateRouteTableRequest{
		RtId:                    common.String(routeTableID),
		UpdateRouteTableDetails: core.UpdateRouteTableDetails{RouteRules: rules},
	})
	if err != nil {
		return fmt.Errorf("failed to update route table: %w", err)
	}
	return nil
}

func (b *Bootstrapper) waitVcnAvailable(ctx context.Context, vcnID string) error {
	err := oci.WaitUntil(ctx, resourceWaitInterval, resourceWaitTimeout, func(ctx context.Context) (bool, error) {
		resp, err := b.net.GetVcn(ctx, core.GetVcnRequest{VcnId: common.String(vcnID)})
		if err != nil {
			return false, err
		}
		return resp.LifecycleState == core.VcnLifecycleStateAvailable, nil
	})
	if err != nil {
		return fmt.Errorf("VCN never became available: %w", err)
	}
	return nil
}

func (b *Bootstrapper) waitSubnetAvailable(ctx context.Context, subnetID string) error {
	err := oci.WaitUntil(ctx, resourceWaitInterval, resourceWaitTimeout, func(ctx context.Context) (bool, error) {
		resp, err := b.net.GetSubnet(ctx, core.GetSubnetRequest{SubnetId: common.String(subnetID)})
		if err != nil {
			return false, err
		}
		return resp.LifecycleState == core.SubnetLifecycleStateAvailable, nil
	})
	if err != nil {
		return fmt.Errorf("subnet never became available: %w", err)
	}
	return nil
}

func hasRoute(rules []core.RouteRule, destination string) bool {
	for _, rule := range rules {
		if rule.Destination != nil && *rule.Destination == destination {
			return true
		}
	}
	return false
}

func hasEgress(rules []core.EgressSecurityRule, destination string) bool {
	for _, rule := range rules {
		if rule.Destination != nil && *rule.Destination == destination {
			return true
		}
	}
	return false
}

// deriveSubnetIPv6 returns the first /64 of the VCN's /56 allocation.
func deriveSubnetIPv6(vcnCIDR string) (string, error) {
	ip, _, err := net.ParseCIDR(vcnCIDR)
	if err != nil {
		return "", fmt.Errorf("VCN IPv6 CIDR %q unparseable: %w", vcnCIDR, err)
	}
	return fmt.Sprintf("%s/64", ip.String()), nil
}
