/*
Copyright 2019 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package testsupport builds a Settings object from the LSCTL_NETTYPE
// environment variable, for demos and tests that want to run the same
// scenario against every nettype driver without hardcoding which one.
// Mirrors test/common.c's settings_from_env.
package testsupport

import (
	"fmt"
	"net"
	"os"

	"github.com/virtnet/lsdn/pkg/lsdn"
	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/nettype/drivers"
)

// EnvVar is the variable settings_from_env reads. Mirrors LSCTL_NETTYPE.
const EnvVar = "LSCTL_NETTYPE"

// DefaultMcastIP is the multicast group settings_from_env hardcodes for
// vxlan/mcast, 239.239.239.239, carried over unchanged from common.c.
var DefaultMcastIP = net.IPv4(239, 239, 239, 239)

// SettingsFromEnv builds a Settings under ctx from the nettype named by
// LSCTL_NETTYPE, using port 0 (kernel-assigned) for every VXLAN discipline,
// exactly as common.c does. Returns an error instead of aborting the
// process when the variable is unset or unrecognized, since a library
// helper should never call os.Exit out from under its caller. The returned
// Fabric is the one the driver was built with, so callers (e.g. lsdnctl)
// can inspect what it materialized after a commit.
func SettingsFromEnv(ctx *lsdn.Context) (*lsdn.Settings, nettype.Fabric, error) {
	envNettype := os.Getenv(EnvVar)
	if envNettype == "" {
		return nil, nil, fmt.Errorf("testsupport: %s not set", EnvVar)
	}
	return SettingsFor(ctx, envNettype)
}

// SettingsFor builds a Settings under ctx for the named nettype, using the
// same nettype strings settings_from_env recognizes from LSCTL_NETTYPE.
func SettingsFor(ctx *lsdn.Context, name string) (*lsdn.Settings, nettype.Fabric, error) {
	fabric := nettype.NewMemFabric(ctx.Name())
	switch name {
	case "vlan":
		return ctx.NewVLANSettings(fabric), fabric, nil
	case "vxlan/e2e":
		return vxlanE2ESettings(ctx, fabric), fabric, nil
	case "vxlan/static":
		return vxlanStaticSettings(ctx, fabric), fabric, nil
	case "vxlan/mcast":
		return vxlanMcastSettings(ctx, fabric, DefaultMcastIP), fabric, nil
	case "direct":
		return ctx.NewDirectSettings(fabric), fabric, nil
	default:
		return nil, nil, fmt.Errorf("testsupport: unknown nettype %q", name)
	}
}

// Nettypes lists every value SettingsFor accepts, for help text and
// table-driven tests that want to exercise all of them.
func Nettypes() []string {
	return []string{"vlan", "vxlan/e2e", "vxlan/static", "vxlan/mcast", "direct"}
}

// vxlanE2ESettings, vxlanStaticSettings and vxlanMcastSettings build the
// VXLAN Settings variants with an explicit fabric instead of going through
// ctx.NewVXLAN*Settings (which mint their own private MemFabric), so callers
// here can inspect what the driver materialized after a commit.
func vxlanE2ESettings(ctx *lsdn.Context, fabric nettype.Fabric) *lsdn.Settings {
	s := ctx.NewSettings(lsdn.NetVXLAN, lsdn.SwitchLearningE2E, drivers.NewVXLANE2E(fabric, 0))
	s.VXLANPort = 0
	return s
}

func vxlanStaticSettings(ctx *lsdn.Context, fabric nettype.Fabric) *lsdn.Settings {
	s := ctx.NewSettings(lsdn.NetVXLAN, lsdn.SwitchStaticE2E, drivers.NewVXLANStatic(fabric, 0))
	s.VXLANPort = 0
	return s
}

func vxlanMcastSettings(ctx *lsdn.Context, fabric nettype.Fabric, mcastIP net.IP) *lsdn.Settings {
	s := ctx.NewSettings(lsdn.NetVXLAN, lsdn.SwitchLearning, drivers.NewVXLANMcast(fabric, 0, mcastIP))
	s.VXLANPort = 0
	s.McastIP = mcastIP
	return s
}
