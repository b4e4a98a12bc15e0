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

package lsdn

import (
	"net"

	"github.com/virtnet/lsdn/pkg/nettype"
)

// This file adapts the concrete model types to the interfaces pkg/nettype
// defines for its driver Ops vtable, keeping Net/Phys/Attachment/Virt's own
// field names (Net, Phys, VnetID, ...) free of collisions with the
// nettype.NetInfo/PhysInfo/PA/Virt method names.

type netInfoAdapter struct{ n *Net }

func (a netInfoAdapter) Name() string   { return a.n.name }
func (a netInfoAdapter) VnetID() uint32 { return a.n.VnetID }

type physInfoAdapter struct{ p *Phys }

func (a physInfoAdapter) Name() string  { return a.p.name }
func (a physInfoAdapter) Iface() string { return a.p.attrIface }
func (a physInfoAdapter) IP() net.IP    { return a.p.attrIP }

type paAdapter struct{ a *Attachment }

func (pa paAdapter) Net() nettype.NetInfo   { return netInfoAdapter{pa.a.Net} }
func (pa paAdapter) Phys() nettype.PhysInfo { return physInfoAdapter{pa.a.Phys} }
func (pa paAdapter) Handle() interface{}    { return pa.a.handle }
func (pa paAdapter) SetHandle(h interface{}) { pa.a.handle = h }

type virtAdapter struct{ v *Virt }

func (va virtAdapter) Name() string            { return va.v.name }
func (va virtAdapter) MAC() net.HardwareAddr   { return va.v.attrMAC }
func (va virtAdapter) Iface() string           { return va.v.connectedIf }
func (va virtAdapter) Handle() interface{}     { return va.v.handle }
func (va virtAdapter) SetHandle(h interface{}) { va.v.handle = h }
func (va virtAdapter) Attachment() nettype.PA  { return paAdapter{va.v.connectedThrough} }

type remotePAAdapter struct{ rpa *remotePA }

func (r remotePAAdapter) Local() nettype.PA  { return paAdapter{r.rpa.local} }
func (r remotePAAdapter) Remote() nettype.PA { return paAdapter{r.rpa.remote} }

type remoteVirtAdapter struct{ rv *remoteVirt }

func (r remoteVirtAdapter) PA() nettype.RemotePA { return remotePAAdapter{r.rv.pa} }
func (r remoteVirtAdapter) Virt() nettype.Virt   { return virtAdapter{r.rv.virt} }
