// Copyright 2023 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ouroboroscore

import "encoding/hex"

// Network definitions. ByronGenesisHash is the hash chain-sync reports as
// the tip point when a peer's local chain is empty, since the genesis
// block precedes every chunk this module can index.
var (
	NetworkTestnet = Network{
		Name:             "testnet",
		NetworkMagic:     1097911063,
		ByronGenesisHash: "9afbce9f2416520733bacb370315d32b6b2c43d6097576df1c1222859d91eecc",
	}
	NetworkMainnet = Network{
		Name:              "mainnet",
		NetworkMagic:      764824073,
		PublicRootAddress: "backbone.cardano-mainnet.iohk.io",
		PublicRootPort:    3001,
		ByronGenesisHash:  "282a3ebbd23b7cca0929441e6672e0c1023d9e30c96aae7cd458cec3508dbfb6",
	}
	NetworkPreprod = Network{
		Name:              "preprod",
		NetworkMagic:      1,
		PublicRootAddress: "preprod-node.world.dev.cardano.org",
		PublicRootPort:    30000,
		ByronGenesisHash:  "c3a9236e12bb95f086275ff4647a7909dc8a0636e44b1a00f033a0c181255fc9",
	}
	NetworkPreview = Network{
		Name:              "preview",
		NetworkMagic:      2,
		PublicRootAddress: "preview-node.play.dev.cardano.org",
		PublicRootPort:    3001,
		ByronGenesisHash:  "5975cf1bba432391c94667f5886225f69377c0aa8b9fa21fddfb21c89bcf9092",
	}
	NetworkSancho = Network{
		Name:              "sanchonet",
		NetworkMagic:      4,
		PublicRootAddress: "sanchonet-node.play.dev.cardano.org",
		PublicRootPort:    3001,
		ByronGenesisHash:  "a056acf9697bfb11a3c1eed36b0a04b82db85b5fd683e370414c511dfe56a77c",
	}

	// NetworkInvalid is used as a return value for lookup functions when a
	// network isn't found
	NetworkInvalid = Network{
		Name:         "invalid",
		NetworkMagic: 0,
	}
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkTestnet,
	NetworkMainnet,
	NetworkPreprod,
	NetworkPreview,
	NetworkSancho,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkByNetworkMagic returns a predefined network by network magic
func NetworkByNetworkMagic(networkMagic uint32) Network {
	for _, network := range networks {
		if network.NetworkMagic == networkMagic {
			return network
		}
	}
	return NetworkInvalid
}

// Network represents a Cardano network this module can connect to. Unlike
// the teacher's Network type, there is no address-format network ID here:
// that field exists to disambiguate ledger addresses, and this module never
// decodes addresses or any other ledger content.
type Network struct {
	Name              string
	NetworkMagic      uint32
	PublicRootAddress string
	PublicRootPort    uint
	// ByronGenesisHash is the hex-encoded hash of this network's genesis
	// block, reported as the tip of an empty chain.
	ByronGenesisHash string
}

// GenesisHash decodes ByronGenesisHash, panicking if it isn't valid hex.
// It's only ever called with the hard-coded network constants above, so a
// malformed value is a programming error, not a runtime condition to
// recover from.
func (n Network) GenesisHash() []byte {
	h, err := hex.DecodeString(n.ByronGenesisHash)
	if err != nil {
		panic("ouroboroscore: invalid genesis hash for network " + n.Name + ": " + err.Error())
	}
	return h
}

func (n Network) String() string {
	return n.Name
}
