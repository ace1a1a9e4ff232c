// Copyright 2026 Blink Labs Software
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

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix is the prefix viper binds every flag to, so e.g. --port can
// also be set via NODE_API_PORT.
const envPrefix = "NODE_API"

var rootCmd = &cobra.Command{
	Use:   "node-api",
	Short: "Serves the node-to-node mini-protocol suite over a local chain archive",
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// bindEnv wires viper's automatic environment lookup, using the same
// SetEnvKeyReplacer/SetEnvPrefix/AutomaticEnv sequence as the reference
// CLI setup this command's flag binding is grounded on.
func bindEnv() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
