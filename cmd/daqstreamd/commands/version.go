// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n0ot/daqstreamd/pkg/model"
)

// Version is the version of daqstreamd.
var Version = "unset"

// Copyright is the copyright including authors of daqstreamd.
var Copyright = "Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of daqstreamd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("daqstreamd version %s (protocol %d)\n%s\n", Version, model.ProtocolVersion, Copyright)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
