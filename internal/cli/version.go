package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// 编译时注入的版本信息
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// NewVersionCmd 创建 version 命令
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := BuildInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildTime: BuildTime,
				GoVersion: runtime.Version(),
				OS:        runtime.GOOS,
				Arch:      runtime.GOARCH,
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintf(out, "tgrelay %s\n", info.Version)
				fmt.Fprintf(out, "  Git commit: %s\n", info.GitCommit)
				fmt.Fprintf(out, "  Built:      %s\n", info.BuildTime)
				fmt.Fprintf(out, "  Go version: %s\n", info.GoVersion)
				fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", info.OS, info.Arch)
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
