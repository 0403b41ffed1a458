package cli

import (
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-report",
	Short: "使用合成验证人数据模拟一次报告投递",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateReport(cmd.Context())
	},
}
