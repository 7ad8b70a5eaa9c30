package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wwwzy/CareCompanion/internal/config"
	"github.com/wwwzy/CareCompanion/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     zerolog.Logger
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "carecompanion",
	Short: "CareCompanion 是面向肾病出院患者的随访助手",
	Long: `CareCompanion 由 receptionist 与 clinical 两个 Agent 组成：
receptionist 负责问候与分诊，clinical 基于肾病参考资料（必要时检索网络）回答医疗问题。`,
}

// Execute 将所有子命令添加到根命令并适当设置标志。
// 这由 main.main() 调用。它只需要对 rootCmd 调用一次。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.carecompanion/config.yaml 搜索）")
}

// initConfig 读取配置文件和环境变量，并初始化日志
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	log = logger.New(cfg.LogLevel, os.Stderr)
}
