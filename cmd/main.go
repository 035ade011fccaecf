package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/app"
	"github.com/dumacp/go-lorabridge/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const versionString = "1.0.0"

var (
	debug   bool
	logstd  bool
	cfgFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lorabridge",
		Short: "Relay short messages between a BLE phone link and a LoRa radio link",
		Long: `lorabridge runs the bridge appliance: messages written by a phone over
BLE are transmitted on the LoRa link, and messages received over LoRa are
acknowledged and notified to the phone.`,
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBridge,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "debug")
	root.PersistentFlags().BoolVar(&logstd, "logstd", false, "logs in stderr")
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")

	root.AddCommand(newRunCmd(), newFrameCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge (default)",
		Args:  cobra.NoArgs,
		RunE:  runBridge,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", versionString)
		},
	}
}

func initConfig() error {
	config.SetDefaults()
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	initLogs(debug, logstd)
	if err := initConfig(); err != nil {
		return err
	}
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	logs.LogBuild.Printf("config: %+v", cfg)

	rootContext := actor.NewActorSystem().Root
	comps, release, err := app.Open(rootContext, cfg)
	if err != nil {
		return err
	}
	defer release()

	pid, err := app.Spawn(rootContext, cfg, comps)
	if err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)

	finish := make(chan os.Signal, 1)
	signal.Notify(finish, syscall.SIGINT)
	signal.Notify(finish, syscall.SIGTERM)

	v := <-finish
	logs.LogError.Println(v)
	rootContext.PoisonFuture(pid).Wait()
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
