// igdctl queries and configures the local UPnP Internet Gateway Device.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	igd "github.com/go-i2p/go-igd"
)

var (
	configPath  string
	logLevel    string
	bindAddrs   []string
	metricsAddr string
	lease       time.Duration
	description string
	hold        bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "igdctl",
		Short: "Query and configure a UPnP Internet Gateway Device",
		Long: `igdctl discovers the local gateway over SSDP and talks to its
WANIPConnection:2 service.

Examples:
  igdctl external-ip
  igdctl map tcp 8080 --lease 1h --hold
  igdctl unmap tcp 40000`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&bindAddrs, "bind", nil, "local ip:port to bind for discovery (repeatable)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newExternalIPCmd(), newMapCmd(), newUnmapCmd())
	return rootCmd
}

func newExternalIPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "external-ip",
		Short: "Print the gateway's external IP address",
		Args:  cobra.NoArgs,
		RunE:  runExternalIP,
	}
}

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <tcp|udp> <internal-port>",
		Short: "Map an external port of the gateway's choosing to a local port",
		Long: `Request an inbound port mapping. The gateway picks the external port,
which is printed on success. With --hold the mapping is renewed until
interrupted and then removed.`,
		Args: cobra.ExactArgs(2),
		RunE: runMap,
	}
	cmd.Flags().DurationVar(&lease, "lease", time.Hour, "lease duration of the mapping")
	cmd.Flags().StringVar(&description, "description", "igdctl", "mapping description")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep renewing the mapping until interrupted")
	return cmd
}

func newUnmapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmap <tcp|udp> <external-port>",
		Short: "Remove a port mapping",
		Args:  cobra.ExactArgs(2),
		RunE:  runUnmap,
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// clientSetup merges the config file with flags; flags win.
func clientSetup() (*igd.FileConfig, []netip.AddrPort, []igd.Option, error) {
	fc := &igd.FileConfig{}
	if configPath != "" {
		loaded, err := igd.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, nil, err
		}
		fc = loaded
		if fc.LogLevel != "" && logLevel == "info" {
			logLevel = fc.LogLevel
			setupLogging()
		}
	}
	if len(bindAddrs) > 0 {
		fc.Bind = bindAddrs
	}
	bind, err := fc.BindAddrs()
	if err != nil {
		return nil, nil, nil, err
	}
	opts, err := fc.Options()
	if err != nil {
		return nil, nil, nil, err
	}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, igd.WithMetrics(igd.NewMetrics(reg)))
		serveMetrics(reg)
	}
	return fc, bind, opts, nil
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Info().Str("addr", metricsAddr).Msg("serving metrics")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

func runExternalIP(cmd *cobra.Command, args []string) error {
	_, bind, opts, err := clientSetup()
	if err != nil {
		return err
	}
	ip, err := igd.GetExternalIP(cmd.Context(), bind, opts...)
	if err != nil {
		return fmt.Errorf("external ip lookup failed: %w", err)
	}
	if !ip.IsValid() {
		return fmt.Errorf("gateway did not report an external address")
	}
	fmt.Fprintln(cmd.OutOrStdout(), ip)
	return nil
}

func runMap(cmd *cobra.Command, args []string) error {
	proto, port, err := parseMappingArgs(args)
	if err != nil {
		return err
	}
	fc, bind, opts, err := clientSetup()
	if err != nil {
		return err
	}
	if fc.Description != "" && !cmd.Flags().Changed("description") {
		description = fc.Description
	}
	if fc.Lease > 0 && !cmd.Flags().Changed("lease") {
		lease = fc.Lease
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapper, err := igd.NewPortMapperContext(ctx, bind, opts...)
	if err != nil {
		return err
	}
	if u, ok := mapper.(*igd.UPnPMapper); ok {
		u.SetDescription(description)
		defer u.Close()
	}

	external, err := mapper.MapPort(ctx, proto, port, lease)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), external)
	if !hold {
		return nil
	}

	renewal := igd.NewRenewalManager(mapper, proto, port, external)
	renewal.SetSchedule(lease/2, lease)
	renewal.SetPortChangeCallback(func(p uint16) {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	})
	renewal.Start()
	log.Info().Uint16("external_port", external).Msg("holding mapping, interrupt to release")
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	renewal.Stop(stopCtx)
	return nil
}

func runUnmap(cmd *cobra.Command, args []string) error {
	proto, port, err := parseMappingArgs(args)
	if err != nil {
		return err
	}
	_, bind, opts, err := clientSetup()
	if err != nil {
		return err
	}
	ctl, err := igd.Connect(cmd.Context(), bind, opts...)
	if err != nil {
		return err
	}
	defer ctl.Close()
	return ctl.DeletePortMapping(cmd.Context(), proto, port)
}
