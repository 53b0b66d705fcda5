package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ip"
	"github.com/lambdafunc/usertcpip/pkg/ipv6/frag"
	"github.com/lambdafunc/usertcpip/pkg/multicast"
	"github.com/lambdafunc/usertcpip/pkg/ndp"
	"github.com/lambdafunc/usertcpip/pkg/stack/dispatch"
	"github.com/lambdafunc/usertcpip/pkg/stack/rxring"
	"github.com/lambdafunc/usertcpip/pkg/stack/txring"
	"github.com/lambdafunc/usertcpip/pkg/stackconfig"
	"github.com/lambdafunc/usertcpip/pkg/stacklog"
	"github.com/lambdafunc/usertcpip/pkg/stackmetrics"
	"github.com/lambdafunc/usertcpip/pkg/tapio"
	"github.com/lambdafunc/usertcpip/pkg/tcp"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
	"github.com/lambdafunc/usertcpip/pkg/udp"
)

// sweepInterval is how often the dispatcher/timer goroutine runs
// housekeeping (IPv6 reassembly timeouts, neighbor cache expiry).
const sweepInterval = time.Second

// dequeueTimeout bounds each Dequeue call so the main loop can notice
// ctx cancellation promptly without the RX ring blocking forever on an
// idle tap.
const dequeueTimeout = 200 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the stack in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configFile)
	},
}

func run(configPath string) error {
	cfg, loader, err := stackconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile.Enabled {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			MaxBackups: cfg.LogFile.MaxBackups,
			Compress:   cfg.LogFile.Compress,
		}
	}
	logger := stacklog.New(cfg.LogLevel, out)
	log := stacklog.Component(logger, "usertcpipd")

	loader.OnReload(func(newCfg *stackconfig.Config) {
		if lvl, err := logrus.ParseLevel(newCfg.LogLevel); err == nil {
			logger.SetLevel(lvl)
			log.WithField("level", newCfg.LogLevel).Info("log level reloaded")
		}
	})

	localMAC, err := common.ParseMAC(cfg.LocalMAC)
	if err != nil {
		return fmt.Errorf("parse local_mac: %w", err)
	}
	localIPv4, err := common.ParseIPv4(cfg.LocalIPv4)
	if err != nil {
		return fmt.Errorf("parse local_ipv4: %w", err)
	}
	localIPv6, err := common.ParseIPv6(cfg.LocalIPv6)
	if err != nil {
		return fmt.Errorf("parse local_ipv6: %w", err)
	}
	netmask, err := common.ParseIPv4(cfg.SubnetMaskIPv4)
	if err != nil {
		return fmt.Errorf("parse subnet_mask_ipv4: %w", err)
	}

	tap, err := tapio.OpenLinuxTap(cfg.TapName)
	if err != nil {
		return fmt.Errorf("open tap: %w", err)
	}
	defer tap.Close()
	log.WithField("iface", tap.Name()).Info("tap device opened")

	routes := ip.NewRoutingTable()
	network := common.IPv4Address{}
	for i := range network {
		network[i] = localIPv4[i] & netmask[i]
	}
	if err := routes.AddRoute(&ip.Route{
		Destination: network,
		Netmask:     netmask,
		Interface:   tap.Name(),
	}); err != nil {
		return fmt.Errorf("add local route: %w", err)
	}
	if cfg.DefaultGatewayIPv4 != "" {
		gw, err := common.ParseIPv4(cfg.DefaultGatewayIPv4)
		if err != nil {
			return fmt.Errorf("parse default_gateway_ipv4: %w", err)
		}
		if err := routes.AddRoute(&ip.Route{
			Destination: common.IPv4Address{},
			Netmask:     common.IPv4Address{},
			Gateway:     gw,
			Interface:   tap.Name(),
		}); err != nil {
			return fmt.Errorf("add default route: %w", err)
		}
	}

	metrics := &stackmetrics.Counters{}

	rx := rxring.New(tap, tap.Fd(), cfg.RxRingCapacity, cfg.TapMTU, stacklog.Component(logger, "rx-ring"))
	tx := txring.New(tap, cfg.TxRingCapacity, stacklog.Component(logger, "tx-ring"))

	// tcpMgr and udpMgr are constructed below, once the dispatcher that
	// backs their sender interface exists; deliver closes over the
	// pointers rather than their zero values, since New needs a
	// DeliveryFunc before either Manager can be built.
	var tcpMgr *tcp.Manager
	var udpMgr *udp.Manager
	deliver := func(l3Src, l3Dst net.IP, proto uint8, view []byte, tr tracker.ID) {
		switch common.Protocol(proto) {
		case common.ProtocolTCP:
			tcpMgr.Deliver(l3Src, l3Dst, view, tr)
		case common.ProtocolUDP:
			udpMgr.Deliver(l3Src, l3Dst, view, tr)
		}
	}

	d := dispatch.New(
		dispatch.Config{LocalMAC: localMAC, LocalIPv4: localIPv4, LocalIPv6: localIPv6},
		routes,
		arp.NewDefaultCache(),
		ndp.NewDefaultCache(),
		frag.NewEngine(cfg.IP6Reassembly.MaxEntries, cfg.IP6Reassembly.MaxBytes, cfg.IP6Reassembly.Timeout()),
		multicast.NewManager(),
		tx,
		deliver,
		stacklog.Component(logger, "dispatch"),
		metrics,
	)
	tcpMgr = tcp.NewManager(d, localIPv4, metrics)
	udpMgr = udp.NewManager(d, localIPv4, metrics)

	rx.Start()
	tx.Start()
	log.Info("usertcpipd running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			rx.Stop()
			tx.Stop()
			snap := metrics.Snapshot()
			log.WithField("rx_dropped", rx.Dropped()).WithField("parse_too_short", snap.ParseTooShort).Info("final counters")
			return nil
		case <-ticker.C:
			now := time.Now()
			d.Sweep(now)
			tcpMgr.Sweep(now)
		default:
			if f, ok := rx.Dequeue(dequeueTimeout); ok {
				d.HandleFrame(f)
			}
		}
	}
}
