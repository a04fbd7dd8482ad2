// Command mobishell-server listens for a mobishell-client and echoes back
// every Instruction payload it receives, uppercased, as a minimal
// demonstration of the transport contract.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"mobishell/pkg/config"
	"mobishell/pkg/instruction"
	"mobishell/pkg/observability"
	"mobishell/pkg/session"
	"mobishell/pkg/transport"
	"mobishell/pkg/transport/combined"
	"mobishell/pkg/transport/tcp"
	"mobishell/pkg/transport/udp"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	sess, err := buildSession(cfg)
	if err != nil {
		fatalf("build session: %v", err)
	}

	tr, err := listenTransport(cfg, sess)
	if err != nil {
		fatalf("listen transport: %v", err)
	}
	defer tr.Close()

	tr.SetReportFunc(observability.ReportLogger(logger))

	if port, ok := tr.UDPPort(); ok {
		logger.Info("listening", zap.Uint16("udp_port", port))
	}
	if port, ok := tr.TCPPort(); ok {
		logger.Info("listening", zap.Uint16("tcp_port", port))
	}

	runLoop(logger, tr)
}

func buildSession(cfg *config.Config) (*session.Session, error) {
	if cfg.SharedKey == "" {
		key, err := session.GenerateKey()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "no shared_key configured; generated one-off key: %s\n", key)
		return session.NewFromBase64(key)
	}
	return session.NewFromBase64(cfg.SharedKey)
}

func listenTransport(cfg *config.Config, sess *session.Session) (transport.Transport, error) {
	portRange, err := cfg.UDPPortRange()
	if err != nil {
		return nil, err
	}

	switch cfg.TransportMode {
	case config.TransportUDP:
		return udp.Listen(sess, cfg.DesiredIP, portRange)
	case config.TransportTCP:
		return tcp.Listen(sess, cfg.DesiredIP, cfg.DesiredTCPPort)
	default:
		u, err := udp.Listen(sess, cfg.DesiredIP, portRange)
		if err != nil {
			return nil, err
		}
		t, err := tcp.Listen(sess, cfg.DesiredIP, cfg.DesiredTCPPort)
		if err != nil {
			u.Close()
			return nil, err
		}
		return combined.New(u, t), nil
	}
}

// runLoop polls Recv on a short tick, the Go-idiomatic stand-in for the
// caller's raw select/poll loop over FDsNotifyRead/FDsNotifyWrite
// (spec.md section 5), and echoes every received Instruction back
// uppercased.
func runLoop(logger *zap.Logger, tr transport.Transport) {
	var echoNum uint64
	for {
		inst, err := tr.Recv()
		if err != nil {
			logger.Error("recv failed", zap.Error(err))
			return
		}
		if inst != nil {
			echoNum++
			reply := instruction.Instruction{
				OldNum:  inst.NewNum,
				NewNum:  echoNum,
				AckNum:  inst.NewNum,
				Payload: bytes.ToUpper(inst.Payload),
			}
			if err := tr.Send(reply); err != nil {
				logger.Error("send failed", zap.Error(err))
				return
			}
			if msg := tr.ClearSendError(); msg != "" {
				logger.Warn("send error", zap.String("error", msg))
			}
		}
		tr.FinishSend()
		time.Sleep(5 * time.Millisecond)
	}
}

func fatalf(format string, a ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
