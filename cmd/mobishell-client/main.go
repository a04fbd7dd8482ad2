// Command mobishell-client dials a mobishell-server and relays stdin lines
// as Instruction payloads, printing whatever Instructions come back.
package main

import (
	"bufio"
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
	host := flag.String("host", "127.0.0.1", "server host to dial")
	udpPort := flag.Uint("udp-port", 60000, "server UDP port")
	tcpPort := flag.Uint("tcp-port", 60000, "server TCP port")
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

	tr, err := dialTransport(cfg, sess, *host, uint16(*udpPort), uint16(*tcpPort))
	if err != nil {
		fatalf("dial transport: %v", err)
	}
	defer tr.Close()

	tr.SetReportFunc(observability.ReportLogger(logger))

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

func dialTransport(cfg *config.Config, sess *session.Session, host string, udpPort, tcpPort uint16) (transport.Transport, error) {
	clientRange, err := cfg.UDPPortRange()
	if err != nil {
		return nil, err
	}

	switch cfg.TransportMode {
	case config.TransportUDP:
		return udp.Dial(sess, host, udpPort, clientRange)
	case config.TransportTCP:
		return tcp.Dial(sess, host, tcpPort)
	default:
		u, err := udp.Dial(sess, host, udpPort, clientRange)
		if err != nil {
			return nil, err
		}
		t, err := tcp.Dial(sess, host, tcpPort)
		if err != nil {
			u.Close()
			return nil, err
		}
		return combined.New(u, t), nil
	}
}

// runLoop is the caller-owned event loop spec.md section 5 describes:
// it polls Recv on a short tick (the Go-idiomatic stand-in for a raw
// select/poll over FDsNotifyRead/FDsNotifyWrite), relays stdin lines out,
// and prints Instructions as they arrive.
func runLoop(logger *zap.Logger, tr transport.Transport) {
	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var seq uint64
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			seq++
			inst := instruction.Instruction{NewNum: seq, Payload: []byte(line)}
			if err := tr.Send(inst); err != nil {
				logger.Error("send failed", zap.Error(err))
				return
			}
			if msg := tr.ClearSendError(); msg != "" {
				logger.Warn("send error", zap.String("error", msg))
			}
		case <-ticker.C:
			inst, err := tr.Recv()
			if err != nil {
				logger.Error("recv failed", zap.Error(err))
				return
			}
			if inst != nil {
				fmt.Printf("%s\n", inst.Payload)
			}
			tr.FinishSend()
		}
	}
}

func fatalf(format string, a ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
