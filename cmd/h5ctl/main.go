// Command h5ctl opens and drives a Three-Wire UART ("H5") link over a
// serial port: establish, send reliable payloads, stream a file in
// chunks, or listen for inbound application data.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jinwook-Song/h5link/internal/serial"
	"github.com/Jinwook-Song/h5link/internal/transport"
	"github.com/Jinwook-Song/h5link/link"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultBaudRate = 1000000

var (
	portFlag      string
	baudFlag      int
	verboseFlag   bool
	rawFlag       bool
	openWaitFlag  time.Duration
	chunkSizeFlag int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "h5ctl",
		Short: "Drive a Three-Wire UART (H5) link over a serial port",
		Long: `h5ctl establishes and exercises a Three-Wire UART (H5) Bluetooth
link-layer session: the SLIP/H5 handshake, reliable single-outstanding-
packet sends, and streaming a file across the link in chunks.`,
	}

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Establish a link and report its state",
		RunE:  runOpen,
	}
	addPortFlags(openCmd)

	sendCmd := &cobra.Command{
		Use:   "send <hex-bytes>",
		Short: "Establish a link and reliably send one payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}
	addPortFlags(sendCmd)

	sendFileCmd := &cobra.Command{
		Use:   "send-file <path>",
		Short: "Establish a link and stream a file across it in chunks",
		Args:  cobra.ExactArgs(1),
		RunE:  runSendFile,
	}
	addPortFlags(sendFileCmd)
	sendFileCmd.Flags().IntVar(&chunkSizeFlag, "chunk-size", 240, "bytes per reliable send")

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Establish a link and print inbound application data until interrupted",
		RunE:  runListen,
	}
	addPortFlags(listenCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("h5ctl %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(openCmd, sendCmd, sendFileCmd, listenCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPortFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "serial port (required)")
	cmd.Flags().IntVarP(&baudFlag, "baud", "b", defaultBaudRate, "baud rate")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	cmd.Flags().DurationVar(&openWaitFlag, "open-wait", link.OpenWaitTimeout, "how long to wait for the link to reach ACTIVE")
	cmd.Flags().BoolVar(&rawFlag, "raw", false, "use the raw termios transport instead of go.bug.st/serial (Linux only)")
	cmd.MarkFlagRequired("port")
}

// openLink opens portFlag at baudFlag and establishes the link, wiring
// onData as the application data callback; link errors are logged as
// warnings. Callers must Close the link, which also closes its
// transport.
func openLink(onData link.DataFunc) (*link.Link, error) {
	logger := logrus.New()
	if verboseFlag {
		logger.SetLevel(logrus.TraceLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	var port transport.ByteTransport
	if rawFlag {
		raw, err := serial.OpenRaw(portFlag, baudFlag)
		if err != nil {
			return nil, fmt.Errorf("open raw port: %w", err)
		}
		port = raw
	} else {
		p, err := serial.NewPort(portFlag, baudFlag)
		if err != nil {
			return nil, fmt.Errorf("open port: %w", err)
		}
		port = p
	}

	l := link.New(port, link.WithOpenWaitTimeout(openWaitFlag))

	onError := func(code link.ErrorCode, message string) {
		logger.WithField("code", code).Warn(message)
	}
	onLog := func(level link.LogLevel, message string) {
		entry := logger.WithField("component", "h5link")
		switch level {
		case link.LogLevelTrace:
			entry.Trace(message)
		case link.LogLevelDebug:
			entry.Debug(message)
		case link.LogLevelWarn:
			entry.Warn(message)
		case link.LogLevelError:
			entry.Error(message)
		default:
			entry.Info(message)
		}
	}

	status, err := l.Open(onError, onData, onLog)
	if err != nil || status != link.StatusSuccess {
		l.Close()
		return nil, fmt.Errorf("link did not reach ACTIVE: %s: %w", status, err)
	}
	return l, nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	l, err := openLink(nil)
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("link ACTIVE on %s @ %d baud\n", portFlag, baudFlag)
	stats := l.Stats()
	fmt.Printf("packets: in=%d out=%d errors=%d\n", stats.Incoming, stats.Outgoing, stats.Errors)
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("payload must be hex-encoded bytes: %w", err)
	}

	l, err := openLink(nil)
	if err != nil {
		return err
	}
	defer l.Close()

	status, err := l.Send(payload)
	if err != nil {
		return fmt.Errorf("send: %s: %w", status, err)
	}
	fmt.Printf("sent %d bytes: %s\n", len(payload), status)
	return nil
}

func runSendFile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	l, err := openLink(nil)
	if err != nil {
		return err
	}
	defer l.Close()

	chunks := chunk(data, chunkSizeFlag)
	bar := progressbar.NewOptions(len(chunks),
		progressbar.OptionSetDescription("sending"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionClearOnFinish(),
	)

	for i, c := range chunks {
		status, err := l.Send(c)
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %s: %w", i+1, len(chunks), status, err)
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Printf("\nsent %s in %d chunk(s)\n", args[0], len(chunks))
	return nil
}

func chunk(data []byte, size int) [][]byte {
	if size <= 0 {
		size = len(data)
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	if len(chunks) == 0 {
		chunks = append(chunks, nil)
	}
	return chunks
}

func runListen(cmd *cobra.Command, args []string) error {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	onData := func(payload []byte) {
		fmt.Fprintf(out, "%s\n", hex.EncodeToString(payload))
		out.Flush()
	}

	l, err := openLink(onData)
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("listening on %s @ %d baud, press Ctrl+C to stop\n", portFlag, baudFlag)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}
	return nil
}
